// Package geo 提供邮编目录与按邮编的记录聚合.
package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Location 邮编对应的坐标与城市.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
}

// Directory 内存中的邮编目录，加载后只读.
type Directory struct {
	entries map[string]Location
}

// Empty 返回空目录，未配置 geo.zipcode_file 时使用.
func Empty() *Directory {
	return &Directory{entries: map[string]Location{}}
}

// LoadFile 从 CSV 文件加载目录，path 为空时返回空目录.
func LoadFile(path string) (*Directory, error) {
	if path == "" {
		return Empty(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open zipcode file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load 读取 zipcode,latitude,longitude,city 格式的 CSV，首行为表头时跳过.
func Load(r io.Reader) (*Directory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	d := Empty()
	line := 0

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read zipcode csv: %w", err)
		}

		line++

		if line == 1 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "zipcode") {
			continue
		}

		if len(rec) < 3 {
			return nil, fmt.Errorf("zipcode csv line %d: expected at least 3 columns, got %d", line, len(rec))
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("zipcode csv line %d: latitude: %w", line, err)
		}

		lng, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("zipcode csv line %d: longitude: %w", line, err)
		}

		loc := Location{Latitude: lat, Longitude: lng}
		if len(rec) > 3 {
			loc.City = strings.TrimSpace(rec[3])
		}

		d.entries[NormalizeZip(rec[0])] = loc
	}

	return d, nil
}

// Lookup 查询邮编.
func (d *Directory) Lookup(zip string) (Location, bool) {
	loc, ok := d.entries[NormalizeZip(zip)]
	return loc, ok
}

// Len 目录条目数.
func (d *Directory) Len() int { return len(d.entries) }

// NormalizeZip 去除空白并截取 ZIP+4 的前五位.
func NormalizeZip(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '-'); i == 5 {
		s = s[:i]
	}

	return s
}

// ZipcodeStat 单个邮编的聚合结果，目录中缺失的邮编不带坐标.
type ZipcodeStat struct {
	Count     int      `json:"count"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      string   `json:"city,omitempty"`
}

// Counter 按邮编累计记录数.
type Counter struct {
	counts map[string]int
}

// NewCounter 创建计数器.
func NewCounter() *Counter {
	return &Counter{counts: map[string]int{}}
}

// Add 累计一个邮编，空值忽略.
func (c *Counter) Add(zip string) {
	zip = NormalizeZip(zip)
	if zip == "" {
		return
	}

	c.counts[zip]++
}

// Zips 返回按字典序排列的邮编.
func (c *Counter) Zips() []string {
	out := make([]string, 0, len(c.counts))
	for z := range c.counts {
		out = append(out, z)
	}

	sort.Strings(out)

	return out
}

// Resolve 用目录补全坐标.
func (c *Counter) Resolve(d *Directory) map[string]ZipcodeStat {
	out := make(map[string]ZipcodeStat, len(c.counts))

	for zip, n := range c.counts {
		stat := ZipcodeStat{Count: n}

		if d != nil {
			if loc, ok := d.Lookup(zip); ok {
				lat, lng := loc.Latitude, loc.Longitude
				stat.Latitude, stat.Longitude, stat.City = &lat, &lng, loc.City
			}
		}

		out[zip] = stat
	}

	return out
}
