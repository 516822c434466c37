// Package index 维护搜索索引与文档存储之间的镜像关系.
//
// 每个模板一个索引，文档以记录 id 为键，正文不含 id / _id.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/bytedance/sonic"
)

// ErrIndexNotFound 索引不存在.
var ErrIndexNotFound = errors.New("search index not found")

// sourceField 保存原始文档 JSON 的字段，只存储不分词.
const sourceField = "source_json"

// Hit 单条命中.
type Hit struct {
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Source map[string]any `json:"source"`
}

// SearchResult 搜索结果.
type SearchResult struct {
	Hits  []Hit  `json:"hits"`
	Total uint64 `json:"total"`
}

// Engine 搜索引擎的最小接口.
type Engine interface {
	EnsureIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Put(ctx context.Context, name, id string, body map[string]any) error
	Get(ctx context.Context, name, id string) (map[string]any, bool, error)
	Delete(ctx context.Context, name, id string) error
	Search(ctx context.Context, name, q string, from, size int) (SearchResult, error)
	Close() error
}

// BleveEngine 基于 bleve 的本地搜索引擎.
type BleveEngine struct {
	dataDir  string
	inMemory bool

	mu      sync.RWMutex
	indexes map[string]bleve.Index
}

// NewBleveEngine 创建引擎. inMemory 为 true 时索引不落盘.
func NewBleveEngine(dataDir string, inMemory bool) (*BleveEngine, error) {
	if !inMemory {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}

	return &BleveEngine{dataDir: dataDir, inMemory: inMemory, indexes: map[string]bleve.Index{}}, nil
}

func newMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()

	src := bleve.NewTextFieldMapping()
	src.Index = false
	src.Store = true
	src.IncludeInAll = false
	src.IncludeTermVectors = false
	m.DefaultMapping.AddFieldMappingsAt(sourceField, src)

	return m
}

func (e *BleveEngine) path(name string) string {
	return filepath.Join(e.dataDir, sanitize(name)+".bleve")
}

// EnsureIndex 打开或创建索引.
func (e *BleveEngine) EnsureIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.indexes[name]; ok {
		return nil
	}

	var (
		idx bleve.Index
		err error
	)

	switch {
	case e.inMemory:
		idx, err = bleve.NewMemOnly(newMapping())
	case exists(e.path(name)):
		idx, err = bleve.Open(e.path(name))
	default:
		idx, err = bleve.New(e.path(name), newMapping())
	}

	if err != nil {
		return fmt.Errorf("open index %s: %w", name, err)
	}

	e.indexes[name] = idx

	return nil
}

// IndexExists 索引是否已打开或存在于磁盘.
func (e *BleveEngine) IndexExists(_ context.Context, name string) (bool, error) {
	e.mu.RLock()
	_, ok := e.indexes[name]
	e.mu.RUnlock()

	if ok {
		return true, nil
	}

	return !e.inMemory && exists(e.path(name)), nil
}

func (e *BleveEngine) open(ctx context.Context, name string) (bleve.Index, error) {
	e.mu.RLock()
	idx, ok := e.indexes[name]
	e.mu.RUnlock()

	if ok {
		return idx, nil
	}

	if ok, _ := e.IndexExists(ctx, name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}

	if err := e.EnsureIndex(ctx, name); err != nil {
		return nil, err
	}

	return e.open(ctx, name)
}

// Put 覆盖写入文档.
func (e *BleveEngine) Put(ctx context.Context, name, id string, body map[string]any) error {
	idx, err := e.open(ctx, name)
	if err != nil {
		return err
	}

	src, err := sonic.MarshalString(body)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}

	doc := make(map[string]any, len(body)+1)
	for k, v := range body {
		doc[k] = v
	}

	doc[sourceField] = src

	return idx.Index(id, doc)
}

// Get 读取文档原文.
func (e *BleveEngine) Get(ctx context.Context, name, id string) (map[string]any, bool, error) {
	idx, err := e.open(ctx, name)
	if err != nil {
		return nil, false, err
	}

	req := bleve.NewSearchRequestOptions(query.NewDocIDQuery([]string{id}), 1, 0, false)
	req.Fields = []string{sourceField}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, false, err
	}

	if len(res.Hits) == 0 {
		return nil, false, nil
	}

	body, err := decodeSource(res.Hits[0].Fields)

	return body, err == nil, err
}

// Delete 删除文档，文档不存在不视为错误.
func (e *BleveEngine) Delete(ctx context.Context, name, id string) error {
	idx, err := e.open(ctx, name)
	if err != nil {
		return err
	}

	return idx.Delete(id)
}

// Search 使用 bleve 查询字符串语法搜索，空查询匹配全部.
func (e *BleveEngine) Search(ctx context.Context, name, q string, from, size int) (SearchResult, error) {
	idx, err := e.open(ctx, name)
	if err != nil {
		return SearchResult{}, err
	}

	var qq query.Query = bleve.NewMatchAllQuery()
	if strings.TrimSpace(q) != "" {
		qq = bleve.NewQueryStringQuery(q)
	}

	req := bleve.NewSearchRequestOptions(qq, size, from, false)
	req.Fields = []string{sourceField}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return SearchResult{}, err
	}

	out := SearchResult{Total: res.Total, Hits: make([]Hit, 0, len(res.Hits))}

	for _, h := range res.Hits {
		body, err := decodeSource(h.Fields)
		if err != nil {
			return SearchResult{}, fmt.Errorf("decode hit %s: %w", h.ID, err)
		}

		out.Hits = append(out.Hits, Hit{ID: h.ID, Score: h.Score, Source: body})
	}

	return out, nil
}

// Close 关闭全部索引.
func (e *BleveEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, idx := range e.indexes {
		errs = append(errs, idx.Close())
		delete(e.indexes, name)
	}

	return errors.Join(errs...)
}

func decodeSource(fields map[string]any) (map[string]any, error) {
	raw, _ := fields[sourceField].(string)
	if raw == "" {
		return map[string]any{}, nil
	}

	body := map[string]any{}
	if err := sonic.UnmarshalString(raw, &body); err != nil {
		return nil, err
	}

	return body, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, name)
}
