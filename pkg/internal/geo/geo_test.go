package geo

import (
	"strings"
	"testing"
)

const sampleCSV = `zipcode,latitude,longitude,city
33101,25.7743,-80.1937,Miami
10001, 40.7506, -73.9972, New York
`

func TestLoadSkipsHeader(t *testing.T) {
	d, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if d.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", d.Len())
	}

	loc, ok := d.Lookup("10001")
	if !ok || loc.City != "New York" || loc.Latitude != 40.7506 {
		t.Fatalf("unexpected lookup: %+v %v", loc, ok)
	}
}

func TestLoadRejectsBadCoordinates(t *testing.T) {
	if _, err := Load(strings.NewReader("33101,north,-80.1,Miami\n")); err == nil {
		t.Fatal("expected latitude error")
	}
}

func TestNormalizeZip(t *testing.T) {
	cases := map[string]string{
		" 33101 ":    "33101",
		"33101-1234": "33101",
		"":           "",
		"A1-B":       "A1-B",
	}

	for in, want := range cases {
		if got := NormalizeZip(in); got != want {
			t.Errorf("NormalizeZip(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCounterResolve(t *testing.T) {
	d, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	c := NewCounter()
	c.Add("33101")
	c.Add("33101-0001")
	c.Add("99999")
	c.Add("  ")

	stats := c.Resolve(d)
	if len(stats) != 2 {
		t.Fatalf("expected 2 zipcodes, got %d", len(stats))
	}

	miami := stats["33101"]
	if miami.Count != 2 || miami.Latitude == nil || *miami.Latitude != 25.7743 || miami.City != "Miami" {
		t.Fatalf("unexpected miami stat: %+v", miami)
	}

	unknown := stats["99999"]
	if unknown.Count != 1 || unknown.Latitude != nil {
		t.Fatalf("unknown zipcode should carry count only: %+v", unknown)
	}

	if zips := c.Zips(); len(zips) != 2 || zips[0] != "33101" {
		t.Fatalf("unexpected zips order: %v", zips)
	}
}
