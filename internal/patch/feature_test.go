package patch

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestDecode(t *testing.T) {
	gf := geojson.NewFeature(orb.Point{103.3, 3.8})
	gf.Properties = geojson.Properties{
		"Tier":   testTiers[1],
		"id":     float64(42),
		"area":   "12.5",
		"core":   3.0,
		"contig": 0.71,
		"para":   nil,
		"enn":    "n/a",
	}

	f := Decode(gf, testSchema)
	if f.ID != "42" {
		t.Errorf("id=%q, want 42", f.ID)
	}
	if f.Tier != testTiers[1] {
		t.Errorf("tier=%q", f.Tier)
	}
	if f.Area == nil || *f.Area != 12.5 {
		t.Errorf("area=%v, want 12.5", f.Area)
	}
	if f.PerimeterAreaRatio != nil {
		t.Errorf("para=%v, want nil", *f.PerimeterAreaRatio)
	}
	if f.ENN != nil {
		t.Errorf("enn=%v, want nil for non-numeric", *f.ENN)
	}
	if f.Geometry == nil {
		t.Error("geometry dropped")
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.25, 1.25, true},
		{int64(7), 7, true},
		{int32(-2), -2, true},
		{int8(-3), -3, true},
		{int16(300), 300, true},
		{uint8(9), 9, true},
		{uint16(65000), 65000, true},
		{uint(11), 11, true},
		{" 3.5 ", 3.5, true},
		{"", 0, false},
		{"abc", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := Number(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Number(%#v)=(%v,%v), want (%v,%v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFromPropertiesSmallInts(t *testing.T) {
	f := FromProperties(map[string]any{"Tier": "x", "id": int16(12), "area": uint8(4)}, nil, testSchema)
	if f.ID != "12" {
		t.Errorf("id=%q, want 12", f.ID)
	}
	if f.Area == nil || *f.Area != 4 {
		t.Errorf("area=%v, want 4", f.Area)
	}
}

func TestSchemaValidate(t *testing.T) {
	if err := testSchema.Validate(); err != nil {
		t.Fatal(err)
	}
	s := Schema{FieldTier: "Tier"}
	if err := s.Validate(); !errors.Is(err, ErrFieldUnmapped) {
		t.Fatalf("err=%v, want ErrFieldUnmapped", err)
	}
}

func TestSchemaCheckSample(t *testing.T) {
	full := map[string]any{"Tier": "x", "id": 1, "area": 1, "core": 1, "contig": 1, "para": 1, "enn": 1}
	if err := testSchema.CheckSample([]map[string]any{full}); err != nil {
		t.Fatal(err)
	}

	// Attributes may be spread across samples.
	a := map[string]any{"Tier": "x", "id": 1, "area": 1, "core": 1}
	b := map[string]any{"contig": 1, "para": 1, "enn": 1}
	if err := testSchema.CheckSample([]map[string]any{a, b}); err != nil {
		t.Fatal(err)
	}

	err := testSchema.CheckSample([]map[string]any{a})
	if !errors.Is(err, ErrAttributeMissing) {
		t.Fatalf("err=%v, want ErrAttributeMissing", err)
	}

	if err := testSchema.CheckSample(nil); err != nil {
		t.Fatalf("empty sample: %v", err)
	}
}

func TestProps(t *testing.T) {
	f := Feature{ENN: f64(12.5), Properties: map[string]any{"enn": "n/a", "area": 3}}
	p := f.Props(testSchema)
	if p["enn"] != 12.5 || p["area"] != 3 {
		t.Fatalf("props=%v", p)
	}
	if f.Properties["enn"] != "n/a" {
		t.Fatal("source properties mutated")
	}

	f = Feature{ENN: f64(1), Properties: map[string]any{"enn": 40.0}}
	if f.Props(testSchema)["enn"] != 40.0 {
		t.Fatal("numeric source value replaced")
	}
}
