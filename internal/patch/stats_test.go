package patch

import (
	"fmt"
	"testing"
)

func TestAggregateDedupsByID(t *testing.T) {
	var rendered []Feature
	for i := 0; i < 9; i++ {
		rendered = append(rendered, feature(fmt.Sprintf("p%d", i), testTiers[i%6], 1))
	}
	// p3 is cut by a tile seam and rendered twice.
	rendered = append(rendered, feature("p3", testTiers[3], 100))

	s := Aggregate(rendered)
	if s.Count != 9 {
		t.Fatalf("count=%d, want 9", s.Count)
	}
	if s.TotalArea != 9 {
		t.Fatalf("area=%v, want 9 (first occurrence wins)", s.TotalArea)
	}
}

func TestAggregateScenario(t *testing.T) {
	rendered := []Feature{
		{ID: "a", Area: f64(1.5), ENN: f64(10)},
		{ID: "b", Area: f64(2.25)},
		{ID: "c", Area: f64(3.0), ENN: f64(30)},
	}
	r := Aggregate(rendered).Readout()
	if r.Count != "3" {
		t.Errorf("count=%q", r.Count)
	}
	if r.Area != "6.75 ha" {
		t.Errorf("area=%q, want 6.75 ha", r.Area)
	}
	if r.ENN != "20.00 m" {
		t.Errorf("enn=%q, want 20.00 m", r.ENN)
	}
}

func TestAggregateNoENNSamples(t *testing.T) {
	s := Aggregate([]Feature{{ID: "a", Area: f64(2)}, {ID: "b"}})
	if _, ok := s.MeanENN(); ok {
		t.Fatal("mean reported without samples")
	}
	if got := s.Readout().ENN; got != ENNPlaceholder {
		t.Fatalf("enn=%q, want placeholder", got)
	}

	empty := Aggregate(nil).Readout()
	if empty.Count != "0" || empty.Area != "0.00 ha" || empty.ENN != ENNPlaceholder {
		t.Fatalf("empty readout=%+v", empty)
	}
}

func TestAggregateSkipsFeaturesWithoutID(t *testing.T) {
	s := Aggregate([]Feature{{Area: f64(5)}, {ID: "x", Area: f64(1)}})
	if s.Count != 1 || s.TotalArea != 1 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestReadoutGroupsThousands(t *testing.T) {
	r := Summary{Count: 12345, TotalArea: 1234.567}.Readout()
	if r.Count != "12,345" {
		t.Fatalf("count=%q, want 12,345", r.Count)
	}
	if r.Area != "1234.57 ha" {
		t.Fatalf("area=%q", r.Area)
	}
}

func TestSummarizeTiers(t *testing.T) {
	features := []Feature{
		{ID: "a", Tier: testTiers[0], Area: f64(1), ENN: f64(10)},
		{ID: "b", Tier: testTiers[0], Area: f64(2), ENN: f64(30)},
		{ID: "c", Tier: testTiers[2], Area: f64(4)},
		{ID: "d", Tier: "Unlisted", Area: f64(8)},
	}
	stats := SummarizeTiers(testTiers, features)
	if len(stats) != len(testTiers)+1 {
		t.Fatalf("stats=%d, want %d", len(stats), len(testTiers)+1)
	}
	if s := stats[0]; s.Count != 2 || s.TotalArea != 3 || s.MeanENN == nil || *s.MeanENN != 20 {
		t.Fatalf("tier 1=%+v", s)
	}
	if s := stats[1]; s.Count != 0 || s.MeanENN != nil {
		t.Fatalf("empty tier=%+v", s)
	}
	if s := stats[2]; s.Count != 1 || s.MeanENN != nil {
		t.Fatalf("tier 3=%+v", s)
	}
	if s := stats[len(stats)-1]; s.Tier != "Unlisted" || s.Count != 1 {
		t.Fatalf("unlisted=%+v", s)
	}
}
