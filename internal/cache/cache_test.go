package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-patch/internal/patch"
)

var (
	tiers  = []string{"A", "B", "C"}
	schema = patch.Schema{
		patch.FieldTier: "t", patch.FieldID: "i", patch.FieldArea: "a",
		patch.FieldCoreArea: "c", patch.FieldContiguity: "g",
		patch.FieldPerimeterAreaRatio: "p", patch.FieldENN: "e",
	}
	bbox = orb.Bound{Min: orb.Point{103.1, 3.6}, Max: orb.Point{103.6, 4.1}}
	ns   = Namespace("kuantan", "patches.geojson")
)

func build(t *testing.T, s patch.FilterState) patch.Predicate {
	t.Helper()
	p, err := patch.BuildFilter(tiers, s, schema)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestKey(t *testing.T) {
	min := 2.0
	all := build(t, patch.DefaultFilter(tiers))
	none := build(t, patch.FilterState{})
	some := build(t, patch.FilterState{Tiers: []string{"B", "A"}})
	same := build(t, patch.FilterState{Tiers: []string{"A", "B"}})
	bounded := build(t, patch.FilterState{Tiers: tiers, MinArea: &min})

	if Key(ns, some, bbox, 12) != Key(ns, same, bbox, 12) {
		t.Fatal("tier order changed the key")
	}
	keys := map[string]string{
		"all":     Key(ns, all, bbox, 12),
		"none":    Key(ns, none, bbox, 12),
		"some":    Key(ns, some, bbox, 12),
		"bounded": Key(ns, bounded, bbox, 12),
		"zoom":    Key(ns, all, bbox, 13),
		"moved":   Key(ns, all, orb.Bound{Min: orb.Point{103.2, 3.6}, Max: bbox.Max}, 12),
	}
	seen := map[string]string{}
	for name, k := range keys {
		if other, dup := seen[k]; dup {
			t.Fatalf("%s and %s share a key", name, other)
		}
		seen[k] = name
	}
}

func TestKeyNamespaced(t *testing.T) {
	p := build(t, patch.DefaultFilter(tiers))
	a := Key(Namespace("kuantan", "patches.geojson"), p, bbox, 12)
	b := Key(Namespace("klang-valley", "patches.geojson"), p, bbox, 12)
	c := Key(Namespace("kuantan", "patches-v2.parquet"), p, bbox, 12)
	if a == b || a == c || b == c {
		t.Fatalf("keys collide across namespaces: %s %s %s", a, b, c)
	}
	if !strings.HasPrefix(a, "patch:stats:kuantan:patches.geojson:") {
		t.Fatalf("key=%s, want deployment and source prefix", a)
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2, time.Minute)

	c.Set(ctx, "a", patch.Summary{Count: 1})
	c.Set(ctx, "b", patch.Summary{Count: 2})
	if s, ok := c.Get(ctx, "a"); !ok || s.Count != 1 {
		t.Fatalf("a=%+v %v", s, ok)
	}
	// b is now least recently used.
	c.Set(ctx, "c", patch.Summary{Count: 3})
	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatal("b not evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("len=%d", c.Len())
	}
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(4, 20*time.Millisecond)
	c.Set(ctx, "a", patch.Summary{Count: 1})
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Fatal("fresh entry missing")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("expired entry returned")
	}
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	c.Set(context.Background(), "k", patch.Summary{Count: 1})
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatal("nop cache hit")
	}
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("PATCH_TEST_REDIS")
	if addr == "" {
		t.Skip("PATCH_TEST_REDIS not set")
	}
	ctx := context.Background()
	rc, err := OpenRedis(ctx, addr, "", 0)
	if err != nil {
		t.Skip(err)
	}
	c := NewRedis(rc, time.Minute)
	defer c.Close()

	key := Key(ns, build(t, patch.DefaultFilter(tiers)), bbox, 12)
	want := patch.Summary{Count: 3, TotalArea: 6.75, ENNSum: 40, ENNSamples: 2}
	c.Set(ctx, key, want)
	got, ok := c.Get(ctx, key)
	if !ok || got != want {
		t.Fatalf("got=%+v %v", got, ok)
	}
	if _, ok := c.Get(ctx, key+"-missing"); ok {
		t.Fatal("hit on missing key")
	}
}
