package tiler

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func TestTilesInBounds(t *testing.T) {
	// Straddles the prime meridian and the equator: four tiles at zoom 1.
	b := orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}}
	tiles := TilesInBounds(b, 1)
	if len(tiles) != 4 {
		t.Fatalf("tiles=%d, want 4", len(tiles))
	}
	if TileCount(b, 1) != 4 {
		t.Fatalf("count=%d, want 4", TileCount(b, 1))
	}
	if got := TilesInBounds(b, 0); len(got) != 1 || got[0] != maptile.New(0, 0, 0) {
		t.Fatalf("zoom 0 tiles=%v", got)
	}
}

func TestIntersects(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	tests := []struct {
		name string
		geom orb.Geometry
		want bool
	}{
		{"vertex inside", orb.Polygon{orb.Ring{{0.5, 0.5}, {2, 0.5}, {2, 2}, {0.5, 0.5}}}, true},
		{"covers bound", orb.Polygon{orb.Ring{{-1, -1}, {2, -1}, {2, 2}, {-1, 2}, {-1, -1}}}, true},
		{"thin strip through", orb.Polygon{orb.Ring{{-1, 0.4}, {2, 0.4}, {2, 0.6}, {-1, 0.6}, {-1, 0.4}}}, true},
		{"disjoint", orb.Polygon{orb.Ring{{3, 3}, {4, 3}, {4, 4}, {3, 3}}}, false},
		{"bbox overlap only", orb.Polygon{orb.Ring{{0.9, 1.5}, {1.5, 0.9}, {1.5, 1.5}, {0.9, 1.5}}}, false},
		{"point", orb.Point{0.2, 0.2}, true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Intersects(tt.geom, bound); got != tt.want {
				t.Fatalf("Intersects=%v, want %v", got, tt.want)
			}
		})
	}
}
