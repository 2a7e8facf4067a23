// Package tiler defines tile generation for the patch layer and the slippy
// tile geometry shared with the visible-feature query.
package tiler

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
)

// MaxZoom is the deepest zoom level tiles are cut at.
const MaxZoom = 14

// TileConfig controls one tile generation run.
type TileConfig struct {
	Layer   string   // vector layer name inside the tiles
	MinZoom int      // inclusive
	MaxZoom int      // inclusive, clamped to MaxZoom
	Fields  []string // attributes kept on each feature; empty keeps all
}

// Tiler writes a feature collection as a PMTiles archive.
type Tiler interface {
	Name() string
	Tile(fc *geojson.FeatureCollection, outputPath string, cfg TileConfig) error
}

// TilesInBounds returns every tile at zoom that touches bounds.
func TilesInBounds(bounds orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	minTile := maptile.At(bounds.Min, zoom)
	maxTile := maptile.At(bounds.Max, zoom)

	// Tile Y grows southwards, so the corners come back swapped.
	minX, maxX := minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	tiles := make([]maptile.Tile, 0, int(maxX-minX+1)*int(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

// TileCount is the number of tiles TilesInBounds would return.
func TileCount(bounds orb.Bound, zoom maptile.Zoom) int {
	a := maptile.At(bounds.Min, zoom)
	b := maptile.At(bounds.Max, zoom)
	dx := int(a.X) - int(b.X)
	dy := int(a.Y) - int(b.Y)
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return (dx + 1) * (dy + 1)
}

// Intersects reports whether geom overlaps bound, going past the bounding
// box test for polygons.
func Intersects(geom orb.Geometry, bound orb.Bound) bool {
	if geom == nil || !geom.Bound().Intersects(bound) {
		return false
	}

	switch g := geom.(type) {
	case orb.Point:
		return bound.Contains(g)

	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if bound.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{
			bound.Min,
			{bound.Max[0], bound.Min[1]},
			bound.Max,
			{bound.Min[0], bound.Max[1]},
			bound.Center(),
		}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return edgesCross(g, bound)

	case orb.MultiPolygon:
		for _, poly := range g {
			if Intersects(poly, bound) {
				return true
			}
		}
		return false

	default:
		return true
	}
}

// edgesCross catches polygons that pass through a bound without a vertex
// inside it and without covering any corner, e.g. a thin strip.
func edgesCross(poly orb.Polygon, b orb.Bound) bool {
	sides := [4][2]orb.Point{
		{b.Min, {b.Max[0], b.Min[1]}},
		{{b.Max[0], b.Min[1]}, b.Max},
		{b.Max, {b.Min[0], b.Max[1]}},
		{{b.Min[0], b.Max[1]}, b.Min},
	}
	for _, ring := range poly {
		for i := 1; i < len(ring); i++ {
			for _, s := range sides {
				if segmentsCross(ring[i-1], ring[i], s[0], s[1]) {
					return true
				}
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}
