package patch

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// EarthRadiusMeters is the mean earth radius used for great-circle distances.
const EarthRadiusMeters = 6371008.8

// DeriveENN fills in a missing ENN with the shortest great-circle distance
// between any vertex of the patch and any vertex of another patch. Values
// already present are left alone. It returns how many features were filled.
//
// Vertex distance overestimates true edge-to-edge distance slightly for
// coarse geometries; it is only a fallback for datasets without ENN.
func DeriveENN(features []Feature) int {
	verts := make([][]s2.LatLng, len(features))
	bounds := make([]orb.Bound, len(features))
	for i, f := range features {
		if f.Geometry == nil {
			continue
		}
		bounds[i] = f.Geometry.Bound()
		for _, p := range vertices(f.Geometry) {
			verts[i] = append(verts[i], s2.LatLngFromDegrees(p.Lat(), p.Lon()))
		}
	}

	filled := 0
	for i := range features {
		if features[i].ENN != nil || len(verts[i]) == 0 {
			continue
		}
		best := math.Inf(1)
		for j := range features {
			if i == j || len(verts[j]) == 0 {
				continue
			}
			// Parts of the same patch are not its neighbours.
			if id := features[i].ID; id != "" && features[j].ID == id {
				continue
			}
			// Bounding boxes further apart than the current best cannot win.
			if lower := boundGap(bounds[i], bounds[j]); lower >= best {
				continue
			}
			for _, a := range verts[i] {
				for _, b := range verts[j] {
					if d := a.Distance(b).Radians() * EarthRadiusMeters; d < best {
						best = d
					}
				}
			}
		}
		if !math.IsInf(best, 1) {
			v := best
			features[i].ENN = &v
			filled++
		}
	}
	return filled
}

// boundGap is a lower bound on the distance in metres between two bounds.
func boundGap(a, b orb.Bound) float64 {
	if a.Intersects(b) {
		return 0
	}
	dLon := math.Max(0, math.Max(a.Min.Lon()-b.Max.Lon(), b.Min.Lon()-a.Max.Lon()))
	dLat := math.Max(0, math.Max(a.Min.Lat()-b.Max.Lat(), b.Min.Lat()-a.Max.Lat()))
	lat := math.Max(math.Abs(a.Min.Lat()), math.Abs(a.Max.Lat()))
	lat = math.Max(lat, math.Max(math.Abs(b.Min.Lat()), math.Abs(b.Max.Lat())))
	// Shrink the longitude gap by the widest latitude to stay a lower bound.
	x := dLon * math.Cos(lat*math.Pi/180)
	deg := math.Hypot(x, dLat)
	return deg * math.Pi / 180 * EarthRadiusMeters * 0.9
}

func vertices(g orb.Geometry) []orb.Point {
	switch geom := g.(type) {
	case orb.Point:
		return []orb.Point{geom}
	case orb.MultiPoint:
		return geom
	case orb.LineString:
		return geom
	case orb.Ring:
		return geom
	case orb.Polygon:
		var pts []orb.Point
		for _, r := range geom {
			pts = append(pts, r...)
		}
		return pts
	case orb.MultiPolygon:
		var pts []orb.Point
		for _, poly := range geom {
			pts = append(pts, vertices(poly)...)
		}
		return pts
	case orb.MultiLineString:
		var pts []orb.Point
		for _, ls := range geom {
			pts = append(pts, ls...)
		}
		return pts
	}
	return nil
}
