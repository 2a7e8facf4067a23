package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-patch/internal/patch"
	"github.com/joeblew999/plat-patch/internal/tiler"
)

// maxViewportTiles caps how many tiles a visible-feature query walks; wider
// viewports are evaluated at a coarser zoom.
const maxViewportTiles = 256

// PatchLoader produces features from an external store, e.g. DuckDB.
type PatchLoader func(ctx context.Context, s patch.Schema) ([]patch.Feature, error)

// PatchService is the in-memory patch index.
type PatchService struct {
	schema patch.Schema

	mu       sync.RWMutex
	features []patch.Feature
	byID     map[string]int
}

// NewPatchService creates an empty index for a schema.
func NewPatchService(schema patch.Schema) *PatchService {
	return &PatchService{
		schema: schema,
		byID:   make(map[string]int),
	}
}

// LoadGeoJSON replaces the index with the features of a GeoJSON file.
func (s *PatchService) LoadGeoJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading patches: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("parsing patches: %w", err)
	}
	features := make([]patch.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		features = append(features, patch.Decode(f, s.schema))
	}
	s.Replace(features)
	return nil
}

// Load replaces the index using loader.
func (s *PatchService) Load(ctx context.Context, loader PatchLoader) error {
	features, err := loader(ctx, s.schema)
	if err != nil {
		return err
	}
	s.Replace(features)
	return nil
}

// Replace swaps in a new feature set.
func (s *PatchService) Replace(features []patch.Feature) {
	byID := make(map[string]int, len(features))
	for i, f := range features {
		if f.ID == "" {
			continue
		}
		if _, dup := byID[f.ID]; !dup {
			byID[f.ID] = i
		}
	}
	s.mu.Lock()
	s.features = features
	s.byID = byID
	s.mu.Unlock()
}

// DeriveENN fills missing ENN values from geometry.
func (s *PatchService) DeriveENN() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return patch.DeriveENN(s.features)
}

// Count returns the number of loaded features.
func (s *PatchService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.features)
}

// Get returns a patch by id.
func (s *PatchService) Get(id string) (patch.Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return patch.Feature{}, false
	}
	return s.features[i], true
}

// Samples returns the raw properties of up to n features, for schema checks.
func (s *PatchService) Samples(n int) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.features) {
		n = len(s.features)
	}
	out := make([]map[string]any, 0, n)
	for _, f := range s.features[:n] {
		out = append(out, f.Properties)
	}
	return out
}

// Bound returns the extent of all patches.
func (s *PatchService) Bound() (orb.Bound, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var b orb.Bound
	found := false
	for _, f := range s.features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}

// FeatureCollection exports the index as GeoJSON, e.g. for tiling.
func (s *PatchService) FeatureCollection() *geojson.FeatureCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fc := geojson.NewFeatureCollection()
	for _, f := range s.features {
		if f.Geometry == nil {
			continue
		}
		gf := geojson.NewFeature(f.Geometry)
		gf.Properties = f.Props(s.schema)
		fc.Append(gf)
	}
	return fc
}

// Rendered returns what the map draws for a viewport: one entry per
// (tile, patch) pair for patches passing pred, in tile order. A patch
// spanning several tiles appears several times.
func (s *PatchService) Rendered(viewport orb.Bound, zoom float64, pred patch.Predicate) []Rendered {
	z := viewportZoom(viewport, zoom)
	tiles := tiler.TilesInBounds(viewport, z)
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Rendered
	for _, t := range tiles {
		tb := t.Bound()
		if !tb.Intersects(viewport) {
			continue
		}
		for _, f := range s.features {
			if !pred.Match(f) {
				continue
			}
			if !tiler.Intersects(f.Geometry, tb) || !tiler.Intersects(f.Geometry, viewport) {
				continue
			}
			out = append(out, Rendered{Tile: t, Feature: f})
		}
	}
	return out
}

// Visible aggregates the rendered features of a viewport.
func (s *PatchService) Visible(viewport orb.Bound, zoom float64, pred patch.Predicate) patch.Summary {
	rendered := s.Rendered(viewport, zoom, pred)
	features := make([]patch.Feature, len(rendered))
	for i, r := range rendered {
		features[i] = r.Feature
	}
	return patch.Aggregate(features)
}

func viewportZoom(viewport orb.Bound, zoom float64) maptile.Zoom {
	z := int(math.Floor(zoom))
	if z < 0 {
		z = 0
	}
	if z > tiler.MaxZoom {
		z = tiler.MaxZoom
	}
	for z > 0 && tiler.TileCount(viewport, maptile.Zoom(z)) > maxViewportTiles {
		z--
	}
	return maptile.Zoom(z)
}

// TierSummary aggregates the whole index per tier.
func (s *PatchService) TierSummary(universe []string) []patch.TierStat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return patch.SummarizeTiers(universe, s.features)
}
