// Package gotiler cuts the patch layer into a PMTiles archive in pure Go,
// for hosts without tippecanoe.
//
// Geometry handling uses paulmach/orb; the archive is written by
// internal/pmtiles.
package gotiler

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-patch/internal/pmtiles"
	"github.com/joeblew999/plat-patch/internal/tiler"
)

// GoTiler implements tiler.Tiler using pure Go libraries.
type GoTiler struct{}

// New creates a new GoTiler.
func New() *GoTiler {
	return &GoTiler{}
}

// Name returns the engine name.
func (g *GoTiler) Name() string {
	return "go"
}

// Tile writes fc as gzipped MVT tiles into a PMTiles file at outputPath.
func (g *GoTiler) Tile(fc *geojson.FeatureCollection, outputPath string, cfg tiler.TileConfig) error {
	if fc == nil || len(fc.Features) == 0 {
		return fmt.Errorf("no features to tile")
	}
	if cfg.Layer == "" {
		cfg.Layer = "patches"
	}
	if cfg.MinZoom < 0 {
		cfg.MinZoom = 0
	}
	if cfg.MaxZoom <= 0 || cfg.MaxZoom > tiler.MaxZoom {
		cfg.MaxZoom = tiler.MaxZoom
	}
	if cfg.MinZoom > cfg.MaxZoom {
		cfg.MinZoom = cfg.MaxZoom
	}

	source := keepFields(fc, cfg.Fields)
	if len(source.Features) == 0 {
		return fmt.Errorf("no features with geometry to tile")
	}

	var tiles []pmtiles.Tile
	for z := cfg.MinZoom; z <= cfg.MaxZoom; z++ {
		for t, data := range g.zoomLevel(source, maptile.Zoom(z), cfg.Layer) {
			tiles = append(tiles, pmtiles.Tile{
				ID:   pmtiles.ZxyToID(uint8(t.Z), t.X, t.Y),
				Data: data,
			})
		}
	}
	if len(tiles) == 0 {
		return fmt.Errorf("no tiles to write")
	}

	bound := source.Features[0].Geometry.Bound()
	for _, f := range source.Features[1:] {
		bound = bound.Union(f.Geometry.Bound())
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	err = pmtiles.Write(f, tiles, pmtiles.Options{
		MinZoom: uint8(cfg.MinZoom),
		MaxZoom: uint8(cfg.MaxZoom),
		Bounds:  bound,
		Metadata: map[string]any{
			"name":    cfg.Layer,
			"format":  "pbf",
			"minzoom": cfg.MinZoom,
			"maxzoom": cfg.MaxZoom,
			"vector_layers": []map[string]any{{
				"id":      cfg.Layer,
				"fields":  fieldTypes(source),
				"minzoom": cfg.MinZoom,
				"maxzoom": cfg.MaxZoom,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("writing pmtiles: %w", err)
	}
	return f.Close()
}

// zoomLevel encodes every non-empty tile at one zoom.
func (g *GoTiler) zoomLevel(fc *geojson.FeatureCollection, zoom maptile.Zoom, layerName string) map[maptile.Tile][]byte {
	byTile := make(map[maptile.Tile][]*geojson.Feature)
	for _, f := range fc.Features {
		for _, t := range tiler.TilesInBounds(f.Geometry.Bound(), zoom) {
			if tiler.Intersects(f.Geometry, t.Bound()) {
				byTile[t] = append(byTile[t], f)
			}
		}
	}

	result := make(map[maptile.Tile][]byte, len(byTile))
	for t, features := range byTile {
		if data := encodeTile(t, features, layerName); len(data) > 0 {
			result[t] = data
		}
	}
	return result
}

// encodeTile clips, simplifies and projects features into one MVT tile.
func encodeTile(t maptile.Tile, features []*geojson.Feature, layerName string) []byte {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		// mvt clips and projects in place; work on copies.
		clone := geojson.NewFeature(orb.Clone(f.Geometry))
		clone.ID = f.ID
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		fc.Append(clone)
	}

	layer := mvt.NewLayer(layerName, fc)
	if eps := simplifyEpsilon(t.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(t.Bound())
	layer.ProjectToTile(t)
	// Micro patches are small; keep anything larger than half a tile unit.
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil
	}
	return data
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees per zoom.
// Tier 6 micro patches are well under a hectare, so tolerances stay small.
func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom >= 13:
		return 0
	case zoom >= 10:
		return 0.000005
	case zoom >= 7:
		return 0.00005
	default:
		return 0.0002
	}
}

// keepFields copies fc with only the listed properties on each feature.
func keepFields(fc *geojson.FeatureCollection, fields []string) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		nf := geojson.NewFeature(f.Geometry)
		nf.ID = f.ID
		if len(fields) == 0 {
			for k, v := range f.Properties {
				nf.Properties[k] = v
			}
		} else {
			for _, k := range fields {
				if v, ok := f.Properties[k]; ok {
					nf.Properties[k] = v
				}
			}
		}
		out.Append(nf)
	}
	return out
}

// fieldTypes describes attributes the way tippecanoe's vector_layers does.
func fieldTypes(fc *geojson.FeatureCollection) map[string]string {
	types := map[string]string{}
	for _, f := range fc.Features {
		for k, v := range f.Properties {
			if _, ok := types[k]; ok {
				continue
			}
			switch v.(type) {
			case float64, int, int64:
				types[k] = "Number"
			case bool:
				types[k] = "Boolean"
			case string:
				types[k] = "String"
			}
		}
	}
	return types
}

var _ tiler.Tiler = (*GoTiler)(nil)
