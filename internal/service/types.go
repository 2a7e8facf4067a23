// Package service contains the patch viewer's business logic: the patch
// index, viewer sessions, tile and source files, and change events.
package service

import (
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-patch/internal/patch"
)

// Rendered is a patch as drawn in one tile of the viewport. A patch that
// crosses a tile seam is rendered once per tile.
type Rendered struct {
	Tile    maptile.Tile
	Feature patch.Feature
}

// SourceFile represents a patch source data file (GeoJSON or GeoParquet).
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"kuantan.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MiB"`
	FileType string `json:"fileType" doc:"File type: GeoJSON or GeoParquet" example:"GeoJSON"`
	Active   bool   `json:"active" doc:"Whether this is the deployment's patch source"`
}

// TileFile represents a PMTiles file.
type TileFile struct {
	Name string `json:"name" doc:"PMTiles file name" example:"kuantan.pmtiles"`
	Size string `json:"size" doc:"Human-readable file size" example:"5.4 MiB"`
}

// TileInfo is the header summary of a PMTiles file.
type TileInfo struct {
	Name    string     `json:"name" doc:"PMTiles file name"`
	MinZoom int        `json:"minZoom" doc:"Lowest zoom level"`
	MaxZoom int        `json:"maxZoom" doc:"Highest zoom level"`
	Tiles   uint64     `json:"tiles" doc:"Addressed tile count"`
	Bounds  [4]float64 `json:"bounds" doc:"West, south, east, north in degrees"`
	Layers  []string   `json:"layers" doc:"Vector layer ids in the tiles"`
}
