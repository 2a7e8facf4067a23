package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/plat-patch/internal/patch"
	"github.com/joeblew999/plat-patch/internal/tiler"
	"github.com/joeblew999/plat-patch/internal/tiler/gotiler"
)

// TilerService generates PMTiles for the loaded patches.
type TilerService struct {
	tilesDir string
	patches  *PatchService
	schema   patch.Schema
	engine   tiler.Tiler
	bus      *EventBus
}

// NewTilerService creates a tiler service writing into dataDir/tiles.
func NewTilerService(dataDir string, patches *PatchService, schema patch.Schema, bus *EventBus) *TilerService {
	return &TilerService{
		tilesDir: filepath.Join(dataDir, "tiles"),
		patches:  patches,
		schema:   schema,
		engine:   gotiler.New(),
		bus:      bus,
	}
}

// TileGenerateOptions contains options for tile generation.
type TileGenerateOptions struct {
	OutputName string `json:"outputName" required:"true" doc:"Output PMTiles name" example:"kuantan"`
	LayerName  string `json:"layerName,omitempty" doc:"Vector layer name in tiles (defaults to patches)"`
	MinZoom    int    `json:"minZoom,omitempty" minimum:"0" maximum:"14" doc:"Minimum zoom level"`
	MaxZoom    int    `json:"maxZoom,omitempty" minimum:"0" maximum:"14" doc:"Maximum zoom level"`
}

// ProgressFunc is called with progress updates during tile generation.
type ProgressFunc func(progress int, status string)

// Generate tiles the patch index, keeping only mapped attributes, and
// returns the output file name.
func (s *TilerService) Generate(ctx context.Context, opts TileGenerateOptions, onProgress ProgressFunc) (string, error) {
	if opts.LayerName == "" {
		opts.LayerName = "patches"
	}
	if opts.MinZoom == 0 && opts.MaxZoom == 0 {
		opts.MaxZoom = tiler.MaxZoom
	}
	if strings.ContainsAny(opts.OutputName, `/\`) || strings.Contains(opts.OutputName, "..") || opts.OutputName == "" {
		return "", ErrInvalidName
	}
	if !strings.HasSuffix(opts.OutputName, ".pmtiles") {
		opts.OutputName += ".pmtiles"
	}
	if s.patches.Count() == 0 {
		return "", fmt.Errorf("no patches loaded")
	}

	if err := os.MkdirAll(s.tilesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create tiles directory: %w", err)
	}
	if onProgress != nil {
		onProgress(10, "Collecting patches...")
	}
	fc := s.patches.FeatureCollection()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if onProgress != nil {
		onProgress(30, fmt.Sprintf("Tiling %d patches with %s tiler...", len(fc.Features), s.engine.Name()))
	}

	out := filepath.Join(s.tilesDir, opts.OutputName)
	err := s.engine.Tile(fc, out, tiler.TileConfig{
		Layer:   opts.LayerName,
		MinZoom: opts.MinZoom,
		MaxZoom: opts.MaxZoom,
		Fields:  s.schema.Attributes(),
	})
	if err != nil {
		return "", fmt.Errorf("tile generation failed: %w", err)
	}

	if onProgress != nil {
		onProgress(100, "Tiles generated successfully!")
	}
	if s.bus != nil {
		s.bus.Publish(Event{Resource: "tiles", Action: "created", ID: opts.OutputName})
	}
	return opts.OutputName, nil
}

// TilesDir returns the tiles directory path.
func (s *TilerService) TilesDir() string {
	return s.tilesDir
}
