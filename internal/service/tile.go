package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/joeblew999/plat-patch/internal/pmtiles"
)

// TileService manages PMTiles files.
type TileService struct {
	tilesDir string
}

// NewTileService creates a new tile service.
func NewTileService(dataDir string) *TileService {
	return &TileService{
		tilesDir: filepath.Join(dataDir, "tiles"),
	}
}

// List returns all available PMTiles files.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".pmtiles" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, TileFile{
			Name: entry.Name(),
			Size: formatSize(info.Size()),
		})
	}

	return files, nil
}

// Info reads the header of a PMTiles file.
func (s *TileService) Info(name string) (TileInfo, error) {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || filepath.Ext(name) != ".pmtiles" {
		return TileInfo{}, ErrInvalidName
	}
	h, md, err := pmtiles.ReadMetadata(filepath.Join(s.tilesDir, name))
	if err != nil {
		return TileInfo{}, fmt.Errorf("reading %s: %w", name, err)
	}
	b := h.Bound()
	return TileInfo{
		Name:    name,
		MinZoom: int(h.MinZoom),
		MaxZoom: int(h.MaxZoom),
		Tiles:   h.AddressedTilesCount,
		Bounds:  [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
		Layers:  vectorLayers(md),
	}, nil
}

// vectorLayers lists the layer ids named in tile metadata.
func vectorLayers(md map[string]any) []string {
	layers := []string{}
	list, _ := md["vector_layers"].([]any)
	for _, l := range list {
		m, _ := l.(map[string]any)
		if id, ok := m["id"].(string); ok && id != "" {
			layers = append(layers, id)
		}
	}
	return layers
}

// TilesDir returns the path to the tiles directory.
func (s *TileService) TilesDir() string {
	return s.tilesDir
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
