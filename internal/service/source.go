package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for file names that escape the data directory.
var ErrInvalidName = errors.New("invalid filename")

// sourceTypes maps supported patch source extensions to their type.
var sourceTypes = map[string]string{
	".geojson":    "GeoJSON",
	".json":       "GeoJSON",
	".parquet":    "GeoParquet",
	".geoparquet": "GeoParquet",
}

// SourceService manages patch source files.
type SourceService struct {
	sourcesDir string
	active     string
}

// NewSourceService creates a source service. active is the deployment's
// patch source file name, marked in listings.
func NewSourceService(dataDir, active string) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
		active:     active,
	}
}

// List returns all available source files.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		fileType, ok := SourceType(entry.Name())
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			FileType: fileType,
			Active:   entry.Name() == s.active,
		})
	}

	return files, nil
}

// Resolve returns the path of a source file, rejecting path traversal,
// unsupported types and missing files.
func (s *SourceService) Resolve(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", ErrInvalidName
	}
	if _, ok := SourceType(name); !ok {
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(name))
	}
	path := filepath.Join(s.sourcesDir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("source file not found: %s: %w", name, os.ErrNotExist)
		}
		return "", err
	}
	return path, nil
}

// Active returns the deployment's source file name.
func (s *SourceService) Active() string {
	return s.active
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}

// SourceType reports the file type for a source file name.
func SourceType(name string) (string, bool) {
	t, ok := sourceTypes[strings.ToLower(filepath.Ext(name))]
	return t, ok
}
