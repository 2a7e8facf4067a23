package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-patch/internal/config"
	"github.com/joeblew999/plat-patch/internal/service"
)

type InfoHandler struct {
	dataDir    string
	dbOK       bool
	cache      string
	deployment *config.Deployment
	patches    *service.PatchService
}

func NewInfoHandler(dataDir string, dbOK bool, cache string, d *config.Deployment, patches *service.PatchService) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, cache: cache, deployment: d, patches: patches}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	Deployment string   `json:"deployment" doc:"Loaded deployment"`
	DataDir    string   `json:"data_dir" doc:"Data directory path"`
	Patches    int      `json:"patches" doc:"Patches in the index"`
	DB         bool     `json:"db" doc:"Whether DuckDB is available"`
	Cache      string   `json:"cache" doc:"Stats cache backend" enum:"none,memory,redis"`
	Features   []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"filter", "stats", "pmtiles"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	if h.deployment.DeriveENN {
		features = append(features, "derive-enn")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "plat-patch",
		Version:    "0.1.0",
		Deployment: h.deployment.Name,
		DataDir:    h.dataDir,
		Patches:    h.patches.Count(),
		DB:         h.dbOK,
		Cache:      h.cache,
		Features:   features,
	}}, nil
}
