// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-patch/internal/config"
	"github.com/joeblew999/plat-patch/internal/db"
	"github.com/joeblew999/plat-patch/internal/humastar"
	"github.com/joeblew999/plat-patch/internal/logger"
	"github.com/joeblew999/plat-patch/internal/patch"
	"github.com/joeblew999/plat-patch/internal/prefs"
	"github.com/joeblew999/plat-patch/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Deployment *config.Deployment
	Patch      *service.PatchService
	Stats      *service.StatsService
	Tile       *service.TileService
	Source     *service.SourceService
	Tiler      *service.TilerService
	Prefs      *prefs.Store
	DB         *sql.DB
}

// RegisterRoutes registers every Register* method of the REST handler.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Patch ID" example:"1024"`
}

type NameInput struct {
	Name string `path:"name" doc:"PMTiles file name" example:"kuantan.pmtiles"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// PatchBody is one patch with its info panel rows.
type PatchBody struct {
	ID                 string           `json:"id" doc:"Patch ID"`
	Tier               string           `json:"tier" doc:"Tier value"`
	Area               *float64         `json:"area,omitempty" doc:"Patch area (ha)"`
	CoreArea           *float64         `json:"coreArea,omitempty" doc:"Core area (ha)"`
	Contiguity         *float64         `json:"contiguity,omitempty" doc:"Contiguity index"`
	PerimeterAreaRatio *float64         `json:"perimeterAreaRatio,omitempty" doc:"Perimeter-area ratio"`
	ENN                *float64         `json:"enn,omitempty" doc:"Nearest-neighbour distance (m)"`
	Bounds             [4]float64       `json:"bounds" doc:"West, south, east, north"`
	Info               []config.InfoRow `json:"info" doc:"Info panel rows"`
}

var patchActions = []humastar.ActionDef{
	{Rel: "select", Pattern: "/api/v1/viewer/select?id=%s", Method: "POST", Title: "Show in the info panel"},
}

// Actions links the patch to the viewer selection endpoint.
func (b PatchBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, patchActions)
}

// FilterBody is a built filter: the style expression plus what it keeps.
type FilterBody struct {
	Expression     []any    `json:"expression" nullable:"true" doc:"Style filter expression; null shows every patch"`
	ShowsAll       bool     `json:"showsAll" doc:"True when nothing is filtered"`
	MatchesNothing bool     `json:"matchesNothing" doc:"True when no tier is checked"`
	Tiers          []string `json:"tiers" doc:"Effective tiers in legend order"`
	MinArea        *float64 `json:"minArea,omitempty" doc:"Effective minimum area (ha)"`
	MaxArea        *float64 `json:"maxArea,omitempty" doc:"Effective maximum area (ha)"`
}

// StatsRequest asks for the visible-patch summary of a viewport.
type StatsRequest struct {
	Filter patch.FilterState `json:"filter" doc:"Sidebar filter state"`
	BBox   [4]float64        `json:"bbox" doc:"Viewport west, south, east, north"`
	Zoom   float64           `json:"zoom" minimum:"0" maximum:"24" doc:"Map zoom"`
}

// StatsBody is the summary and its formatted readout.
type StatsBody struct {
	Summary patch.Summary `json:"summary"`
	Readout patch.Readout `json:"readout"`
}

type TierBody struct {
	Name  string `json:"name" doc:"Tier value"`
	Color string `json:"color" doc:"Legend colour"`
}

type TierSummaryBody struct {
	Source string           `json:"source" doc:"Where the summary was computed: duckdb or memory" enum:"duckdb,memory"`
	Tiers  []patch.TierStat `json:"tiers"`
}

type GeneratedBody struct {
	Name    string `json:"name" doc:"Written PMTiles file"`
	Message string `json:"message" doc:"Result message"`
}

type ClientInput struct {
	ClientID string `path:"clientId" doc:"Viewer client ID"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterConfig registers deployment and legend routes.
func (h *APIHandler) RegisterConfig(api huma.API) {
	huma.Get(api, "/api/v1/config", h.GetConfig, huma.OperationTags("config"))
	huma.Get(api, "/api/v1/tiers", h.GetTiers, huma.OperationTags("config"))
	huma.Get(api, "/api/v1/tiers/summary", h.GetTierSummary, huma.OperationTags("config"))
}

// RegisterPatches registers patch lookup, filter and stats routes.
func (h *APIHandler) RegisterPatches(api huma.API) {
	huma.Get(api, "/api/v1/patches/{id}", h.GetPatch, huma.OperationTags("patches"))
	huma.Post(api, "/api/v1/filter", h.BuildFilter, huma.OperationTags("patches"))
	huma.Post(api, "/api/v1/stats", h.GetStats, huma.OperationTags("patches"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// RegisterTiles registers tile listing and generation routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
	huma.Get(api, "/api/v1/tiles/{name}", h.GetTileInfo, huma.OperationTags("tiles"))
	huma.Post(api, "/api/v1/tiles/generate", h.GenerateTiles, huma.OperationTags("tiles"))
}

// RegisterPrefs registers viewer preference routes.
func (h *APIHandler) RegisterPrefs(api huma.API) {
	huma.Get(api, "/api/v1/prefs/{clientId}", h.GetPrefs, huma.OperationTags("prefs"))
	huma.Put(api, "/api/v1/prefs/{clientId}", h.PutPrefs, huma.OperationTags("prefs"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetConfig(ctx context.Context, input *struct{}) (*struct{ Body config.Deployment }, error) {
	return &struct{ Body config.Deployment }{Body: *h.svc.Deployment}, nil
}

func (h *APIHandler) GetTiers(ctx context.Context, input *struct{}) (*struct{ Body []TierBody }, error) {
	tiers := make([]TierBody, 0, len(h.svc.Deployment.Tiers))
	for _, t := range h.svc.Deployment.Tiers {
		tiers = append(tiers, TierBody{Name: t.Name, Color: h.svc.Deployment.TierColor(t.Name)})
	}
	return &struct{ Body []TierBody }{Body: tiers}, nil
}

func (h *APIHandler) GetTierSummary(ctx context.Context, input *struct{}) (*struct{ Body TierSummaryBody }, error) {
	universe := h.svc.Deployment.TierNames()
	if h.svc.DB != nil {
		stats, err := db.TierSummary(ctx, h.svc.DB, h.svc.Deployment.Schema())
		if err == nil {
			return &struct{ Body TierSummaryBody }{Body: TierSummaryBody{
				Source: "duckdb", Tiers: db.OrderByUniverse(stats, universe),
			}}, nil
		}
		logger.L().Warn("tier_summary_duckdb", "err", err)
	}
	return &struct{ Body TierSummaryBody }{Body: TierSummaryBody{
		Source: "memory", Tiers: h.svc.Patch.TierSummary(universe),
	}}, nil
}

func (h *APIHandler) GetPatch(ctx context.Context, input *IDInput) (*struct{ Body PatchBody }, error) {
	f, ok := h.svc.Patch.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("patch not found")
	}
	body := PatchBody{
		ID:                 f.ID,
		Tier:               f.Tier,
		Area:               f.Area,
		CoreArea:           f.CoreArea,
		Contiguity:         f.Contiguity,
		PerimeterAreaRatio: f.PerimeterAreaRatio,
		ENN:                f.ENN,
		Info:               h.svc.Deployment.InfoRows(f.Props(h.svc.Deployment.Schema())),
	}
	if f.Geometry != nil {
		b := f.Geometry.Bound()
		body.Bounds = [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	return &struct{ Body PatchBody }{Body: body}, nil
}

func (h *APIHandler) buildFilter(state patch.FilterState) (patch.Predicate, error) {
	pred, err := patch.BuildFilter(h.svc.Deployment.TierNames(), state, h.svc.Deployment.Schema())
	if err != nil {
		return patch.Predicate{}, huma.Error422UnprocessableEntity(patch.Message(err))
	}
	return pred, nil
}

func (h *APIHandler) BuildFilter(ctx context.Context, input *struct{ Body patch.FilterState }) (*struct{ Body FilterBody }, error) {
	pred, err := h.buildFilter(input.Body)
	if err != nil {
		return nil, err
	}
	min, max := pred.Bounds()
	tiers := pred.Tiers()
	if tiers == nil {
		tiers = []string{}
	}
	return &struct{ Body FilterBody }{Body: FilterBody{
		Expression:     pred.Expression(),
		ShowsAll:       pred.IsNone(),
		MatchesNothing: pred.MatchesNothing(),
		Tiers:          tiers,
		MinArea:        min,
		MaxArea:        max,
	}}, nil
}

func (h *APIHandler) GetStats(ctx context.Context, input *struct{ Body StatsRequest }) (*struct{ Body StatsBody }, error) {
	b := input.Body.BBox
	if b[0] > b[2] || b[1] > b[3] {
		return nil, huma.Error422UnprocessableEntity("bbox must be west, south, east, north")
	}
	pred, err := h.buildFilter(input.Body.Filter)
	if err != nil {
		return nil, err
	}
	viewport := orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
	sum := h.svc.Stats.Visible(ctx, viewport, input.Body.Zoom, pred)
	return &struct{ Body StatsBody }{Body: StatsBody{Summary: sum, Readout: sum.Readout()}}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc == nil || h.svc.Source == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Source.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	if h.svc == nil || h.svc.Tile == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	tiles, err := h.svc.Tile.List()
	if err != nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	return &struct{ Body []service.TileFile }{Body: tiles}, nil
}

func (h *APIHandler) GetTileInfo(ctx context.Context, input *NameInput) (*struct{ Body service.TileInfo }, error) {
	info, err := h.svc.Tile.Info(input.Name)
	if err != nil {
		if errors.Is(err, service.ErrInvalidName) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error404NotFound("tiles not found", err)
	}
	return &struct{ Body service.TileInfo }{Body: info}, nil
}

func (h *APIHandler) GenerateTiles(ctx context.Context, input *struct{ Body service.TileGenerateOptions }) (*struct{ Body GeneratedBody }, error) {
	if h.svc.Tiler == nil {
		return nil, huma.Error503ServiceUnavailable("tiler not available")
	}
	opts := input.Body
	if opts.LayerName == "" {
		opts.LayerName = h.svc.Deployment.Layer.SourceLayer
	}
	name, err := h.svc.Tiler.Generate(ctx, opts, nil)
	if err != nil {
		if errors.Is(err, service.ErrInvalidName) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("tile generation failed", err)
	}
	return &struct{ Body GeneratedBody }{Body: GeneratedBody{Name: name, Message: "Tiles generated"}}, nil
}

func (h *APIHandler) GetPrefs(ctx context.Context, input *ClientInput) (*struct{ Body prefs.Prefs }, error) {
	if h.svc.Prefs == nil {
		return &struct{ Body prefs.Prefs }{Body: prefs.Defaults()}, nil
	}
	p, err := h.svc.Prefs.Get(ctx, input.ClientID)
	if err != nil {
		return nil, huma.Error500InternalServerError("reading prefs", err)
	}
	return &struct{ Body prefs.Prefs }{Body: p}, nil
}

func (h *APIHandler) PutPrefs(ctx context.Context, input *struct {
	ClientInput
	Body prefs.Prefs
}) (*struct{ Body prefs.Prefs }, error) {
	if h.svc.Prefs == nil {
		return nil, huma.Error503ServiceUnavailable("prefs store not available")
	}
	if err := h.svc.Prefs.Save(ctx, input.ClientID, input.Body); err != nil {
		return nil, huma.Error500InternalServerError("saving prefs", err)
	}
	p, err := h.svc.Prefs.Get(ctx, input.ClientID)
	if err != nil {
		return nil, huma.Error500InternalServerError("reading prefs", err)
	}
	return &struct{ Body prefs.Prefs }{Body: p}, nil
}
