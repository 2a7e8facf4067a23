// Package viewer contains the Datastar SSE handlers behind the map page:
// filter application, patch selection, map lifecycle reports and prefs.
package viewer

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-patch/internal/config"
	"github.com/joeblew999/plat-patch/internal/humastar"
	"github.com/joeblew999/plat-patch/internal/logger"
	"github.com/joeblew999/plat-patch/internal/patch"
	"github.com/joeblew999/plat-patch/internal/prefs"
	"github.com/joeblew999/plat-patch/internal/service"
	"github.com/joeblew999/plat-patch/internal/templates"
)

// DefaultApplyTimeout bounds how long a filter waits for the style to load.
const DefaultApplyTimeout = time.Minute

// Handler serves the viewer SSE endpoints.
type Handler struct {
	humastar.Handler

	deployment *config.Deployment
	sessions   *service.SessionService
	patches    *service.PatchService
	stats      *service.StatsService
	prefs      *prefs.Store
	bus        *service.EventBus

	ApplyTimeout time.Duration
}

// Deps are the services a viewer handler needs. Prefs and Bus may be nil.
type Deps struct {
	Deployment *config.Deployment
	Sessions   *service.SessionService
	Patches    *service.PatchService
	Stats      *service.StatsService
	Prefs      *prefs.Store
	Bus        *service.EventBus
	Renderer   *templates.Renderer
}

// NewHandler creates a viewer handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		Handler:      humastar.Handler{Renderer: d.Renderer},
		deployment:   d.Deployment,
		sessions:     d.Sessions,
		patches:      d.Patches,
		stats:        d.Stats,
		prefs:        d.Prefs,
		bus:          d.Bus,
		ApplyTimeout: DefaultApplyTimeout,
	}
}

// RegisterRoutes registers viewer routes with Huma.
func (h *Handler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("viewer")
	huma.Post(api, "/api/v1/viewer/filter", h.ApplyFilter, tags)
	huma.Post(api, "/api/v1/viewer/filter/reset", h.ResetFilter, tags)
	huma.Post(api, "/api/v1/viewer/select", h.Select, tags)
	huma.Post(api, "/api/v1/viewer/style-ready", h.StyleReady, tags)
	huma.Post(api, "/api/v1/viewer/idle", h.Idle, tags)
	huma.Post(api, "/api/v1/viewer/error", h.MapError, tags)
	huma.Post(api, "/api/v1/viewer/zoom", h.Zoom, tags)
	huma.Post(api, "/api/v1/viewer/basemap", h.Basemap, tags)
	huma.Post(api, "/api/v1/viewer/dark-mode", h.DarkMode, tags)
	huma.Get(api, "/api/v1/viewer/events", h.Events, tags)
}

// session parses signals and resolves the caller's session.
func (h *Handler) session(input *humastar.SignalsInput) (humastar.Signals, *service.Session, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, nil, err
	}
	id := signals.String("clientid")
	if id == "" {
		return nil, nil, huma.Error400BadRequest("clientid signal is required")
	}
	return signals, h.sessions.Get(id), nil
}

// NoticeData feeds the notice fragment.
type NoticeData struct {
	Level   string
	Message string
}

func (h *Handler) notice(sse humastar.SSE, level, msg string) {
	sse.Append(h.Fragment("notice", NoticeData{Level: level, Message: msg}), "#map-notice")
}

// filterJSON encodes the style expression; "" clears the filter.
func filterJSON(pred patch.Predicate) string {
	s, err := pred.ExpressionJSON()
	if err != nil {
		logger.L().Warn("filter_encode", "err", err)
		return ""
	}
	return s
}

func (h *Handler) pushFilter(sse humastar.SSE, pred patch.Predicate) {
	sse.Signals(map[string]any{
		"filterjson":      filterJSON(pred),
		"areafiltererror": "",
	})
}

// pushStats recomputes the readouts when the map has reported a viewport.
func (h *Handler) pushStats(ctx context.Context, sse humastar.SSE, sess *service.Session, pred patch.Predicate) {
	st := sess.State()
	if !st.HasViewport {
		return
	}
	r := h.stats.Visible(ctx, st.Viewport, st.Zoom, pred).Readout()
	sse.Text(r.Count, "#visible-patches-count")
	sse.Text(r.Area, "#visible-patches-area")
	sse.Text(r.ENN, "#visible-patches-enn")
}

func (h *Handler) savePrefs(ctx context.Context, clientID string, fn func(*prefs.Prefs)) {
	if h.prefs == nil {
		return
	}
	if _, err := h.prefs.Update(ctx, clientID, fn); err != nil {
		logger.L().Warn("prefs_save", "client", clientID, "err", err)
	}
}
