package viewer

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-patch/internal/config"
	"github.com/joeblew999/plat-patch/internal/logger"
	"github.com/joeblew999/plat-patch/internal/patch"
	"github.com/joeblew999/plat-patch/internal/prefs"
)

// ClientCookie names the cookie that carries a viewer's client id.
const ClientCookie = "patch_client"

// MetricHelp is one entry of the metric glossary on the page.
type MetricHelp struct {
	Label       string
	Description string
}

// PageData feeds the viewer page template.
type PageData struct {
	Title     string
	DarkMode  bool
	Signals   string
	Tiers     []config.Tier
	Metrics   []MetricHelp
	MapConfig map[string]any
}

// Page renders the map page with the initial signal set.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	clientID := clientID(w, r)
	sess := h.sessions.Get(clientID)

	p := prefs.Defaults()
	if h.prefs != nil {
		var err error
		if p, err = h.prefs.Get(r.Context(), clientID); err != nil {
			logger.L().Warn("prefs_load", "client", clientID, "err", err)
			p = prefs.Defaults()
		}
	}
	sess.SetBasemap(p.Basemap)
	// A fresh page load brings a fresh style.
	sess.ResetStyle()

	state := sess.State()
	min, max := "", ""
	if state.Filter.MinArea != nil {
		min = formatBound(*state.Filter.MinArea)
	}
	if state.Filter.MaxArea != nil {
		max = formatBound(*state.Filter.MaxArea)
	}
	signals, err := json.Marshal(map[string]any{
		"clientid":        clientID,
		"tiers":           state.Filter.Tiers,
		"minarea":         min,
		"maxarea":         max,
		"areafiltererror": "",
		"filterjson":      filterJSON(sess.Active()),
		"selectedid":      "",
		"previousid":      "",
		"properties":      map[string]any{},
		"layers":          []string{},
		"bbox":            []float64{},
		"zoom":            h.deployment.View.Zoom,
		"message":         "",
		"zoomwarning":     h.deployment.View.Zoom < h.deployment.View.ZoomThreshold,
		"basemap":         string(p.Basemap),
		"styleurl":        h.deployment.StyleURL(p.Basemap),
		"darkmode":        p.DarkMode,
		"about":           false,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	d := h.deployment
	metrics := make([]MetricHelp, 0, len(d.InfoPanel))
	for _, attr := range d.InfoPanel {
		if desc := d.Metrics[attr]; desc != "" {
			metrics = append(metrics, MetricHelp{Label: d.Label(attr), Description: desc})
		}
	}

	title := d.Title
	if title == "" {
		title = "Forest Patch Map"
	}
	data := PageData{
		Title:    title,
		DarkMode: p.DarkMode,
		Signals:  string(signals),
		Tiers:    d.Tiers,
		Metrics:  metrics,
		MapConfig: map[string]any{
			"accessToken": d.AccessToken,
			"styleUrl":    d.StyleURL(p.Basemap),
			"center":      d.View.Center,
			"zoom":        d.View.Zoom,
			"layerId":     d.Layer.ID,
			"outlineId":   d.Layer.OutlineID,
			"sourceLayer": d.Layer.SourceLayer,
			"idAttr":      d.Schema().Attr(patch.FieldID),
			"tierAttr":    d.Schema().Attr(patch.FieldTier),
			"geocoder": map[string]any{
				"placeholder": d.Geocoder.Placeholder,
				"bbox":        d.Geocoder.BBox,
				"countries":   d.Geocoder.Countries,
				"limit":       d.Geocoder.Limit,
				"markerColor": d.Geocoder.MarkerColor,
			},
		},
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if h.Renderer == nil {
		http.Error(w, "no renderer", http.StatusInternalServerError)
		return
	}
	if err := h.Renderer.Execute(w, "viewer", data); err != nil {
		logger.L().Error("render_viewer", "err", err)
	}
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(ClientCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
