package viewer

import (
	"context"
	"slices"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-patch/internal/humastar"
	"github.com/joeblew999/plat-patch/internal/logger"
	"github.com/joeblew999/plat-patch/internal/patch"
	"github.com/joeblew999/plat-patch/internal/prefs"
)

// StyleReady is reported after every style load with the layer ids the
// style contains. A missing patch layer is a configuration mismatch: it is
// logged and shown, and filters stay pending.
func (h *Handler) StyleReady(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, sess, err := h.session(input)
	if err != nil {
		return nil, err
	}
	layers := signals.Strings("layers")
	want := h.deployment.Layer.ID

	return h.Stream(func(sse humastar.SSE) {
		if !slices.Contains(layers, want) {
			logger.L().Error("patch_layer_missing", "expected", want, "layers", len(layers), "client", sess.ID)
			h.notice(sse, "error", "Layer not found in style: "+want)
			return
		}
		sess.MarkStyleReady()
		pred := sess.Active()
		h.pushFilter(sse, pred)
		h.pushStats(ctx, sse, sess, pred)
	}), nil
}

// Idle records the settled viewport and refreshes the readouts.
func (h *Handler) Idle(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, sess, err := h.session(input)
	if err != nil {
		return nil, err
	}
	bbox := signals.Floats("bbox")
	if len(bbox) != 4 || bbox[0] > bbox[2] || bbox[1] > bbox[3] {
		return nil, huma.Error400BadRequest("bbox signal must be west, south, east, north")
	}
	sess.SetViewport(orb.Bound{
		Min: orb.Point{bbox[0], bbox[1]},
		Max: orb.Point{bbox[2], bbox[3]},
	}, signals.Float("zoom"))

	return h.Stream(func(sse humastar.SSE) {
		h.pushStats(ctx, sse, sess, sess.Active())
	}), nil
}

// MapError logs a rendering error and shows a dismissible notice.
func (h *Handler) MapError(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, sess, err := h.session(input)
	if err != nil {
		return nil, err
	}
	msg := signals.String("message")
	if msg == "" {
		msg = "Map error"
	}
	logger.L().Warn("map_error", "client", sess.ID, "message", msg)
	return h.Stream(func(sse humastar.SSE) {
		h.notice(sse, "warning", msg)
	}), nil
}

// Zoom toggles the zoom warning below the configured threshold.
func (h *Handler) Zoom(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, sess, err := h.session(input)
	if err != nil {
		return nil, err
	}
	zoom := signals.Float("zoom")
	sess.SetZoom(zoom)
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{"zoomwarning": zoom < h.deployment.View.ZoomThreshold})
	}), nil
}

// Basemap switches between the custom and satellite styles. When the style
// URL changes, readiness is re-armed until the next style-ready report.
func (h *Handler) Basemap(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, sess, err := h.session(input)
	if err != nil {
		return nil, err
	}
	b := patch.ParseBasemap(signals.String("basemap"))
	url := h.deployment.StyleURL(b)
	// The page only reloads the style when the URL changes, and only a
	// reload reports style-ready again.
	if url != h.deployment.StyleURL(sess.State().Basemap) {
		sess.ResetStyle()
	}
	sess.SetBasemap(b)
	h.savePrefs(ctx, sess.ID, func(p *prefs.Prefs) { p.Basemap = b })

	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{
			"basemap":  string(b),
			"styleurl": url,
		})
	}), nil
}

// DarkMode persists the colour scheme choice.
func (h *Handler) DarkMode(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, sess, err := h.session(input)
	if err != nil {
		return nil, err
	}
	dark := signals.Bool("darkmode")
	h.savePrefs(ctx, sess.ID, func(p *prefs.Prefs) { p.DarkMode = dark })
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{"darkmode": dark})
	}), nil
}
