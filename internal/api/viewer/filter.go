package viewer

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-patch/internal/humastar"
	"github.com/joeblew999/plat-patch/internal/logger"
	"github.com/joeblew999/plat-patch/internal/patch"
	"github.com/joeblew999/plat-patch/internal/service"
)

// ApplyFilter reads the checked tiers and area inputs, then applies the
// resulting filter once the style is ready. Invalid input leaves the
// previous filter in place and shows an inline message.
func (h *Handler) ApplyFilter(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, sess, err := h.session(input)
	if err != nil {
		return nil, err
	}
	min, max, perr := patch.ParseBounds(signals.String("minarea"), signals.String("maxarea"))
	state := patch.FilterState{Tiers: signals.Strings("tiers"), MinArea: min, MaxArea: max}
	return h.apply(ctx, sess, state, perr, nil), nil
}

// ResetFilter clears both area bounds, keeps the checked tiers and applies.
func (h *Handler) ResetFilter(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, sess, err := h.session(input)
	if err != nil {
		return nil, err
	}
	ui := sess.State()
	ui.Filter.Tiers = signals.Strings("tiers")
	ui.ClearBounds()
	return h.apply(ctx, sess, ui.Filter, nil, map[string]any{"minarea": "", "maxarea": ""}), nil
}

func (h *Handler) apply(ctx context.Context, sess *service.Session, state patch.FilterState, parseErr error, extra map[string]any) *huma.StreamResponse {
	return h.Stream(func(sse humastar.SSE) {
		if extra != nil {
			sse.Signals(extra)
		}
		if parseErr != nil {
			sse.Signals(map[string]any{"areafiltererror": patch.Message(parseErr)})
			return
		}
		pred, err := patch.BuildFilter(h.deployment.TierNames(), state, h.deployment.Schema())
		if err != nil {
			sse.Signals(map[string]any{"areafiltererror": patch.Message(err)})
			return
		}

		wait, cancel := context.WithTimeout(ctx, h.ApplyTimeout)
		defer cancel()
		applied, err := sess.ApplyFilter(wait, state, pred)
		if err != nil {
			logger.L().Debug("filter_not_applied", "client", sess.ID, "err", err)
			return
		}
		if !applied {
			// A newer filter request owns the response.
			return
		}

		h.pushFilter(sse, pred)
		h.pushStats(ctx, sse, sess, pred)
		if h.bus != nil {
			h.bus.Publish(service.Event{Resource: "filter", Action: "applied", Session: sess.ID})
		}
	})
}
