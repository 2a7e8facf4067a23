package viewer

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-patch/internal/humastar"
)

// EventsInput identifies the listening viewer.
type EventsInput struct {
	ClientID string `query:"clientid" required:"true" doc:"Viewer client ID"`
}

// Events streams bus events addressed to the viewer (or to everyone) until
// the client disconnects.
func (h *Handler) Events(ctx context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	if h.bus == nil {
		return nil, huma.Error503ServiceUnavailable("event bus not available")
	}
	return h.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe()
		defer h.bus.Unsubscribe(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if !ev.For(input.ClientID) {
					continue
				}
				sse.DispatchCustomEvent("resource-changed", map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
				})
			}
		}
	}), nil
}
