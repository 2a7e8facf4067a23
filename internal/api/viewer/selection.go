package viewer

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-patch/internal/config"
	"github.com/joeblew999/plat-patch/internal/humastar"
)

// SelectInput carries signals plus an optional id for REST-style callers.
type SelectInput struct {
	ID      string `query:"id" doc:"Patch ID; overrides the selectedid signal"`
	RawBody []byte
}

// InfoPanelData feeds the info-panel fragment.
type InfoPanelData struct {
	ID   string
	Rows []config.InfoRow
}

// Select highlights a patch and fills the info panel. The index is
// consulted first; otherwise the properties the map reported are shown.
func (h *Handler) Select(ctx context.Context, input *SelectInput) (*huma.StreamResponse, error) {
	signals, sess, err := h.session(&humastar.SignalsInput{RawBody: input.RawBody})
	if err != nil {
		return nil, err
	}
	id := input.ID
	if id == "" {
		id = signals.String("selectedid")
	}
	if id == "" {
		return nil, huma.Error400BadRequest("patch id is required")
	}

	var props map[string]any
	if f, ok := h.patches.Get(id); ok {
		props = f.Props(h.deployment.Schema())
	} else {
		props = signals.Object("properties")
	}

	previous := sess.Select(id)
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{"selectedid": id, "previousid": previous})
		if len(props) == 0 {
			sse.Patch(h.Fragment("empty-state", map[string]string{
				"Title": "Patch not found", "Message": "No attributes are available for patch " + id + ".",
			}), "#patch-info-content")
			return
		}
		sse.Patch(h.Fragment("info-panel", InfoPanelData{
			ID:   id,
			Rows: h.deployment.InfoRows(props),
		}), "#patch-info-content")
	}), nil
}
