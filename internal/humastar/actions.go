package humastar

import (
	"fmt"

	"github.com/danielgtaylor/huma/v2"
)

// Action is a state-dependent hypermedia action link.
// Response bodies implement the Actor interface to emit conditional
// RFC 8288 Link headers with method, title, and schema extension parameters.
//
// Example Link header output:
//
//	</api/v1/viewer/select>; rel="select"; method="POST"; title="Show in info panel"
type Action struct {
	Rel    string // IANA rel or custom (e.g., "select", "generate")
	Href   string // target URL
	Method string // HTTP method: POST, PUT, DELETE, etc.
	Title  string // optional human-readable label
	Schema string // optional JSON Schema URL for the request body
}

// Actor is implemented by response bodies that provide state-dependent actions.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as an RFC 8288 Link header value
// with method and title extension parameters.
func (a Action) LinkHeader() string {
	h := fmt.Sprintf(`<%s>; rel="%s"`, a.Href, a.Rel)
	if a.Method != "" {
		h += fmt.Sprintf(`; method="%s"`, a.Method)
	}
	if a.Title != "" {
		h += fmt.Sprintf(`; title=%q`, a.Title)
	}
	if a.Schema != "" {
		h += fmt.Sprintf(`; schema="%s"`, a.Schema)
	}
	return h
}

// AppendActionLinks adds a Link header per action when v is an Actor.
func AppendActionLinks(ctx huma.Context, v any) {
	a, ok := v.(Actor)
	if !ok {
		return
	}
	for _, action := range a.Actions() {
		ctx.AppendHeader("Link", action.LinkHeader())
	}
}
