package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-patch/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/config>; rel="config"`,
		`</api/v1/tiers>; rel="tiers"`,
		`</api/v1/tiles>; rel="tiles"`,
		`</api/v1/sources>; rel="sources"`,
		`</openapi.json>; rel="service-desc"`,
		`</docs>; rel="service-doc"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/config>; rel="config"`,
	},
	"/api/v1/config": {
		`</api/v1/tiers>; rel="tiers"`,
		`</viewer>; rel="viewer"`,
	},
	"/api/v1/tiers": {
		`</api/v1/tiers/summary>; rel="summary"`,
		`</api/v1/filter>; rel="filter"`,
	},
	"/api/v1/tiers/summary": {
		`</api/v1/tiers>; rel="collection"`,
	},
	"/api/v1/filter": {
		`</api/v1/stats>; rel="stats"`,
		`</api/v1/tiers>; rel="tiers"`,
	},
	"/api/v1/stats": {
		`</api/v1/filter>; rel="filter"`,
	},
	"/api/v1/sources": {
		`</api/v1/tiles>; rel="tiles"`,
	},
	"/api/v1/tiles": {
		`</api/v1/sources>; rel="sources"`,
		`</api/v1/tiles/generate>; rel="create-form"`,
	},
	"/api/v1/tiles/{name}": {
		`</api/v1/tiles>; rel="collection"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link
// headers, plus action links from response bodies implementing
// humastar.Actor.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		humastar.AppendActionLinks(ctx, v)
		return v, nil
	}
}
