// Package cache stores visible-patch summaries so repeated idle reports for
// the same viewport and filter skip the tile walk.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-patch/internal/patch"
)

// Cache is a summary store. Misses and backend errors both report false.
type Cache interface {
	Get(ctx context.Context, key string) (patch.Summary, bool)
	Set(ctx context.Context, key string, s patch.Summary)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (patch.Summary, bool) { return patch.Summary{}, false }
func (Nop) Set(context.Context, string, patch.Summary)        {}

// Namespace scopes keys to one deployment and patch source, so a shared
// Redis never mixes summaries of different data.
func Namespace(deployment, source string) string {
	return deployment + ":" + source
}

// Key identifies a summary by namespace, predicate, viewport and integer
// zoom. The viewport is rounded to 1e-6 degrees.
func Key(ns string, pred patch.Predicate, viewport orb.Bound, zoom int) string {
	var b strings.Builder
	switch {
	case pred.IsNone():
		b.WriteString("all")
	default:
		b.WriteString("tiers=")
		b.WriteString(strings.Join(pred.Tiers(), "\x1f"))
		if pred.MatchesNothing() {
			b.WriteString("<none>")
		}
	}
	min, max := pred.Bounds()
	if min != nil {
		fmt.Fprintf(&b, ";min=%g", *min)
	}
	if max != nil {
		fmt.Fprintf(&b, ";max=%g", *max)
	}
	fmt.Fprintf(&b, ";bbox=%.6f,%.6f,%.6f,%.6f;z=%d",
		viewport.Min[0], viewport.Min[1], viewport.Max[0], viewport.Max[1], zoom)

	sum := sha256.Sum256([]byte(b.String()))
	return "patch:stats:" + ns + ":" + hex.EncodeToString(sum[:16])
}
