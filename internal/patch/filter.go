package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// NoMatch is compared against the tier attribute when no tier is checked,
// giving an always-false clause.
const NoMatch = "NO_MATCH"

var (
	// ErrInvalidBound is returned for area input that is not a non-negative number.
	ErrInvalidBound = errors.New("area must be a non-negative number")
	// ErrMinExceedsMax is returned when both bounds are set and max < min.
	ErrMinExceedsMax = errors.New("max area cannot be less than min area")
)

// Message returns the inline validation text shown next to the area inputs.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrMinExceedsMax):
		return "Max Area cannot be less than Min Area."
	case errors.Is(err, ErrInvalidBound):
		return "Area must be a non-negative number."
	case err != nil:
		return err.Error()
	}
	return ""
}

// FilterState is the sidebar state: checked tiers and optional area bounds.
type FilterState struct {
	Tiers   []string `json:"tiers" doc:"Checked tier values"`
	MinArea *float64 `json:"minArea,omitempty" minimum:"0" doc:"Minimum patch area (ha)"`
	MaxArea *float64 `json:"maxArea,omitempty" minimum:"0" doc:"Maximum patch area (ha)"`
}

// DefaultFilter checks every tier and sets no bounds.
func DefaultFilter(universe []string) FilterState {
	tiers := make([]string, len(universe))
	copy(tiers, universe)
	return FilterState{Tiers: tiers}
}

// ParseBound parses raw area input. Empty input is no bound.
func ParseBound(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || !validBound(f) {
		return nil, ErrInvalidBound
	}
	return &f, nil
}

// ParseBounds parses both inputs and checks their order.
func ParseBounds(rawMin, rawMax string) (min, max *float64, err error) {
	if min, err = ParseBound(rawMin); err != nil {
		return nil, nil, err
	}
	if max, err = ParseBound(rawMax); err != nil {
		return nil, nil, err
	}
	if min != nil && max != nil && *max < *min {
		return nil, nil, ErrMinExceedsMax
	}
	return min, max, nil
}

func validBound(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

// Predicate is a built filter. The zero value shows everything.
type Predicate struct {
	tierAttr string
	areaAttr string

	restrictTiers bool
	tiers         []string
	tierSet       map[string]struct{}

	min *float64
	max *float64
}

// BuildFilter turns filter state into a predicate over the given tier universe.
// Checked values outside the universe are ignored; bounds that are not finite
// non-negative numbers count as absent.
func BuildFilter(universe []string, state FilterState, s Schema) (Predicate, error) {
	p := Predicate{
		tierAttr: s.Attr(FieldTier),
		areaAttr: s.Attr(FieldArea),
	}
	if state.MinArea != nil && validBound(*state.MinArea) {
		v := *state.MinArea
		p.min = &v
	}
	if state.MaxArea != nil && validBound(*state.MaxArea) {
		v := *state.MaxArea
		p.max = &v
	}
	if p.min != nil && p.max != nil && *p.max < *p.min {
		return Predicate{}, ErrMinExceedsMax
	}

	checked := make(map[string]struct{}, len(state.Tiers))
	for _, t := range state.Tiers {
		checked[t] = struct{}{}
	}
	p.tierSet = make(map[string]struct{})
	for _, t := range universe {
		if _, ok := checked[t]; ok {
			if _, dup := p.tierSet[t]; !dup {
				p.tierSet[t] = struct{}{}
				p.tiers = append(p.tiers, t)
			}
		}
	}
	p.restrictTiers = len(p.tiers) < distinct(universe)
	return p, nil
}

func distinct(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// IsNone reports whether the predicate lets every feature through.
func (p Predicate) IsNone() bool {
	return !p.restrictTiers && p.min == nil && p.max == nil
}

// MatchesNothing reports whether no tier is selected.
func (p Predicate) MatchesNothing() bool {
	return p.restrictTiers && len(p.tiers) == 0
}

// Tiers returns the selected tiers in universe order.
func (p Predicate) Tiers() []string {
	return p.tiers
}

// Bounds returns the effective area bounds.
func (p Predicate) Bounds() (min, max *float64) {
	return p.min, p.max
}

// Expression renders the predicate as a map style filter expression.
// It returns nil when nothing is filtered.
func (p Predicate) Expression() []any {
	if p.IsNone() {
		return nil
	}
	expr := []any{"all"}
	switch {
	case p.MatchesNothing():
		expr = append(expr, []any{"==", []any{"get", p.tierAttr}, NoMatch})
	case p.restrictTiers:
		values := make([]any, len(p.tiers))
		for i, t := range p.tiers {
			values[i] = t
		}
		expr = append(expr, []any{"match", []any{"get", p.tierAttr}, values, true, false})
	}
	if p.min != nil {
		expr = append(expr, []any{">=", []any{"get", p.areaAttr}, *p.min})
	}
	if p.max != nil {
		expr = append(expr, []any{"<=", []any{"get", p.areaAttr}, *p.max})
	}
	return expr
}

// ExpressionJSON encodes Expression without HTML escaping, so comparison
// operators stay readable. It returns "" when nothing is filtered.
func (p Predicate) ExpressionJSON() (string, error) {
	expr := p.Expression()
	if expr == nil {
		return "", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(expr); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Match evaluates the predicate against a feature the way the renderer
// evaluates Expression: a bound test on a missing area fails.
func (p Predicate) Match(f Feature) bool {
	if p.IsNone() {
		return true
	}
	if p.restrictTiers {
		if _, ok := p.tierSet[f.Tier]; !ok {
			return false
		}
	}
	if p.min != nil && (f.Area == nil || *f.Area < *p.min) {
		return false
	}
	if p.max != nil && (f.Area == nil || *f.Area > *p.max) {
		return false
	}
	return true
}
