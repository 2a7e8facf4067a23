package patch

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature is a forest patch decoded through a Schema. Numeric attributes are
// nil when the source value is missing or not numeric.
type Feature struct {
	ID                 string
	Tier               string
	Area               *float64
	CoreArea           *float64
	Contiguity         *float64
	PerimeterAreaRatio *float64
	ENN                *float64

	// Properties keeps the raw source attributes for the info panel.
	Properties map[string]any
	Geometry   orb.Geometry
}

// Decode converts a GeoJSON feature using the schema.
func Decode(f *geojson.Feature, s Schema) Feature {
	return FromProperties(f.Properties, f.Geometry, s)
}

// FromProperties builds a Feature from a raw attribute map.
func FromProperties(props map[string]any, geom orb.Geometry, s Schema) Feature {
	if props == nil {
		props = map[string]any{}
	}
	return Feature{
		ID:                 idString(props[s.Attr(FieldID)]),
		Tier:               str(props[s.Attr(FieldTier)]),
		Area:               numberPtr(props[s.Attr(FieldArea)]),
		CoreArea:           numberPtr(props[s.Attr(FieldCoreArea)]),
		Contiguity:         numberPtr(props[s.Attr(FieldContiguity)]),
		PerimeterAreaRatio: numberPtr(props[s.Attr(FieldPerimeterAreaRatio)]),
		ENN:                numberPtr(props[s.Attr(FieldENN)]),
		Properties:         props,
		Geometry:           geom,
	}
}

// Number parses a loosely typed attribute value. Strings are accepted when
// they hold a finite number, mirroring how tile attributes arrive.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numberPtr(v any) *float64 {
	f, ok := Number(v)
	if !ok {
		return nil
	}
	return &f
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// idString normalises patch ids, which some datasets store as numbers.
func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	}
	if f, ok := Number(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// Props returns the raw attributes with a derived ENN filled in where the
// source had no numeric value.
func (f Feature) Props(s Schema) map[string]any {
	out := make(map[string]any, len(f.Properties)+1)
	for k, v := range f.Properties {
		out[k] = v
	}
	if f.ENN != nil {
		attr := s.Attr(FieldENN)
		if _, ok := Number(out[attr]); !ok {
			out[attr] = *f.ENN
		}
	}
	return out
}
