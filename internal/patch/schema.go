// Package patch holds the forest-patch domain: typed features, the filter
// predicate builder, the visible-feature aggregator and the per-viewer UI state.
package patch

import (
	"errors"
	"fmt"
	"sort"
)

// Field is a logical patch attribute, independent of how a dataset names it.
type Field string

const (
	FieldTier               Field = "tier"
	FieldID                 Field = "id"
	FieldArea               Field = "area"
	FieldCoreArea           Field = "core_area"
	FieldContiguity         Field = "contiguity"
	FieldPerimeterAreaRatio Field = "perimeter_area_ratio"
	FieldENN                Field = "enn"
)

// Fields lists every logical field a schema must map.
var Fields = []Field{
	FieldTier,
	FieldID,
	FieldArea,
	FieldCoreArea,
	FieldContiguity,
	FieldPerimeterAreaRatio,
	FieldENN,
}

var (
	// ErrFieldUnmapped is returned when a schema lacks a source attribute for a field.
	ErrFieldUnmapped = errors.New("field has no source attribute")
	// ErrAttributeMissing is returned when a mapped attribute never appears in sample data.
	ErrAttributeMissing = errors.New("attribute not present in sample data")
)

// Schema maps logical fields to source attribute names in the vector data.
type Schema map[Field]string

// Attr returns the source attribute name for f.
func (s Schema) Attr(f Field) string {
	return s[f]
}

// Validate checks that every logical field is mapped.
func (s Schema) Validate() error {
	for _, f := range Fields {
		if s[f] == "" {
			return fmt.Errorf("%s: %w", f, ErrFieldUnmapped)
		}
	}
	return nil
}

// CheckSample fails when a mapped attribute is absent from every sampled
// property set. An empty sample is accepted: there is nothing to check against.
func (s Schema) CheckSample(samples []map[string]any) error {
	if len(samples) == 0 {
		return nil
	}
	var missing []string
	for _, f := range Fields {
		attr := s[f]
		found := false
		for _, props := range samples {
			if _, ok := props[attr]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, fmt.Sprintf("%s (%q)", f, attr))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %v", ErrAttributeMissing, missing)
	}
	return nil
}

// Attributes returns the mapped source attribute names in field order.
func (s Schema) Attributes() []string {
	attrs := make([]string, 0, len(Fields))
	for _, f := range Fields {
		if a := s[f]; a != "" {
			attrs = append(attrs, a)
		}
	}
	return attrs
}
