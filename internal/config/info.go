package config

import (
	"fmt"
	"strconv"
)

// InfoRow is one line of the info panel.
type InfoRow struct {
	Attr        string `json:"attr" doc:"Source attribute name"`
	Label       string `json:"label" doc:"Display label"`
	Value       string `json:"value" doc:"Display value"`
	Description string `json:"description,omitempty" doc:"Metric description shown as a tooltip"`
}

// InfoRows lists the configured info panel attributes present in props.
// Attributes the feature does not carry are left out.
func (d *Deployment) InfoRows(props map[string]any) []InfoRow {
	rows := make([]InfoRow, 0, len(d.InfoPanel))
	for _, attr := range d.InfoPanel {
		v, ok := props[attr]
		if !ok || v == nil {
			continue
		}
		rows = append(rows, InfoRow{
			Attr:        attr,
			Label:       d.Label(attr),
			Value:       displayValue(v),
			Description: d.Metrics[attr],
		})
	}
	return rows
}

func displayValue(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}
