package patch

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ENNPlaceholder is shown when no feature carries a numeric ENN value.
const ENNPlaceholder = "- m"

// Summary aggregates the visible patches.
type Summary struct {
	Count      int     `json:"count" doc:"Distinct visible patches"`
	TotalArea  float64 `json:"totalArea" doc:"Sum of patch area (ha)"`
	ENNSum     float64 `json:"ennSum" doc:"Sum of numeric ENN values (m)"`
	ENNSamples int     `json:"ennSamples" doc:"Patches with a numeric ENN value"`
}

// Aggregate collapses rendered features by patch id (first occurrence wins)
// and sums area and ENN. Features without an id are skipped; a missing area
// contributes zero; a missing ENN is left out of the mean entirely.
func Aggregate(rendered []Feature) Summary {
	seen := make(map[string]struct{}, len(rendered))
	var s Summary
	for _, f := range rendered {
		if f.ID == "" {
			continue
		}
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}

		s.Count++
		if f.Area != nil {
			s.TotalArea += *f.Area
		}
		if f.ENN != nil {
			s.ENNSum += *f.ENN
			s.ENNSamples++
		}
	}
	return s
}

// MeanENN returns the arithmetic mean over numeric samples.
func (s Summary) MeanENN() (float64, bool) {
	if s.ENNSamples == 0 {
		return 0, false
	}
	return s.ENNSum / float64(s.ENNSamples), true
}

// Readout is the formatted stats panel.
type Readout struct {
	Count string `json:"count" doc:"Visible patch count" example:"1,204"`
	Area  string `json:"area" doc:"Total visible area" example:"6.75 ha"`
	ENN   string `json:"enn" doc:"Mean nearest-neighbour distance" example:"20.00 m"`
}

var defaultPrinter = message.NewPrinter(language.English)

// Readout formats the summary for display. Count uses digit grouping.
func (s Summary) Readout() Readout {
	r := Readout{
		Count: defaultPrinter.Sprintf("%d", s.Count),
		Area:  fmt.Sprintf("%.2f ha", s.TotalArea),
		ENN:   ENNPlaceholder,
	}
	if mean, ok := s.MeanENN(); ok {
		r.ENN = fmt.Sprintf("%.2f m", mean)
	}
	return r
}

// TierStat summarises one tier of the whole dataset.
type TierStat struct {
	Tier      string   `json:"tier" doc:"Tier value"`
	Count     int      `json:"count" doc:"Distinct patches"`
	TotalArea float64  `json:"totalArea" doc:"Sum of patch area (ha)"`
	MeanENN   *float64 `json:"meanEnn,omitempty" doc:"Mean ENN over numeric values (m)"`
}

// SummarizeTiers aggregates features per tier in universe order. Tiers
// outside the universe are appended in the order they first appear.
func SummarizeTiers(universe []string, features []Feature) []TierStat {
	groups := make(map[string][]Feature)
	order := append([]string(nil), universe...)
	known := make(map[string]bool, len(universe))
	for _, t := range universe {
		known[t] = true
	}
	for _, f := range features {
		if !known[f.Tier] {
			known[f.Tier] = true
			order = append(order, f.Tier)
		}
		groups[f.Tier] = append(groups[f.Tier], f)
	}

	out := make([]TierStat, 0, len(order))
	for _, t := range order {
		s := Aggregate(groups[t])
		ts := TierStat{Tier: t, Count: s.Count, TotalArea: s.TotalArea}
		if mean, ok := s.MeanENN(); ok {
			ts.MeanENN = &mean
		}
		out = append(out, ts)
	}
	return out
}
