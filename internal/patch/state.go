package patch

import "github.com/paulmach/orb"

// Basemap selects which style the viewer renders under the patches.
type Basemap string

const (
	BasemapCustom    Basemap = "custom"
	BasemapSatellite Basemap = "satellite"
)

// ParseBasemap maps toggle values onto a basemap; unknown values fall back to custom.
func ParseBasemap(v string) Basemap {
	if Basemap(v) == BasemapSatellite {
		return BasemapSatellite
	}
	return BasemapCustom
}

// UIState is everything one viewer has chosen: the active filter, the
// selected patch and the last viewport reported by the map.
type UIState struct {
	Filter   FilterState
	Selected string
	Basemap  Basemap

	Viewport    orb.Bound
	Zoom        float64
	HasViewport bool
}

// NewUIState starts with every tier checked, nothing selected.
func NewUIState(universe []string) UIState {
	return UIState{
		Filter:  DefaultFilter(universe),
		Basemap: BasemapCustom,
	}
}

// Select makes id the highlighted patch and returns the id that must lose
// its highlight, or "" when nothing was selected before.
func (s *UIState) Select(id string) (previous string) {
	previous = s.Selected
	if previous == id {
		previous = ""
	}
	s.Selected = id
	return previous
}

// SetViewport records the area the map currently shows.
func (s *UIState) SetViewport(b orb.Bound, zoom float64) {
	s.Viewport = b
	s.Zoom = zoom
	s.HasViewport = true
}

// ClearBounds drops both area bounds and keeps the checked tiers.
func (s *UIState) ClearBounds() {
	s.Filter.MinArea = nil
	s.Filter.MaxArea = nil
}
