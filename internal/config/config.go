// Package config loads a deployment: which patch dataset to show, how its
// attributes are named, the tier legend and the initial map view.
package config

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-patch/internal/patch"
)

//go:embed deployments/*.yaml
var builtin embed.FS

var (
	// ErrMissingToken is fatal: the viewer cannot load any style without it.
	ErrMissingToken = errors.New("map access token is not configured (set PATCH_ACCESS_TOKEN)")
	// ErrUnknownDeployment is returned when neither a file nor a built-in matches.
	ErrUnknownDeployment = errors.New("unknown deployment")
)

// Deployment is the static configuration for one map.
type Deployment struct {
	Name        string            `yaml:"name" json:"name"`
	Title       string            `yaml:"title" json:"title"`
	AccessToken string            `yaml:"access_token" json:"accessToken"`
	Styles      Styles            `yaml:"styles" json:"styles"`
	Layer       Layer             `yaml:"layer" json:"layer"`
	Source      string            `yaml:"source" json:"source"`
	DeriveENN   bool              `yaml:"derive_enn" json:"-"`
	Attributes  patch.Schema      `yaml:"attributes" json:"attributes"`
	InfoPanel   []string          `yaml:"info_panel" json:"infoPanel"`
	Metrics     map[string]string `yaml:"metrics" json:"metrics,omitempty"`
	Tiers       []Tier            `yaml:"tiers" json:"tiers"`
	View        View              `yaml:"view" json:"view"`
	Geocoder    Geocoder          `yaml:"geocoder" json:"geocoder"`
}

// Styles are the two basemap style URLs.
type Styles struct {
	Custom    string `yaml:"custom" json:"custom"`
	Satellite string `yaml:"satellite" json:"satellite"`
}

// Layer identifies the patch layer inside the style.
type Layer struct {
	ID          string `yaml:"id" json:"id"`
	SourceLayer string `yaml:"source_layer" json:"sourceLayer"`
	OutlineID   string `yaml:"outline_id" json:"outlineId,omitempty"`
}

// Tier is one legend entry.
type Tier struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color"`
}

// View is the initial camera plus the zoom below which a warning is shown.
type View struct {
	Center        [2]float64 `yaml:"center" json:"center"`
	Zoom          float64    `yaml:"zoom" json:"zoom"`
	ZoomThreshold float64    `yaml:"zoom_threshold" json:"zoomThreshold"`
}

// Geocoder configures the search box.
type Geocoder struct {
	Placeholder string     `yaml:"placeholder" json:"placeholder"`
	BBox        [4]float64 `yaml:"bbox" json:"bbox,omitempty"`
	Countries   string     `yaml:"countries" json:"countries,omitempty"`
	Limit       int        `yaml:"limit" json:"limit,omitempty"`
	MarkerColor string     `yaml:"marker_color" json:"markerColor,omitempty"`
}

// Overrides are read from the environment and win over the YAML file.
type Overrides struct {
	AccessToken    string `env:"PATCH_ACCESS_TOKEN"`
	LayerID        string `env:"PATCH_LAYER_ID"`
	Source         string `env:"PATCH_SOURCE"`
	StyleCustom    string `env:"PATCH_STYLE_CUSTOM"`
	StyleSatellite string `env:"PATCH_STYLE_SATELLITE"`
	DeriveENN      bool   `env:"PATCH_DERIVE_ENN"`
}

var defaultMetrics = map[patch.Field]string{
	patch.FieldArea:               "Patch Area: The total land area of the forest patch in hectares (ha). This indicates the overall size of the habitat.",
	patch.FieldCoreArea:           "Core Area: The area within a forest patch that is buffered from edge effects, in hectares (ha).",
	patch.FieldContiguity:         "Contiguity Index: A measure of spatial connectedness. Values range from 0 to 1.",
	patch.FieldPerimeterAreaRatio: "Perimeter-Area Ratio: The ratio of the patch's perimeter to its area.",
	patch.FieldENN:                "Euclidean Nearest-Neighbor (ENN): The shortest straight-line distance to the nearest neighboring forest patch, in meters.",
}

// Builtins lists the embedded deployment names.
func Builtins() []string {
	entries, err := builtin.ReadDir("deployments")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	return names
}

// Load reads a deployment from a YAML file, or from the built-ins when
// nameOrPath is not an existing file. Environment overrides are applied and
// the result is validated.
func Load(nameOrPath string) (*Deployment, error) {
	data, err := os.ReadFile(nameOrPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read deployment: %w", err)
		}
		data, err = builtin.ReadFile("deployments/" + nameOrPath + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("%w: %q (built-ins: %s)", ErrUnknownDeployment, nameOrPath, strings.Join(Builtins(), ", "))
		}
	}

	d, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := d.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Parse decodes YAML and fills defaults. It does not validate.
func Parse(data []byte) (*Deployment, error) {
	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse deployment: %w", err)
	}
	d.defaults()
	return &d, nil
}

func (d *Deployment) defaults() {
	if d.View.ZoomThreshold == 0 {
		d.View.ZoomThreshold = 11
	}
	if d.Geocoder.Placeholder == "" {
		d.Geocoder.Placeholder = "Search location..."
	}
	if len(d.InfoPanel) == 0 {
		d.InfoPanel = d.Attributes.Attributes()
	}
	if d.Metrics == nil {
		d.Metrics = map[string]string{}
	}
	for f, desc := range defaultMetrics {
		attr := d.Attributes.Attr(f)
		if attr == "" {
			continue
		}
		if _, ok := d.Metrics[attr]; !ok {
			d.Metrics[attr] = desc
		}
	}
}

// ApplyEnv overlays PATCH_* environment variables.
func (d *Deployment) ApplyEnv() error {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	d.Apply(o)
	return nil
}

// Apply overlays non-empty overrides.
func (d *Deployment) Apply(o Overrides) {
	if o.AccessToken != "" {
		d.AccessToken = o.AccessToken
	}
	if o.LayerID != "" {
		d.Layer.ID = o.LayerID
	}
	if o.Source != "" {
		d.Source = o.Source
	}
	if o.StyleCustom != "" {
		d.Styles.Custom = o.StyleCustom
	}
	if o.StyleSatellite != "" {
		d.Styles.Satellite = o.StyleSatellite
	}
	if o.DeriveENN {
		d.DeriveENN = true
	}
}

// Validate rejects configurations the viewer cannot start with.
func (d *Deployment) Validate() error {
	token := strings.TrimSpace(d.AccessToken)
	if token == "" || strings.HasPrefix(token, "YOUR_") {
		return ErrMissingToken
	}
	if d.Layer.ID == "" {
		return errors.New("layer.id is required")
	}
	if d.Styles.Custom == "" {
		return errors.New("styles.custom is required")
	}
	if err := d.Attributes.Validate(); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	if len(d.Tiers) == 0 {
		return errors.New("at least one tier is required")
	}
	seen := make(map[string]bool, len(d.Tiers))
	for _, t := range d.Tiers {
		if t.Name == "" {
			return errors.New("tier name is required")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate tier %q", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// Schema returns the attribute mapping.
func (d *Deployment) Schema() patch.Schema {
	return d.Attributes
}

// TierNames returns the tier universe in legend order.
func (d *Deployment) TierNames() []string {
	names := make([]string, len(d.Tiers))
	for i, t := range d.Tiers {
		names[i] = t.Name
	}
	return names
}

// TierColor returns the legend colour for a tier.
func (d *Deployment) TierColor(name string) string {
	for _, t := range d.Tiers {
		if t.Name == name {
			return t.Color
		}
	}
	return "#ccc"
}

// StyleURL returns the style for a basemap. Satellite falls back to the
// custom style when no satellite URL is configured.
func (d *Deployment) StyleURL(b patch.Basemap) string {
	if b == patch.BasemapSatellite && d.Styles.Satellite != "" {
		return d.Styles.Satellite
	}
	return d.Styles.Custom
}

var titler = cases.Title(language.English, cases.NoLower)

// Label is the info panel label for a source attribute. The tier attribute
// is always shown as "Category".
func (d *Deployment) Label(attr string) string {
	if attr == d.Attributes.Attr(patch.FieldTier) {
		return "Category"
	}
	return titler.String(strings.ReplaceAll(attr, "_", " "))
}
