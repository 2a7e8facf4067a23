package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/joeblew999/plat-patch/internal/patch"
)

func TestLoadBuiltins(t *testing.T) {
	t.Setenv("PATCH_ACCESS_TOKEN", "pk.test")

	for _, name := range []string{"klang-valley", "kuantan"} {
		t.Run(name, func(t *testing.T) {
			d, err := Load(name)
			if err != nil {
				t.Fatal(err)
			}
			if d.AccessToken != "pk.test" {
				t.Fatalf("token=%q", d.AccessToken)
			}
			if got := len(d.TierNames()); got != 6 {
				t.Fatalf("tiers=%d, want 6", got)
			}
			if d.View.ZoomThreshold != 11 {
				t.Fatalf("zoom threshold=%v", d.View.ZoomThreshold)
			}
			if d.Metrics[d.Schema().Attr(patch.FieldENN)] == "" {
				t.Fatal("default ENN description missing")
			}
		})
	}
}

func TestLoadMissingToken(t *testing.T) {
	t.Setenv("PATCH_ACCESS_TOKEN", "")
	_, err := Load("kuantan")
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("err=%v, want ErrMissingToken", err)
	}
}

func TestLoadPlaceholderToken(t *testing.T) {
	d, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	d.AccessToken = "YOUR_MAPBOX_TOKEN_HERE"
	if err := d.Validate(); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("err=%v, want ErrMissingToken", err)
	}
}

func TestLoadUnknown(t *testing.T) {
	_, err := Load("atlantis")
	if !errors.Is(err, ErrUnknownDeployment) {
		t.Fatalf("err=%v, want ErrUnknownDeployment", err)
	}
}

const minimalYAML = `
name: test
access_token: pk.file
styles: {custom: "mapbox://styles/test/custom"}
layer: {id: patches}
attributes: {tier: t, id: i, area: a, core_area: c, contiguity: g, perimeter_area_ratio: p, enn: e}
tiers: [{name: A, color: "#111"}, {name: B, color: "#222"}]
`

func TestLoadFileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATCH_ACCESS_TOKEN", "")
	t.Setenv("PATCH_LAYER_ID", "renamed")
	t.Setenv("PATCH_DERIVE_ENN", "true")

	d, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if d.AccessToken != "pk.file" {
		t.Fatalf("token=%q, want file value", d.AccessToken)
	}
	if d.Layer.ID != "renamed" {
		t.Fatalf("layer=%q, want renamed", d.Layer.ID)
	}
	if !d.DeriveENN {
		t.Fatal("derive_enn override ignored")
	}
	if len(d.InfoPanel) != 7 {
		t.Fatalf("info panel=%v, want every mapped attribute", d.InfoPanel)
	}
	if d.StyleURL(patch.BasemapSatellite) != "mapbox://styles/test/custom" {
		t.Fatal("satellite should fall back to custom style")
	}
	if d.TierColor("B") != "#222" || d.TierColor("Z") != "#ccc" {
		t.Fatal("tier colours")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Deployment)
	}{
		{"no layer", func(d *Deployment) { d.Layer.ID = "" }},
		{"no style", func(d *Deployment) { d.Styles.Custom = "" }},
		{"unmapped attribute", func(d *Deployment) { delete(d.Attributes, patch.FieldENN) }},
		{"no tiers", func(d *Deployment) { d.Tiers = nil }},
		{"duplicate tier", func(d *Deployment) { d.Tiers = append(d.Tiers, Tier{Name: "A"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse([]byte(minimalYAML))
			if err != nil {
				t.Fatal(err)
			}
			if err := d.Validate(); err != nil {
				t.Fatalf("baseline invalid: %v", err)
			}
			tt.mutate(d)
			if err := d.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLabel(t *testing.T) {
	d, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]string{
		"t":               "Category",
		"core_area":       "Core Area",
		"Patch ID":        "Patch ID",
		"contig":          "Contig",
	}
	for in, want := range tests {
		if got := d.Label(in); got != want {
			t.Errorf("Label(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestInfoRows(t *testing.T) {
	d, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	rows := d.InfoRows(map[string]any{"t": "Tier 1", "a": 12.5, "i": int64(7), "e": nil, "extra": "x"})
	if len(rows) != 3 {
		t.Fatalf("rows=%+v, want tier, id and area only", rows)
	}
	byAttr := map[string]InfoRow{}
	for _, r := range rows {
		byAttr[r.Attr] = r
	}
	if byAttr["t"].Label != "Category" || byAttr["t"].Value != "Tier 1" {
		t.Errorf("tier row=%+v", byAttr["t"])
	}
	if byAttr["a"].Value != "12.5" || byAttr["a"].Description == "" {
		t.Errorf("area row=%+v", byAttr["a"])
	}
	if byAttr["i"].Value != "7" {
		t.Errorf("id row=%+v", byAttr["i"])
	}
}
