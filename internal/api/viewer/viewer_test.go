package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-patch/internal/config"
	"github.com/joeblew999/plat-patch/internal/patch"
	"github.com/joeblew999/plat-patch/internal/prefs"
	"github.com/joeblew999/plat-patch/internal/service"
	"github.com/joeblew999/plat-patch/internal/templates"
)

const testYAML = `
name: test
access_token: pk.test
styles: {custom: "mapbox://styles/test/custom", satellite: "mapbox://styles/test/satellite"}
layer: {id: patches, source_layer: forest}
attributes: {tier: Tier, id: id, area: area, core_area: core, contiguity: contig, perimeter_area_ratio: para, enn: enn}
tiers: [{name: "Tier 1", color: "#111"}, {name: "Tier 2", color: "#222"}]
view: {center: [103.0, 3.0], zoom: 9, zoom_threshold: 11}
`

func f64(v float64) *float64 { return &v }

func square(lon, lat, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{lon, lat}, {lon + size, lat}, {lon + size, lat + size}, {lon, lat + size}, {lon, lat},
	}}
}

type fixture struct {
	h    *Handler
	api  humatest.TestAPI
	bus  *service.EventBus
	sess *service.SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureYAML(t, testYAML)
}

func newFixtureYAML(t *testing.T, yaml string) *fixture {
	t.Helper()
	d, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}

	patches := service.NewPatchService(d.Schema())
	patches.Replace([]patch.Feature{
		{
			ID: "p1", Tier: "Tier 1", Area: f64(2.5), ENN: f64(10),
			Geometry:   square(103.0, 3.0, 0.001),
			Properties: map[string]any{"Tier": "Tier 1", "id": "p1", "area": 2.5, "enn": 10.0},
		},
		{
			ID: "p2", Tier: "Tier 2", Area: f64(40),
			Geometry:   square(103.05, 3.05, 0.001),
			Properties: map[string]any{"Tier": "Tier 2", "id": "p2", "area": 40.0},
		},
	})

	renderer, err := templates.New("")
	if err != nil {
		t.Fatal(err)
	}
	store, err := prefs.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{bus: service.NewEventBus(), sess: service.NewSessionService(d.TierNames())}
	f.h = NewHandler(Deps{
		Deployment: d,
		Sessions:   f.sess,
		Patches:    patches,
		Stats:      service.NewStatsService(patches, nil, ""),
		Prefs:      store,
		Bus:        f.bus,
		Renderer:   renderer,
	})
	f.h.ApplyTimeout = 2 * time.Second

	f.api = humatest.Wrap(t, humago.New(http.NewServeMux(), huma.DefaultConfig("test", "1.0.0")))
	f.h.RegisterRoutes(f.api)
	return f
}

func (f *fixture) post(path string, signals map[string]any) string {
	return f.api.Post(path, signals).Body.String()
}

func (f *fixture) ready(t *testing.T, client string) {
	t.Helper()
	body := f.post("/api/v1/viewer/style-ready", map[string]any{"clientid": client, "layers": []string{"background", "patches"}})
	if !strings.Contains(body, "filterjson") {
		t.Fatalf("style-ready did not push the filter: %s", body)
	}
}

func TestApplyFilterWaitsForStyle(t *testing.T) {
	f := newFixture(t)

	done := make(chan string, 1)
	go func() {
		done <- f.post("/api/v1/viewer/filter", map[string]any{
			"clientid": "c1", "tiers": []string{"Tier 2"}, "minarea": "", "maxarea": "",
		})
	}()

	select {
	case body := <-done:
		t.Fatalf("filter applied before style was ready: %s", body)
	case <-time.After(50 * time.Millisecond):
	}

	f.ready(t, "c1")
	body := <-done
	if !strings.Contains(body, "Tier 2") || strings.Contains(body, "Tier 1") {
		t.Fatalf("filter body=%s", body)
	}
	if got := f.sess.Get("c1").Active().Tiers(); len(got) != 1 || got[0] != "Tier 2" {
		t.Fatalf("active tiers=%v", got)
	}
}

func TestApplyFilterTimesOut(t *testing.T) {
	f := newFixture(t)
	f.h.ApplyTimeout = 20 * time.Millisecond

	body := f.post("/api/v1/viewer/filter", map[string]any{"clientid": "c1", "tiers": []string{"Tier 1"}})
	if strings.Contains(body, "filterjson") {
		t.Fatalf("filter applied without a style: %s", body)
	}
	if !f.sess.Get("c1").Active().IsNone() {
		t.Fatal("filter committed")
	}
}

func TestApplyFilterInvalidBounds(t *testing.T) {
	f := newFixture(t)
	f.ready(t, "c1")

	tests := []struct {
		name     string
		min, max string
		want     string
	}{
		{"max below min", "10", "5", "Max Area cannot be less than Min Area."},
		{"negative", "-1", "", "Area must be a non-negative number."},
		{"not a number", "abc", "", "Area must be a non-negative number."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := f.post("/api/v1/viewer/filter", map[string]any{
				"clientid": "c1", "tiers": []string{"Tier 1"}, "minarea": tt.min, "maxarea": tt.max,
			})
			if !strings.Contains(body, tt.want) {
				t.Fatalf("body=%s, want %q", body, tt.want)
			}
			if strings.Contains(body, "filterjson") {
				t.Fatal("invalid filter applied")
			}
			if !f.sess.Get("c1").Active().IsNone() {
				t.Fatal("previous filter replaced")
			}
		})
	}
}

func TestResetFilterKeepsTiers(t *testing.T) {
	f := newFixture(t)
	f.ready(t, "c1")

	f.post("/api/v1/viewer/filter", map[string]any{
		"clientid": "c1", "tiers": []string{"Tier 1"}, "minarea": "1", "maxarea": "5",
	})
	if min, _ := f.sess.Get("c1").Active().Bounds(); min == nil {
		t.Fatal("min bound not applied")
	}

	body := f.post("/api/v1/viewer/filter/reset", map[string]any{"clientid": "c1", "tiers": []string{"Tier 1"}})
	if !strings.Contains(body, `"minarea":""`) {
		t.Fatalf("inputs not cleared: %s", body)
	}
	pred := f.sess.Get("c1").Active()
	if min, max := pred.Bounds(); min != nil || max != nil {
		t.Fatal("bounds kept")
	}
	if got := pred.Tiers(); len(got) != 1 || got[0] != "Tier 1" {
		t.Fatalf("tiers=%v", got)
	}
}

func TestMissingClientID(t *testing.T) {
	f := newFixture(t)
	resp := f.api.Post("/api/v1/viewer/filter", map[string]any{"tiers": []string{}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("code=%d, want 400", resp.Code)
	}
}

func TestStyleReadyLayerMissing(t *testing.T) {
	f := newFixture(t)
	body := f.post("/api/v1/viewer/style-ready", map[string]any{"clientid": "c1", "layers": []string{"background"}})
	if !strings.Contains(body, "Layer not found in style: patches") {
		t.Fatalf("body=%s", body)
	}
	if f.sess.Get("c1").Ready() {
		t.Fatal("style marked ready without the patch layer")
	}
}

func TestSelect(t *testing.T) {
	f := newFixture(t)

	body := f.post("/api/v1/viewer/select", map[string]any{"clientid": "c1", "selectedid": "p1"})
	if !strings.Contains(body, "patch-info-content") || !strings.Contains(body, "Category") {
		t.Fatalf("info panel missing: %s", body)
	}
	if !strings.Contains(body, `"previousid":""`) {
		t.Fatalf("first selection has a previous id: %s", body)
	}

	body = f.post("/api/v1/viewer/select", map[string]any{"clientid": "c1", "selectedid": "p2"})
	if !strings.Contains(body, `"previousid":"p1"`) {
		t.Fatalf("previous not reported: %s", body)
	}

	// Unindexed ids fall back to the properties the map reported.
	body = f.post("/api/v1/viewer/select", map[string]any{
		"clientid": "c1", "selectedid": "x9", "properties": map[string]any{"Tier": "Tier 2", "area": 7.5},
	})
	if !strings.Contains(body, "7.5") {
		t.Fatalf("posted properties not shown: %s", body)
	}

	body = f.post("/api/v1/viewer/select", map[string]any{"clientid": "c1", "selectedid": "x10"})
	if !strings.Contains(body, "Patch not found") {
		t.Fatalf("empty state missing: %s", body)
	}
}

func TestIdlePushesStats(t *testing.T) {
	f := newFixture(t)
	f.ready(t, "c1")

	body := f.post("/api/v1/viewer/idle", map[string]any{
		"clientid": "c1", "bbox": []float64{102.9, 2.9, 103.02, 3.02}, "zoom": 12,
	})
	for _, want := range []string{"visible-patches-count", "2.50 ha", "10.00 m"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body=%s, want %q", body, want)
		}
	}

	// Excluding every tier empties the readout.
	body = f.post("/api/v1/viewer/filter", map[string]any{"clientid": "c1", "tiers": []string{}})
	if !strings.Contains(body, "NO_MATCH") || !strings.Contains(body, "0.00 ha") || !strings.Contains(body, patch.ENNPlaceholder) {
		t.Fatalf("body=%s", body)
	}

	resp := f.api.Post("/api/v1/viewer/idle", map[string]any{"clientid": "c1", "bbox": []float64{1, 2}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("short bbox code=%d", resp.Code)
	}
}

func TestZoomWarning(t *testing.T) {
	f := newFixture(t)
	if body := f.post("/api/v1/viewer/zoom", map[string]any{"clientid": "c1", "zoom": 8}); !strings.Contains(body, `"zoomwarning":true`) {
		t.Fatalf("body=%s", body)
	}
	if body := f.post("/api/v1/viewer/zoom", map[string]any{"clientid": "c1", "zoom": 11}); !strings.Contains(body, `"zoomwarning":false`) {
		t.Fatalf("body=%s", body)
	}
}

func TestBasemapPersistsAndRearms(t *testing.T) {
	f := newFixture(t)
	f.ready(t, "c1")

	body := f.post("/api/v1/viewer/basemap", map[string]any{"clientid": "c1", "basemap": "satellite"})
	if !strings.Contains(body, "mapbox://styles/test/satellite") {
		t.Fatalf("body=%s", body)
	}
	if f.sess.Get("c1").Ready() {
		t.Fatal("style still ready after basemap switch")
	}
	p, err := f.h.prefs.Get(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Basemap != patch.BasemapSatellite {
		t.Fatalf("saved basemap=%q", p.Basemap)
	}

	f.post("/api/v1/viewer/dark-mode", map[string]any{"clientid": "c1", "darkmode": true})
	if p, _ = f.h.prefs.Get(context.Background(), "c1"); !p.DarkMode || p.Basemap != patch.BasemapSatellite {
		t.Fatalf("prefs=%+v", p)
	}
}

func TestBasemapSameStyleKeepsReady(t *testing.T) {
	yaml := strings.Replace(testYAML, `, satellite: "mapbox://styles/test/satellite"`, "", 1)
	f := newFixtureYAML(t, yaml)
	f.h.ApplyTimeout = 200 * time.Millisecond
	f.ready(t, "c1")

	body := f.post("/api/v1/viewer/basemap", map[string]any{"clientid": "c1", "basemap": "satellite"})
	if !strings.Contains(body, "mapbox://styles/test/custom") {
		t.Fatalf("body=%s, want custom style fallback", body)
	}
	if !f.sess.Get("c1").Ready() {
		t.Fatal("readiness re-armed although the style did not change")
	}

	f.post("/api/v1/viewer/filter", map[string]any{"clientid": "c1", "tiers": []string{"Tier 1"}})
	if got := f.sess.Get("c1").Active().Tiers(); len(got) != 1 || got[0] != "Tier 1" {
		t.Fatalf("filter not applied after basemap toggle: tiers=%v", got)
	}
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		f.bus.Publish(service.Event{Resource: "tiles", Action: "created", ID: "forest"})
		f.bus.Publish(service.Event{Resource: "filter", Action: "applied", Session: "other"})
	}()

	body := f.api.GetCtx(ctx, "/api/v1/viewer/events?clientid=c1").Body.String()
	if !strings.Contains(body, "resource-changed") || !strings.Contains(body, "forest") {
		t.Fatalf("body=%s", body)
	}
	if strings.Contains(body, "applied") {
		t.Fatal("event for another session delivered")
	}
}

func TestPage(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.h.Page(rec, httptest.NewRequest(http.MethodGet, "/viewer", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != ClientCookie || cookies[0].Value == "" {
		t.Fatalf("cookies=%v", cookies)
	}
	body := rec.Body.String()
	for _, id := range []string{"map", "visible-patches-count", "visible-patches-area", "visible-patches-enn", "patch-info-content", "map-notice"} {
		if !strings.Contains(body, `id="`+id+`"`) {
			t.Errorf("page missing #%s", id)
		}
	}
	if f.sess.Len() != 1 {
		t.Fatalf("sessions=%d", f.sess.Len())
	}
	for _, want := range []string{
		`"idAttr":"id"`,
		`"tierAttr":"Tier"`,
		"featureId: f.id", // highlight keyed by the tile feature id
		"window.patchMap.highlight(f.id)",
		"new mapboxgl.Popup(", // hover popup with id and category
		"map.on('mousemove', cfg.layerId",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %s", want)
		}
	}
	if strings.Contains(body, "highlight($selectedid") {
		t.Error("highlight still keyed by the patch id signal")
	}

	// A returning client keeps its id.
	req := httptest.NewRequest(http.MethodGet, "/viewer", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	f.h.Page(rec, req)
	if len(rec.Result().Cookies()) != 0 || f.sess.Len() != 1 {
		t.Fatal("returning client got a new id")
	}
}
