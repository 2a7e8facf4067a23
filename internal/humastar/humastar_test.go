package humastar

import (
	"reflect"
	"testing"
)

func TestSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{
		"clientid": "abc",
		"tiers": ["A", "", "B"],
		"single": "C",
		"minarea": "2.5",
		"maxarea": 10,
		"bbox": [103.1, 3.6, 103.6, 4.1],
		"badbox": [1, "x"],
		"darkmode": true,
		"properties": {"id": 7}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if s.String("clientid") != "abc" {
		t.Errorf("clientid=%q", s.String("clientid"))
	}
	if got := s.String("maxarea"); got != "10" {
		t.Errorf("maxarea as string=%q, want 10", got)
	}
	if got := s.Strings("tiers"); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("tiers=%v", got)
	}
	if got := s.Strings("single"); !reflect.DeepEqual(got, []string{"C"}) {
		t.Errorf("single=%v", got)
	}
	if got := s.Strings("missing"); got == nil || len(got) != 0 {
		t.Errorf("missing=%v, want empty non-nil", got)
	}
	if s.Float("minarea") != 2.5 {
		t.Errorf("minarea=%v", s.Float("minarea"))
	}
	if got := s.Floats("bbox"); len(got) != 4 || got[2] != 103.6 {
		t.Errorf("bbox=%v", got)
	}
	if s.Floats("badbox") != nil {
		t.Error("badbox should be nil")
	}
	if !s.Bool("darkmode") || s.Bool("clientid") || s.Bool("nope") {
		t.Error("bool")
	}
	if s.Object("properties")["id"] != float64(7) {
		t.Errorf("properties=%v", s.Object("properties"))
	}
}

func TestSignalsInputMustParse(t *testing.T) {
	in := &SignalsInput{RawBody: []byte("{")}
	if _, err := in.MustParse(); err == nil {
		t.Fatal("expected error")
	}
}

func TestActionsFor(t *testing.T) {
	defs := []ActionDef{
		{Rel: "self", Pattern: "/api/v1/patches/%s", Method: "GET"},
		{Rel: "select", Pattern: "/api/v1/patches/%s/select", Method: "POST", Title: "Select patch"},
	}
	actions := ActionsFor("a b", defs)
	if actions[0].Href != "/api/v1/patches/a%20b" {
		t.Fatalf("href=%q", actions[0].Href)
	}
	want := `</api/v1/patches/a%20b/select>; rel="select"; method="POST"; title="Select patch"`
	if got := actions[1].LinkHeader(); got != want {
		t.Fatalf("link=%s\nwant %s", got, want)
	}
}
