package mcpserver

import (
	"reflect"
	"testing"

	"qrstudio/internal/domain"
)

func TestParsePages(t *testing.T) {
	tests := []struct {
		in   string
		want domain.PageSelection
	}{
		{"", domain.PageSelection{Mode: domain.PagesAll}},
		{"all", domain.PageSelection{Mode: domain.PagesAll}},
		{"current", domain.PageSelection{Mode: domain.PagesCurrent}},
		{"2-4", domain.PageSelection{Mode: domain.PagesRange, From: 2, To: 4}},
		{"3", domain.PageSelection{Mode: domain.PagesRange, From: 3, To: 3}},
	}
	for _, tt := range tests {
		got, err := parsePages(tt.in)
		if err != nil {
			t.Errorf("parsePages(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePages(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
	if _, err := parsePages("odd"); err == nil {
		t.Error("expected error for odd")
	}
}

func TestIDListArg(t *testing.T) {
	want := []string{"a", "b"}
	for _, v := range []any{
		[]any{"a", "b"},
		`["a","b"]`,
		"a, b",
	} {
		got, err := idListArg(map[string]any{"ids": v}, "ids")
		if err != nil || !reflect.DeepEqual(got, want) {
			t.Errorf("idListArg(%#v) = %v, %v", v, got, err)
		}
	}
	if _, err := idListArg(map[string]any{"ids": []any{1}}, "ids"); err == nil {
		t.Error("expected error for non-string IDs")
	}
}

func TestRawJSONArg(t *testing.T) {
	raw, err := rawJSONArg(map[string]any{"c": map[string]any{"url": "https://x.dev"}}, "c")
	if err != nil || string(raw) != `{"url":"https://x.dev"}` {
		t.Errorf("decoded value: %s, %v", raw, err)
	}
	if _, err := rawJSONArg(map[string]any{"c": "{nope"}, "c"); err == nil {
		t.Error("expected invalid JSON error")
	}
	if raw, _ := rawJSONArg(map[string]any{}, "c"); raw != nil {
		t.Errorf("missing = %s", raw)
	}
}

func TestSessionIDFromURI(t *testing.T) {
	if id := sessionIDFromURI("qrstudio://session/s-1/elements"); id != "s-1" {
		t.Errorf("id = %q", id)
	}
	for _, uri := range []string{"qrstudio://session/s-1", "qrstudio://templates", "qrstudio://session/s-1/pages"} {
		if id := sessionIDFromURI(uri); id != "" {
			t.Errorf("%s: id = %q", uri, id)
		}
	}
}
