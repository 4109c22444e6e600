package domain

import (
	"encoding/json"
	"testing"
)

func TestElementJSON_OpacityDefault(t *testing.T) {
	var el Element
	if err := json.Unmarshal([]byte(`{"page":1,"type":"shape","props":{"shape":"rect"}}`), &el); err != nil {
		t.Fatal(err)
	}
	if el.Opacity != 1 {
		t.Errorf("missing opacity decoded as %v, want 1", el.Opacity)
	}

	if err := json.Unmarshal([]byte(`{"page":1,"opacity":0,"type":"shape","props":{"shape":"rect"}}`), &el); err != nil {
		t.Fatal(err)
	}
	if el.Opacity != 0 {
		t.Errorf("explicit opacity 0 decoded as %v", el.Opacity)
	}

	b, err := json.Marshal(Element{Page: 1, Opacity: 0.5, Body: ShapeBody{Shape: ShapeRect}})
	if err != nil {
		t.Fatal(err)
	}
	var back Element
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.Opacity != 0.5 || back.Kind() != ElementShape {
		t.Errorf("round trip = %+v", back)
	}
}
