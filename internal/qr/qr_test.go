package qr

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"qrstudio/internal/domain"
)

func TestEncode_DataURLDecodesToPNG(t *testing.T) {
	url, err := Encode("https://example.com", Options{Size: 128})
	if err != nil {
		t.Fatal(err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("prefix = %q", url[:30])
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 128 || b.Dy() != 128 {
		t.Errorf("bounds = %v", b)
	}
}

func TestEncode_Rejects(t *testing.T) {
	cases := map[string]struct {
		content string
		opts    Options
	}{
		"empty":       {"", Options{}},
		"tiny":        {"x", Options{Size: 8}},
		"bad level":   {"x", Options{Level: "Z"}},
		"bad color":   {"x", Options{Foreground: "blue"}},
		"no contrast": {"x", Options{Foreground: "#FFFFFF", Background: "#FEFEFE"}},
	}
	for name, tc := range cases {
		if _, err := Encode(tc.content, tc.opts); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: err = %v, want ErrValidation", name, err)
		}
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#ff000080")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.(color.NRGBA); got != (color.NRGBA{R: 255, A: 128}) {
		t.Errorf("got %+v", got)
	}
	c, err = ParseColor("#0f0")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.(color.NRGBA); got != (color.NRGBA{G: 255, A: 255}) {
		t.Errorf("got %+v", got)
	}
}

func TestContrast(t *testing.T) {
	black := color.NRGBA{A: 255}
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if r := Contrast(black, white); r < 20 || r > 21.1 {
		t.Errorf("black/white contrast = %v", r)
	}
	if r := Contrast(white, white); r != 1 {
		t.Errorf("white/white contrast = %v", r)
	}
}

func TestGenerator_WiFi(t *testing.T) {
	g := NewGenerator(nil)
	out, err := g.GenerateJSON(domain.QRWiFi, []byte(`{"ssid":"Cafe;Guest","password":"p@ss"}`), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Payload != `WIFI:T:WPA;S:Cafe\;Guest;P:p@ss;;` {
		t.Errorf("payload = %q", out.Payload)
	}
	if !strings.HasPrefix(out.DataURL, "data:image/png;base64,") {
		t.Error("missing data URL")
	}
}

func TestGenerator_PayloadFromRecord(t *testing.T) {
	g := NewGenerator(nil)
	payload, err := g.Payload(domain.QREvent, []byte(`{"location":"Hall A"}`), map[string]any{
		"title": "Launch",
		"start": "2026-03-01 18:00:00",
		"extra": "ignored",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"BEGIN:VEVENT",
		"SUMMARY:Launch",
		"DTSTART:" + time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC).Format("20060102T150405Z"),
		"LOCATION:Hall A",
		"END:VEVENT",
	}, "\n")
	if payload != want {
		t.Errorf("payload =\n%s\nwant\n%s", payload, want)
	}
}

func TestGenerator_LocationCoercesStrings(t *testing.T) {
	g := NewGenerator(nil)
	payload, err := g.Payload(domain.QRLocation, nil, map[string]any{"latitude": "51.5", "longitude": "-0.12"})
	if err != nil {
		t.Fatal(err)
	}
	if payload != "geo:51.5,-0.12" {
		t.Errorf("payload = %q", payload)
	}
}
