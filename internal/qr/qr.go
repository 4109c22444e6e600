// Package qr encodes QR payloads to PNG images with go-qrcode.
package qr

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	qrcode "github.com/skip2/go-qrcode"

	"qrstudio/internal/domain"
)

const (
	MinSize     = 64
	MaxSize     = 2048
	DefaultSize = 256
)

// Options controls how a payload is drawn.
type Options struct {
	Size       int    `json:"size"`       // pixels per side
	Foreground string `json:"foreground"` // "#rrggbb" or "#rrggbbaa"
	Background string `json:"background"`
	Level      string `json:"level"` // L, M, Q, H
	NoBorder   bool   `json:"noBorder"`
}

func (o Options) withDefaults() Options {
	if o.Size == 0 {
		o.Size = DefaultSize
	}
	if o.Foreground == "" {
		o.Foreground = "#000000"
	}
	if o.Background == "" {
		o.Background = "#FFFFFF"
	}
	if o.Level == "" {
		o.Level = "M"
	}
	return o
}

// ParseLevel maps L/M/Q/H onto go-qrcode recovery levels.
func ParseLevel(s string) (qrcode.RecoveryLevel, error) {
	switch strings.ToUpper(s) {
	case "L":
		return qrcode.Low, nil
	case "M", "":
		return qrcode.Medium, nil
	case "Q":
		return qrcode.High, nil
	case "H":
		return qrcode.Highest, nil
	}
	return 0, fmt.Errorf("%w: unknown error correction level %q", domain.ErrValidation, s)
}

// ParseColor reads "#rgb", "#rrggbb" or "#rrggbbaa".
func ParseColor(s string) (color.Color, error) {
	s = strings.TrimSpace(s)
	if len(s) == 9 && s[0] == '#' {
		c, err := colorful.Hex(s[:7])
		if err != nil {
			return nil, fmt.Errorf("%w: bad color %q", domain.ErrValidation, s)
		}
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: bad color %q", domain.ErrValidation, s)
		}
		r, g, b := c.RGB255()
		return color.NRGBA{R: r, G: g, B: b, A: uint8(a)}, nil
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad color %q", domain.ErrValidation, s)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// Contrast returns the WCAG contrast ratio between two opaque colors.
func Contrast(a, b color.Color) float64 {
	la := luminance(a)
	lb := luminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}

func luminance(c color.Color) float64 {
	cf, _ := colorful.MakeColor(c)
	r, g, b := cf.LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// minContrast keeps codes scannable; below it most readers fail.
const minContrast = 2.0

func build(content string, o Options) (*qrcode.QRCode, error) {
	o = o.withDefaults()
	if content == "" {
		return nil, fmt.Errorf("%w: QR content is empty", domain.ErrValidation)
	}
	if o.Size < MinSize || o.Size > MaxSize {
		return nil, fmt.Errorf("%w: size %d outside %d-%d", domain.ErrValidation, o.Size, MinSize, MaxSize)
	}
	level, err := ParseLevel(o.Level)
	if err != nil {
		return nil, err
	}
	fg, err := ParseColor(o.Foreground)
	if err != nil {
		return nil, err
	}
	bg, err := ParseColor(o.Background)
	if err != nil {
		return nil, err
	}
	if _, _, _, a := bg.RGBA(); a == 0xffff && Contrast(fg, bg) < minContrast {
		return nil, fmt.Errorf("%w: foreground and background are too similar to scan", domain.ErrValidation)
	}
	q, err := qrcode.New(content, level)
	if err != nil {
		return nil, fmt.Errorf("%w: encode QR: %v", domain.ErrValidation, err)
	}
	q.ForegroundColor = fg
	q.BackgroundColor = bg
	q.DisableBorder = o.NoBorder
	return q, nil
}

// PNG encodes content as a PNG image.
func PNG(content string, o Options) ([]byte, error) {
	q, err := build(content, o)
	if err != nil {
		return nil, err
	}
	return q.PNG(o.withDefaults().Size)
}

// Image encodes content as an in-memory image, for compositing.
func Image(content string, o Options) (image.Image, error) {
	q, err := build(content, o)
	if err != nil {
		return nil, err
	}
	return q.Image(o.withDefaults().Size), nil
}

// Encode returns content as a PNG data URL.
func Encode(content string, o Options) (string, error) {
	png, err := PNG(content, o)
	if err != nil {
		return "", err
	}
	return DataURL(png), nil
}

func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// OptionsForBody converts a QR element body and a pixel size to Options.
func OptionsForBody(b domain.QRBody, size int) Options {
	if size < MinSize {
		size = MinSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return Options{Size: size, Foreground: b.Foreground, Background: b.Background, Level: b.ErrorLevel}
}

// EncodeBody renders a QR element body; it satisfies editor.QREncoder.
func EncodeBody(b domain.QRBody, size int) (string, error) {
	return Encode(b.Content, OptionsForBody(b, size))
}
