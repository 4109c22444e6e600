package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

type fontKey struct {
	mono, bold, italic bool
}

var (
	fontsOnce sync.Once
	fonts     map[fontKey]*truetype.Font
	fontsErr  error
)

func loadFonts() {
	fonts = make(map[fontKey]*truetype.Font)
	sources := map[fontKey][]byte{
		{}:                         goregular.TTF,
		{bold: true}:               gobold.TTF,
		{italic: true}:             goitalic.TTF,
		{bold: true, italic: true}: gobolditalic.TTF,
		{mono: true}:               gomono.TTF,
	}
	for k, data := range sources {
		f, err := truetype.Parse(data)
		if err != nil {
			fontsErr = fmt.Errorf("failed to parse font: %v", err)
			return
		}
		fonts[k] = f
	}
}

// face picks a Go font for the family and style at size pixels. Monospace
// families ignore bold and italic.
func face(family string, bold, italic bool, size float64) (font.Face, error) {
	fontsOnce.Do(loadFonts)
	if fontsErr != nil {
		return nil, fontsErr
	}
	k := fontKey{bold: bold, italic: italic}
	switch strings.ToLower(family) {
	case "courier", "courier new", "monospace", "mono", "go mono":
		k = fontKey{mono: true}
	}
	if size < 1 {
		size = 1
	}
	return truetype.NewFace(fonts[k], &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	}), nil
}
