package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"qrstudio/internal/domain"
	"qrstudio/internal/editor"
	"qrstudio/internal/objstore"
	"qrstudio/internal/qr"
)

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, src string) ([]byte, error) {
	if b, ok := m[src]; ok {
		return b, nil
	}
	return nil, domain.ErrRemote
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func rgb(img image.Image, x, y int) (uint8, uint8, uint8) {
	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	return c.R, c.G, c.B
}

func job(elements ...domain.Element) editor.RasterJob {
	return editor.RasterJob{
		Doc: domain.DocumentInfo{
			PageCount: 1,
			PageSizes: []domain.Size{{Width: 100, Height: 100}},
			Pages:     []domain.PageRender{{Page: 1, ImageURL: "bg://1", Width: 100, Height: 100}},
		},
		Pages:    []int{1},
		Elements: elements,
		Format:   domain.ExportPNG,
		DPI:      72,
	}
}

func TestPage_BackgroundAndShapes(t *testing.T) {
	l := &Local{Fetch: mapFetcher{"bg://1": solidPNG(t, 50, 50, color.NRGBA{B: 0xff, A: 0xff})}}
	red := domain.Element{
		ID: "r", Page: 1, Opacity: 1, Z: 1,
		Rect: domain.Rect{X: 10, Y: 10, Width: 20, Height: 20},
		Body: domain.ShapeBody{Shape: domain.ShapeRect, Fill: "#FF0000", Stroke: "#FF0000"},
	}
	green := domain.Element{
		ID: "g", Page: 1, Opacity: 1, Z: 2,
		Rect: domain.Rect{X: 20, Y: 20, Width: 20, Height: 20},
		Body: domain.ShapeBody{Shape: domain.ShapeRect, Fill: "#00FF00"},
	}
	offPage := domain.Element{
		ID: "x", Page: 2, Opacity: 1,
		Rect: domain.Rect{X: 0, Y: 0, Width: 100, Height: 100},
		Body: domain.ShapeBody{Shape: domain.ShapeRect, Fill: "#000000"},
	}

	img, err := l.Page(context.Background(), job(green, red, offPage), 1)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("bounds = %v", b)
	}
	if r, g, b := rgb(img, 80, 80); r != 0 || g != 0 || b != 0xff {
		t.Errorf("background = %d,%d,%d, want blue", r, g, b)
	}
	if r, _, _ := rgb(img, 15, 15); r != 0xff {
		t.Errorf("red square missing at 15,15")
	}
	// Higher Z draws last even though it was listed first.
	if r, g, _ := rgb(img, 25, 25); r != 0 || g != 0xff {
		t.Errorf("overlap = %d,%d, want green on top", r, g)
	}
}

func TestPage_TransparentElementIsNotDrawn(t *testing.T) {
	l := &Local{Fetch: mapFetcher{}}
	hidden := domain.Element{
		ID: "h", Page: 1, Opacity: 0,
		Rect: domain.Rect{X: 10, Y: 10, Width: 20, Height: 20},
		Body: domain.ShapeBody{Shape: domain.ShapeRect, Fill: "#FF0000", Stroke: "#FF0000"},
	}
	img, err := l.Page(context.Background(), job(hidden), 1)
	if err != nil {
		t.Fatal(err)
	}
	if r, g, b := rgb(img, 15, 15); r != 0xff || g != 0xff || b != 0xff {
		t.Errorf("pixel = %d,%d,%d, want white under an opacity-0 element", r, g, b)
	}

	// The remote payload carries the same opacity.
	mods, err := (&editor.Exporter{}).BuildModifications([]domain.Element{hidden}, []int{1})
	if err != nil {
		t.Fatal(err)
	}
	if len(mods.Pages) != 1 || len(mods.Pages[0].Modifications) != 1 || mods.Pages[0].Modifications[0].Opacity != 0 {
		t.Errorf("payload = %+v", mods)
	}
}

func TestPage_MissingBackgroundIsWhite(t *testing.T) {
	l := &Local{Fetch: mapFetcher{}}
	img, err := l.Page(context.Background(), job(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if r, g, b := rgb(img, 50, 50); r != 0xff || g != 0xff || b != 0xff {
		t.Errorf("pixel = %d,%d,%d, want white", r, g, b)
	}
}

func TestPage_QRElement(t *testing.T) {
	l := &Local{}
	el := domain.Element{
		ID: "q", Page: 1, Opacity: 1,
		Rect: domain.Rect{X: 0, Y: 0, Width: 100, Height: 100},
		Body: domain.QRBody{Content: "https://example.com", Foreground: "#000000", Background: "#FFFFFF", ErrorLevel: "M"},
	}
	img, err := l.Page(context.Background(), job(el), 1)
	if err != nil {
		t.Fatal(err)
	}
	dark := 0
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if r, _, _ := rgb(img, x, y); r < 0x40 {
				dark++
			}
		}
	}
	if dark < 500 {
		t.Errorf("only %d dark pixels, QR code not drawn", dark)
	}
}

func TestPage_ImageFromDataURL(t *testing.T) {
	l := &Local{}
	src := qr.DataURL(solidPNG(t, 10, 10, color.NRGBA{R: 0xff, A: 0xff}))
	el := domain.Element{
		ID: "i", Page: 1, Opacity: 1,
		Rect: domain.Rect{X: 0, Y: 0, Width: 50, Height: 50},
		Body: domain.ImageBody{Source: src, Fit: "stretch"},
	}
	img, err := l.Page(context.Background(), job(el), 1)
	if err != nil {
		t.Fatal(err)
	}
	if r, g, _ := rgb(img, 25, 25); r != 0xff || g != 0 {
		t.Errorf("image not drawn: %d,%d", r, g)
	}
}

func TestRasterize_StoresPages(t *testing.T) {
	store, err := objstore.NewLocalStore(t.TempDir(), "http://127.0.0.1:1/files", objstore.Policy{})
	if err != nil {
		t.Fatal(err)
	}
	l := NewLocal(store, nil)
	j := job()
	j.Doc.PageCount = 2
	j.Doc.PageSizes = append(j.Doc.PageSizes, domain.Size{Width: 50, Height: 50})
	j.Pages = []int{1, 2}
	j.Format = domain.ExportJPG

	urls, err := l.Rasterize(context.Background(), j)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 || !strings.HasSuffix(urls[1], "/page-2.jpg") {
		t.Fatalf("urls = %v", urls)
	}
	path := strings.TrimPrefix(urls[0], "http://127.0.0.1:1/files/")
	rc, ct, err := store.Get(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	rc.Close()
	if ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}
}

func TestRasterize_RejectsDocumentFormats(t *testing.T) {
	store, _ := objstore.NewLocalStore(t.TempDir(), "http://x", objstore.Policy{})
	j := job()
	j.Format = domain.ExportPDF
	if _, err := NewLocal(store, nil).Rasterize(context.Background(), j); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("err = %v", err)
	}
}

func TestPrintSheet(t *testing.T) {
	code, err := qr.PNG("https://example.com/1", qr.Options{Size: 128})
	if err != nil {
		t.Fatal(err)
	}
	var items []SheetItem
	for i := 0; i < 20; i++ {
		items = append(items, SheetItem{Label: strings.Repeat("row label ", i%4+1), PNG: code})
	}

	var buf bytes.Buffer
	if err := PrintSheet(&buf, items, SheetOptions{Title: "Spring mailer"}); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", buf.Bytes()[:16])
	}
	if n := bytes.Count(buf.Bytes(), []byte("/Type /Page\n")); n < 2 {
		t.Errorf("pages = %d, want the grid to spill onto a second page", n)
	}
}
