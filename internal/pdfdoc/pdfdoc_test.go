package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"

	"qrstudio/internal/domain"
)

// minimalPDF builds a single-page A4 document whose page box is inherited
// from the page tree, with each line drawn by its own text object.
func minimalPDF(lines ...string) []byte {
	var content strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&content, "BT /F1 12 Tf 72 %d Td (%s) Tj ET\n", 720-i*20, l)
	}
	stream := content.String()
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 595 842] >>",
		"<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /FirstChar 32 /LastChar 126 /Widths [" +
			strings.TrimSpace(strings.Repeat("500 ", 95)) + "] >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) ConvertToImages(_ context.Context, url string, opts domain.ImageOptions) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, p := range opts.Pages {
		out = append(out, fmt.Sprintf("%s#page=%d", url, p))
	}
	return out, nil
}

func writePDF(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, minimalPDF(lines...), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_PageBoxAndText(t *testing.T) {
	path := writePDF(t, "Hello World", "Total due")
	l := NewLoader(HTTPFetcher{}, &fakeRenderer{}, 2)

	h, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if h.PageCount() != 1 {
		t.Fatalf("pages = %d", h.PageCount())
	}
	if s := h.PageSizes()[0]; s.Width != 595 || s.Height != 842 {
		t.Errorf("size = %+v", s)
	}

	runs, err := h.ExtractTextElements(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Text != "Hello World" || runs[1].Text != "Total due" {
		t.Errorf("texts = %q, %q", runs[0].Text, runs[1].Text)
	}
	if math.Abs(runs[0].X-72) > 0.5 || math.Abs(runs[0].Y-110) > 0.5 {
		t.Errorf("run position = (%v,%v), want (72,110)", runs[0].X, runs[0].Y)
	}

	matches, err := h.Search(context.Background(), "total")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Text != "Total" || matches[0].RunIx != 1 {
		t.Errorf("matches = %+v", matches)
	}
}

func TestLoad_RejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.pdf")
	os.WriteFile(path, []byte("not a pdf"), 0o644)
	_, err := NewLoader(HTTPFetcher{}, nil, 1).Load(context.Background(), path)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderAllPages_Sizes(t *testing.T) {
	path := writePDF(t, "x")
	h, err := NewLoader(HTTPFetcher{}, &fakeRenderer{}, 1).Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	pages, err := h.RenderAllPages(context.Background(), RenderOptions{DPI: 144})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].Width != 1190 || pages[0].Height != 1684 {
		t.Fatalf("pages = %+v", pages)
	}
}

func TestGroupRuns(t *testing.T) {
	glyph := func(x, y float64, s string) pdf.Text {
		return pdf.Text{Font: "F1", FontSize: 10, X: x, Y: y, W: 5, S: s}
	}
	glyphs := []pdf.Text{
		glyph(10, 700, "A"), glyph(15, 700, "B"),
		glyph(23, 700, "C"),  // 3pt gap reads as a space
		glyph(200, 700, "D"), // far right: new run
		glyph(10, 680, "E"),  // next line
		{Font: "F2", FontSize: 10, X: 15, Y: 680, W: 5, S: "F"},
	}
	runs := groupRuns(1, 800, glyphs)
	var texts []string
	for _, r := range runs {
		texts = append(texts, r.Text)
	}
	if got := strings.Join(texts, "|"); got != "AB C|D|E|F" {
		t.Fatalf("runs = %q", got)
	}
	if runs[0].Width != 18 || runs[0].Y != 90 {
		t.Errorf("first run box = %+v", runs[0])
	}
}

func TestSearchRuns_MultipleHitsInRun(t *testing.T) {
	runs := []domain.TextRun{{Page: 2, X: 0, Y: 5, Width: 60, Height: 10, Text: "ab ab "}}
	m := SearchRuns(runs, "AB")
	if len(m) != 2 {
		t.Fatalf("matches = %+v", m)
	}
	if m[1].Rect.X != 30 || m[1].Rect.Width != 20 {
		t.Errorf("second rect = %+v", m[1].Rect)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.pdf":
			w.Write(bytes.Repeat([]byte("x"), 100))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := HTTPFetcher{MaxBytes: 1000}
	b, err := f.Fetch(context.Background(), srv.URL+"/doc.pdf")
	if err != nil || len(b) != 100 {
		t.Fatalf("fetch = %d bytes, %v", len(b), err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.pdf"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing: %v", err)
	}
	small := HTTPFetcher{MaxBytes: 10}
	if _, err := small.Fetch(context.Background(), srv.URL+"/doc.pdf"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("oversize: %v", err)
	}
}

type memCache struct {
	data map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func TestDocumentLoader_CachesRenders(t *testing.T) {
	path := writePDF(t, "Invoice", "Total")
	renderer := &fakeRenderer{}
	d := &DocumentLoader{
		Loader: NewLoader(HTTPFetcher{}, renderer, 1),
		Cache:  &memCache{data: map[string][]byte{}},
		Render: RenderOptions{DPI: 72, Format: domain.ExportPNG},
	}

	for i := 0; i < 2; i++ {
		info, err := d.Load(context.Background(), path)
		if err != nil {
			t.Fatal(err)
		}
		if info.PageCount != 1 || len(info.Pages) != 1 || len(info.TextRuns) != 2 {
			t.Fatalf("info = %+v", info)
		}
	}
	if renderer.calls != 1 {
		t.Errorf("renderer calls = %d, want 1", renderer.calls)
	}
}

func TestDocumentLoader_RenderFailure(t *testing.T) {
	path := writePDF(t, "x")
	d := &DocumentLoader{Loader: NewLoader(HTTPFetcher{}, &fakeRenderer{err: domain.ErrRemote}, 1)}
	if _, err := d.Load(context.Background(), path); !errors.Is(err, domain.ErrRemote) {
		t.Fatalf("err = %v", err)
	}
}
