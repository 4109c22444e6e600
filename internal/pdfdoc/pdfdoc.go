// Package pdfdoc opens source PDFs, extracts positioned text runs and
// delegates page rasterization to the remote conversion service.
package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"qrstudio/internal/domain"
)

// RenderOptions controls remote page rasterization.
type RenderOptions struct {
	DPI    int
	Format domain.ExportFormat // png or jpg
}

// PageRenderer is the remote side of RenderAllPages.
type PageRenderer interface {
	ConvertToImages(ctx context.Context, url string, opts domain.ImageOptions) ([]string, error)
}

// Handle is an opened source document.
type Handle interface {
	SourceURL() string
	PageCount() int
	PageSizes() []domain.Size
	Title() string
	RenderAllPages(ctx context.Context, opts RenderOptions) ([]domain.PageRender, error)
	ExtractTextElements(ctx context.Context) ([]domain.TextRun, error)
	Search(ctx context.Context, term string) ([]domain.TextMatch, error)
}

// Loader opens documents.
type Loader interface {
	Load(ctx context.Context, source string) (Handle, error)
}

// PDFLoader is the Loader backed by ledongthuc/pdf.
type PDFLoader struct {
	Fetcher  Fetcher
	Renderer PageRenderer
	Workers  int // text extraction workers, 0 = NumCPU
}

func NewLoader(fetcher Fetcher, renderer PageRenderer, workers int) *PDFLoader {
	return &PDFLoader{Fetcher: fetcher, Renderer: renderer, Workers: workers}
}

func (l *PDFLoader) Load(ctx context.Context, source string) (Handle, error) {
	data, err := l.Fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a readable PDF: %v", domain.ErrValidation, err)
	}
	n := r.NumPage()
	if n < 1 {
		return nil, fmt.Errorf("%w: PDF has no pages", domain.ErrValidation)
	}
	h := &pdfHandle{
		source:   source,
		data:     data,
		pages:    n,
		renderer: l.Renderer,
		workers:  l.Workers,
	}
	h.sizes = make([]domain.Size, n)
	for i := 1; i <= n; i++ {
		h.sizes[i-1] = mediaBox(r.Page(i))
	}
	h.title = documentTitle(r)
	return h, nil
}

type pdfHandle struct {
	source   string
	data     []byte
	pages    int
	sizes    []domain.Size
	title    string
	renderer PageRenderer
	workers  int

	runsOnce sync.Once
	runs     []domain.TextRun
	runsErr  error
}

func (h *pdfHandle) SourceURL() string        { return h.source }
func (h *pdfHandle) PageCount() int           { return h.pages }
func (h *pdfHandle) PageSizes() []domain.Size { return append([]domain.Size(nil), h.sizes...) }
func (h *pdfHandle) Title() string            { return h.title }

// RenderAllPages asks the remote service for one image per page. Pixel
// sizes are derived from the page boxes at the requested DPI.
func (h *pdfHandle) RenderAllPages(ctx context.Context, opts RenderOptions) ([]domain.PageRender, error) {
	if h.renderer == nil {
		return nil, fmt.Errorf("render pages: %w: no renderer configured", domain.ErrRemote)
	}
	if opts.DPI <= 0 {
		opts.DPI = 150
	}
	if opts.Format == "" {
		opts.Format = domain.ExportPNG
	}
	pages := make([]int, h.pages)
	for i := range pages {
		pages[i] = i + 1
	}
	urls, err := h.renderer.ConvertToImages(ctx, h.source, domain.ImageOptions{Format: opts.Format, DPI: opts.DPI, Pages: pages})
	if err != nil {
		return nil, fmt.Errorf("render pages: %w", err)
	}
	if len(urls) != h.pages {
		return nil, fmt.Errorf("render pages: %w: got %d images for %d pages", domain.ErrRemote, len(urls), h.pages)
	}
	out := make([]domain.PageRender, h.pages)
	scale := float64(opts.DPI) / 72
	for i, u := range urls {
		out[i] = domain.PageRender{
			Page:     i + 1,
			ImageURL: u,
			Width:    int(h.sizes[i].Width*scale + 0.5),
			Height:   int(h.sizes[i].Height*scale + 0.5),
		}
	}
	return out, nil
}

type pageResult struct {
	page int
	runs []domain.TextRun
	err  error
}

// ExtractTextElements returns every text run, page by page in reading order.
// Pages are processed by a worker pool; each worker parses its own reader.
func (h *pdfHandle) ExtractTextElements(ctx context.Context) ([]domain.TextRun, error) {
	h.runsOnce.Do(func() {
		h.runs, h.runsErr = h.extract(ctx)
	})
	return h.runs, h.runsErr
}

func (h *pdfHandle) extract(ctx context.Context) ([]domain.TextRun, error) {
	workers := h.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > h.pages {
		workers = h.pages
	}

	pageNums := make(chan int, h.pages)
	results := make(chan pageResult, h.pages)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := pdf.NewReader(bytes.NewReader(h.data), int64(len(h.data)))
			if err != nil {
				for p := range pageNums {
					results <- pageResult{page: p, err: err}
				}
				return
			}
			for p := range pageNums {
				if ctx.Err() != nil {
					results <- pageResult{page: p, err: ctx.Err()}
					continue
				}
				runs, err := pageRuns(r, p, h.sizes[p-1])
				results <- pageResult{page: p, runs: runs, err: err}
			}
		}()
	}

	for p := 1; p <= h.pages; p++ {
		pageNums <- p
	}
	close(pageNums)

	go func() {
		wg.Wait()
		close(results)
	}()

	byPage := make([][]domain.TextRun, h.pages)
	var failed int
	for res := range results {
		if res.err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("[Editor] text extraction failed on page %d: %v", res.page, res.err)
			failed++
			continue
		}
		byPage[res.page-1] = res.runs
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == h.pages {
		return nil, fmt.Errorf("%w: no page text could be extracted", domain.ErrRemote)
	}

	var all []domain.TextRun
	for _, runs := range byPage {
		all = append(all, runs...)
	}
	return all, nil
}

// pageRuns extracts one page. The parser panics on some malformed content
// streams; that is reported as an error for the page.
func pageRuns(r *pdf.Reader, page int, size domain.Size) (runs []domain.TextRun, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse page %d: %v", page, rec)
		}
	}()
	p := r.Page(page)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d missing", page)
	}
	return groupRuns(page, size.Height, p.Content().Text), nil
}

// Search finds case-insensitive occurrences of term inside text runs.
func (h *pdfHandle) Search(ctx context.Context, term string) ([]domain.TextMatch, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", domain.ErrValidation)
	}
	runs, err := h.ExtractTextElements(ctx)
	if err != nil {
		return nil, err
	}
	return SearchRuns(runs, term), nil
}

// SearchRuns matches term against runs. The match rectangle is the run box
// narrowed proportionally to the matched characters.
func SearchRuns(runs []domain.TextRun, term string) []domain.TextMatch {
	needle := []rune(strings.ToLower(term))
	var out []domain.TextMatch
	for i, run := range runs {
		hay := []rune(strings.ToLower(run.Text))
		if len(hay) == 0 {
			continue
		}
		charW := run.Width / float64(len(hay))
		for start := 0; start+len(needle) <= len(hay); {
			if !runesEqual(hay[start:start+len(needle)], needle) {
				start++
				continue
			}
			out = append(out, domain.TextMatch{
				Page:  run.Page,
				RunIx: i,
				Text:  string([]rune(run.Text)[start : start+len(needle)]),
				Rect: domain.Rect{
					X:      run.X + charW*float64(start),
					Y:      run.Y,
					Width:  charW * float64(len(needle)),
					Height: run.Height,
				},
			})
			start += len(needle)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Page < out[b].Page })
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// mediaBox reads the page box, following inherited attributes up the page
// tree. US Letter is assumed when none is present.
func mediaBox(p pdf.Page) domain.Size {
	v := p.V
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			if w > 0 && h > 0 {
				return domain.Size{Width: w, Height: h}
			}
		}
		v = v.Key("Parent")
	}
	return domain.Size{Width: 612, Height: 792}
}

func documentTitle(r *pdf.Reader) (title string) {
	defer func() {
		if recover() != nil {
			title = ""
		}
	}()
	return strings.TrimSpace(r.Trailer().Key("Info").Key("Title").Text())
}
