package editor_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"

	"qrstudio/internal/domain"
	"qrstudio/internal/editor"
)

type fakeConverter struct {
	mu          sync.Mutex
	finalizeErr error
	imagesErr   error
	payloads    []domain.ModificationPayload
	exported    []domain.ExportFormat
}

func (f *fakeConverter) Finalize(_ context.Context, src string, mods domain.ModificationPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, mods)
	if f.finalizeErr != nil {
		return "", f.finalizeErr
	}
	return src + "?final", nil
}

func (f *fakeConverter) ConvertToImages(_ context.Context, url string, opts domain.ImageOptions) ([]string, error) {
	if f.imagesErr != nil {
		return nil, f.imagesErr
	}
	var out []string
	for _, p := range opts.Pages {
		out = append(out, fmt.Sprintf("%s&page=%d.%s", url, p, opts.Format))
	}
	return out, nil
}

func (f *fakeConverter) Export(_ context.Context, url string, format domain.ExportFormat) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exported = append(f.exported, format)
	return url + "." + string(format), nil
}

type fakeRaster struct {
	err  error
	jobs []editor.RasterJob
}

func (f *fakeRaster) Rasterize(_ context.Context, job editor.RasterJob) ([]string, error) {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, p := range job.Pages {
		out = append(out, fmt.Sprintf("file:///exports/page-%d.%s", p, job.Format))
	}
	return out, nil
}

func fakeQR(body domain.QRBody, size int) (string, error) {
	return "data:image/png;base64," + body.Content, nil
}

func exportSession(t *testing.T, conv *fakeConverter, raster *fakeRaster) *editor.Session {
	t.Helper()
	var r editor.Rasterizer
	if raster != nil {
		r = raster
	}
	exp := editor.NewExporter(conv, r, fakeQR)
	s, _ := newSession(t, &fakeLoader{info: twoPageDoc()}, exp)
	if err := s.Load(context.Background(), "https://cdn.test/doc.pdf", nil); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestExport_PDF(t *testing.T) {
	conv := &fakeConverter{}
	s := exportSession(t, conv, nil)
	s.AddElement(textAt(1, 10, 10))
	s.AddElement(domain.Element{
		Page: 2, Rect: domain.Rect{Width: 50, Height: 50}, Opacity: 1,
		Body: domain.QRBody{Content: "hello"},
	})

	res, err := s.Export(context.Background(), domain.ExportRequest{Format: domain.ExportPDF})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.URLs) != 1 || res.URLs[0] != "https://cdn.test/doc.pdf?final" || res.Fallback {
		t.Fatalf("result = %+v", res)
	}
	p := conv.payloads[0]
	if len(p.Pages) != 2 || len(p.Pages[0].Modifications) != 1 || len(p.Pages[1].Modifications) != 1 {
		t.Fatalf("payload = %+v", p)
	}
	qr := p.Pages[1].Modifications[0]
	if qr.Type != domain.ElementQR || qr.ImageData != "data:image/png;base64,hello" {
		t.Errorf("qr modification = %+v", qr)
	}
	if p.Pages[0].Modifications[0].Props["content"] != "hello" {
		t.Errorf("text props = %v", p.Pages[0].Modifications[0].Props)
	}
	if s.State() != editor.StateReady {
		t.Errorf("state after export = %s", s.State())
	}
}

func TestExport_PageSelection(t *testing.T) {
	conv := &fakeConverter{}
	s := exportSession(t, conv, nil)
	s.SetPage(2)

	res, err := s.Export(context.Background(), domain.ExportRequest{
		Format: domain.ExportPNG,
		Pages:  domain.PageSelection{Mode: domain.PagesCurrent},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.URLs) != 1 || !strings.HasSuffix(res.URLs[0], "page=2.png") {
		t.Fatalf("urls = %v", res.URLs)
	}

	_, err = s.Export(context.Background(), domain.ExportRequest{
		Format: domain.ExportPNG,
		Pages:  domain.PageSelection{Mode: domain.PagesRange, From: 2, To: 5},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad range: %v", err)
	}
}

func TestExport_Office(t *testing.T) {
	conv := &fakeConverter{}
	s := exportSession(t, conv, nil)
	res, err := s.Export(context.Background(), domain.ExportRequest{Format: domain.ExportDOCX})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(conv.exported, []domain.ExportFormat{domain.ExportDOCX}) {
		t.Fatalf("exported = %v", conv.exported)
	}
	if !strings.HasSuffix(res.URLs[0], ".docx") {
		t.Fatalf("url = %s", res.URLs[0])
	}
}

func TestExport_RasterFallsBackLocally(t *testing.T) {
	conv := &fakeConverter{imagesErr: fmt.Errorf("images: %w", domain.ErrRemote)}
	raster := &fakeRaster{}
	s := exportSession(t, conv, raster)
	s.AddElement(textAt(1, 10, 10))
	s.AddElement(textAt(2, 10, 10))
	before := s.Elements()

	res, err := s.Export(context.Background(), domain.ExportRequest{Format: domain.ExportPNG})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fallback || len(res.URLs) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(raster.jobs) != 1 || raster.jobs[0].DPI != 150 || len(raster.jobs[0].Elements) != 2 {
		t.Fatalf("raster jobs = %+v", raster.jobs)
	}
	if got := s.Elements(); !reflect.DeepEqual(got, before) {
		t.Fatal("export mutated the element store")
	}
}

func TestExport_BothFailNotifies(t *testing.T) {
	conv := &fakeConverter{finalizeErr: fmt.Errorf("finalize: %w", domain.ErrRemote)}
	raster := &fakeRaster{err: errors.New("disk full")}
	exp := editor.NewExporter(conv, raster, fakeQR)
	s, em := newSession(t, &fakeLoader{info: twoPageDoc()}, exp)
	s.Load(context.Background(), "https://cdn.test/doc.pdf", nil)
	s.AddElement(textAt(1, 10, 10))
	before := s.Elements()

	_, err := s.Export(context.Background(), domain.ExportRequest{Format: domain.ExportJPG})
	if !errors.Is(err, domain.ErrRemote) {
		t.Fatalf("err = %v", err)
	}
	n, ok := em.Last(editor.EventNotify).(domain.Notification)
	if !ok || n.Kind != domain.NotifyFailure {
		t.Fatalf("notification = %#v", em.Last(editor.EventNotify))
	}
	if got := s.Elements(); !reflect.DeepEqual(got, before) {
		t.Fatal("failed export mutated the element store")
	}
	st := s.LastExport()
	if st == nil || st.Error == "" {
		t.Fatalf("last export = %+v", st)
	}
	if s.State() != editor.StateReady {
		t.Fatalf("state = %s", s.State())
	}
}

type blockingConverter struct {
	fakeConverter
	release map[string]chan struct{}
	entered chan string
}

func (b *blockingConverter) Finalize(ctx context.Context, src string, mods domain.ModificationPayload) (string, error) {
	tag := fmt.Sprint(len(mods.Pages))
	b.entered <- tag
	<-b.release[tag]
	return "final-" + tag, nil
}

func TestExport_ConcurrentLatestCompletionWins(t *testing.T) {
	conv := &blockingConverter{
		release: map[string]chan struct{}{"1": make(chan struct{}), "2": make(chan struct{})},
		entered: make(chan string, 2),
	}
	exp := editor.NewExporter(conv, nil, fakeQR)
	s, _ := newSession(t, &fakeLoader{info: twoPageDoc()}, exp)
	s.Load(context.Background(), "https://cdn.test/doc.pdf", nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Export(context.Background(), domain.ExportRequest{Format: domain.ExportPDF}) // 2 pages
	}()
	<-conv.entered
	go func() {
		defer wg.Done()
		s.Export(context.Background(), domain.ExportRequest{
			Format: domain.ExportPDF,
			Pages:  domain.PageSelection{Mode: domain.PagesCurrent},
		})
	}()
	<-conv.entered

	if s.State() != editor.StateExporting {
		t.Fatalf("state = %s while exporting", s.State())
	}
	if _, err := s.AddElement(textAt(1, 0, 0)); err != nil {
		t.Fatalf("editing during export: %v", err)
	}

	close(conv.release["1"]) // second export finishes first
	for s.LastExport() == nil {
		runtime.Gosched()
	}
	close(conv.release["2"])
	wg.Wait()

	st := s.LastExport()
	if st.Seq != 1 || st.Result.URLs[0] != "final-2" {
		t.Fatalf("last export = %+v, want the first export (finished last)", st)
	}
	if s.State() != editor.StateReady {
		t.Fatalf("state = %s", s.State())
	}
}
