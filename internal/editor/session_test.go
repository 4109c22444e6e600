package editor_test

import (
	"context"
	"errors"
	"reflect"
	"runtime"
	"testing"

	"qrstudio/internal/domain"
	"qrstudio/internal/editor"
	"qrstudio/internal/service"
)

type fakeLoader struct {
	info *domain.DocumentInfo
	err  error
	wait chan struct{}
}

func (f *fakeLoader) Load(ctx context.Context, url string) (*domain.DocumentInfo, error) {
	if f.wait != nil {
		<-f.wait
	}
	if f.err != nil {
		return nil, f.err
	}
	info := *f.info
	info.SourceURL = url
	return &info, nil
}

func twoPageDoc() *domain.DocumentInfo {
	return &domain.DocumentInfo{
		PageCount: 2,
		PageSizes: []domain.Size{{Width: 612, Height: 792}, {Width: 612, Height: 792}},
		Pages: []domain.PageRender{
			{Page: 1, ImageURL: "https://cdn.test/p1.png", Width: 1275, Height: 1650},
			{Page: 2, ImageURL: "https://cdn.test/p2.png", Width: 1275, Height: 1650},
		},
		TextRuns: []domain.TextRun{
			{Page: 1, X: 72, Y: 72, Width: 120, Height: 12, FontName: "Helvetica", FontSize: 12, Text: "Invoice"},
			{Page: 1, X: 72, Y: 100, Width: 80, Height: 12, FontName: "Helvetica", FontSize: 12, Text: "Total"},
		},
	}
}

func newSession(t *testing.T, loader editor.DocumentLoader, exp *editor.Exporter) (*editor.Session, *service.MockEmitter) {
	t.Helper()
	em := &service.MockEmitter{}
	s := editor.NewSession(context.Background(), "s1", editor.Deps{
		Loader:   loader,
		Exporter: exp,
		Emitter:  em,
	})
	return s, em
}

func readySession(t *testing.T) (*editor.Session, *service.MockEmitter) {
	t.Helper()
	s, em := newSession(t, &fakeLoader{info: twoPageDoc()}, nil)
	if err := s.Load(context.Background(), "https://cdn.test/doc.pdf", nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, em
}

func states(em *service.MockEmitter) []editor.State {
	var out []editor.State
	for _, d := range em.Named(editor.EventState) {
		out = append(out, d.(editor.StateEvent).State)
	}
	return out
}

func TestSession_LoadTransitions(t *testing.T) {
	s, em := readySession(t)

	want := []editor.State{editor.StateLoading, editor.StateReady}
	if got := states(em); !reflect.DeepEqual(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	doc := s.Document()
	if doc == nil || len(doc.Pages) < 1 {
		t.Fatal("no page renders after load")
	}
	if len(doc.TextRuns) != 2 {
		t.Errorf("text runs = %d, want 2", len(doc.TextRuns))
	}
	if s.CanUndo() {
		t.Error("fresh document should have nothing to undo")
	}
}

func TestSession_LoadFailureReturnsToEmpty(t *testing.T) {
	s, em := newSession(t, &fakeLoader{err: domain.ErrRemote}, nil)

	err := s.Load(context.Background(), "https://cdn.test/broken.pdf", nil)
	if !errors.Is(err, domain.ErrRemote) {
		t.Fatalf("Load err = %v", err)
	}
	if s.State() != editor.StateEmpty {
		t.Fatalf("state = %s", s.State())
	}
	n, ok := em.Last(editor.EventNotify).(domain.Notification)
	if !ok || n.Kind != domain.NotifyFailure {
		t.Fatalf("notification = %#v", em.Last(editor.EventNotify))
	}
}

func TestSession_EditsRejectedWithoutDocument(t *testing.T) {
	gate := make(chan struct{})
	s, _ := newSession(t, &fakeLoader{info: twoPageDoc(), wait: gate}, nil)

	if _, err := s.AddElement(textAt(1, 0, 0)); !errors.Is(err, domain.ErrNoDocument) {
		t.Fatalf("add while empty: %v", err)
	}

	done := make(chan error)
	go func() { done <- s.Load(context.Background(), "https://cdn.test/doc.pdf", nil) }()
	for s.State() != editor.StateLoading {
		runtime.Gosched()
	}
	if _, err := s.AddElement(textAt(1, 0, 0)); !errors.Is(err, domain.ErrNoDocument) {
		t.Fatalf("add while loading: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddElement(textAt(1, 0, 0)); err != nil {
		t.Fatalf("add when ready: %v", err)
	}
}

func TestSession_DeleteSelectedClearsSelection(t *testing.T) {
	s, _ := readySession(t)
	id, err := s.AddElement(textAt(1, 10, 10))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Select(id); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteElement(id); err != nil {
		t.Fatal(err)
	}
	if p := s.Selection().IDs; len(p) != 0 {
		t.Fatalf("selection = %v after delete", p)
	}
}

func TestSession_UndoRedoRestoresState(t *testing.T) {
	s, _ := readySession(t)
	a, _ := s.AddElement(textAt(1, 10, 10))
	before := s.Elements()
	b, _ := s.AddElement(textAt(2, 20, 20))
	after := s.Elements()

	if ok, err := s.Undo(); !ok || err != nil {
		t.Fatalf("Undo = %v %v", ok, err)
	}
	if got := s.Elements(); !reflect.DeepEqual(got, before) {
		t.Fatalf("after undo = %+v, want %+v", got, before)
	}
	if ok, _ := s.Redo(); !ok {
		t.Fatal("Redo no-op")
	}
	if got := s.Elements(); !reflect.DeepEqual(got, after) {
		t.Fatalf("after redo = %+v, want %+v", got, after)
	}
	if ok, _ := s.Redo(); ok {
		t.Fatal("redo at newest state should be a no-op")
	}

	s.Undo()
	if err := s.UpdateElement(a, domain.Move(99, 99)); err != nil {
		t.Fatal(err)
	}
	if s.CanRedo() {
		t.Fatal("edit after undo should drop the redo branch")
	}
	if _, err := s.Element(b); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("element %s should be gone: %v", b, err)
	}
}

func TestSession_UndoPrunesSelection(t *testing.T) {
	s, _ := readySession(t)
	id, _ := s.AddElement(textAt(1, 10, 10))
	s.Select(id)
	s.Undo()
	if ids := s.Selection().IDs; len(ids) != 0 {
		t.Fatalf("selection kept removed element: %v", ids)
	}
}

func TestSession_LockedRejectsGeometry(t *testing.T) {
	s, _ := readySession(t)
	el := textAt(1, 10, 10)
	el.Locked = true
	id, _ := s.AddElement(el)

	if err := s.UpdateElement(id, domain.Move(50, 50)); !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("move locked: %v", err)
	}
	unlock := false
	if err := s.UpdateElement(id, domain.ElementPatch{Locked: &unlock}); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := s.UpdateElement(id, domain.Move(50, 50)); err != nil {
		t.Fatalf("move unlocked: %v", err)
	}
}

func TestSession_AddDefaultsToCurrentPage(t *testing.T) {
	s, _ := readySession(t)
	if err := s.SetPage(2); err != nil {
		t.Fatal(err)
	}
	el := textAt(0, 0, 0)
	id, err := s.AddElement(el)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := s.Element(id)
	if got.Page != 2 {
		t.Errorf("page = %d, want 2", got.Page)
	}
	if _, err := s.AddElement(textAt(3, 0, 0)); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("add beyond last page: %v", err)
	}
	if err := s.SetPage(3); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("SetPage(3): %v", err)
	}
}

func TestSession_CloseDropsState(t *testing.T) {
	s, _ := readySession(t)
	s.AddElement(textAt(1, 0, 0))
	s.Close()
	if s.State() != editor.StateEmpty || len(s.Elements()) != 0 {
		t.Fatal("close kept state")
	}
	if err := s.Load(context.Background(), "x", nil); !errors.Is(err, domain.ErrNoDocument) {
		t.Fatalf("load after close: %v", err)
	}
}
