package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"qrstudio/internal/domain"
)

// State is the document lifecycle of a Session.
type State string

const (
	StateEmpty     State = "empty"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateExporting State = "exporting"
)

// Events emitted by a session.
const (
	EventState    = "editor:state"
	EventElements = "editor:elements"
	EventExport   = "editor:export"
	EventNotify   = "notify"
)

// Emitter receives session events. service.EventEmitter satisfies it.
type Emitter interface {
	Emit(ctx context.Context, event string, data any)
}

// DocumentLoader opens a source document and produces its page renders and
// text runs.
type DocumentLoader interface {
	Load(ctx context.Context, sourceURL string) (*domain.DocumentInfo, error)
}

// Deps wires a Session to its collaborators.
type Deps struct {
	Loader       DocumentLoader
	Exporter     *Exporter
	Emitter      Emitter
	HistoryLimit int
}

// StateEvent is the payload of editor:state.
type StateEvent struct {
	SessionID string               `json:"sessionId"`
	State     State                `json:"state"`
	Document  *domain.DocumentInfo `json:"document,omitempty"`
}

// ElementsEvent is the payload of editor:elements.
type ElementsEvent struct {
	SessionID string           `json:"sessionId"`
	Page      int              `json:"page"`
	Elements  []domain.Element `json:"elements"`
	Layers    []Layer          `json:"layers"`
	Selection SelectionState   `json:"selection"`
	CanUndo   bool             `json:"canUndo"`
	CanRedo   bool             `json:"canRedo"`
}

// SelectionState is a copy of the tool and selection state.
type SelectionState struct {
	Tool Tool     `json:"tool"`
	IDs  []string `json:"ids"`
	Zoom float64  `json:"zoom"`
	Page int      `json:"page"`
}

// ExportStatus describes the latest finished export.
type ExportStatus struct {
	SessionID  string               `json:"sessionId"`
	Seq        int                  `json:"seq"`
	Format     domain.ExportFormat  `json:"format"`
	Result     *domain.ExportResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	FinishedAt time.Time            `json:"finishedAt"`
}

// Session is one editing session over one document. It owns the element
// store, selection, canvas and history; all access goes through its mutex.
type Session struct {
	ctx context.Context
	id  string

	mu      sync.Mutex
	state   State
	closed  bool
	doc     *domain.DocumentInfo
	store   *Store
	sel     *Selection
	canvas  *Canvas
	history *History

	loader   DocumentLoader
	exporter *Exporter
	emitter  Emitter

	loadSeq    int
	exportSeq  int
	exporting  int
	lastExport *ExportStatus
}

// NewSession creates an Empty session. ctx is used for event emission.
func NewSession(ctx context.Context, id string, deps Deps) *Session {
	store := NewStore()
	sel := NewSelection()
	store.OnDelete(sel.Remove)
	s := &Session{
		ctx:      ctx,
		id:       id,
		state:    StateEmpty,
		store:    store,
		sel:      sel,
		canvas:   NewCanvas(store, sel),
		history:  NewHistory(deps.HistoryLimit),
		loader:   deps.Loader,
		exporter: deps.Exporter,
		emitter:  deps.Emitter,
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Document returns the loaded document, or nil.
func (s *Session) Document() *domain.DocumentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	doc := *s.doc
	return &doc
}

// Load fetches sourceURL and makes the session Ready with initial elements
// (typically the template's saved overlays). On failure the session returns
// to Empty and a notification is emitted.
func (s *Session) Load(ctx context.Context, sourceURL string, initial []domain.Element) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("load document: %w", domain.ErrNoDocument)
	}
	if s.state == StateLoading {
		s.mu.Unlock()
		return fmt.Errorf("%w: a document is already loading", domain.ErrValidation)
	}
	s.loadSeq++
	seq := s.loadSeq
	s.setStateLocked(StateLoading)
	s.mu.Unlock()

	info, err := s.loader.Load(ctx, sourceURL)
	if err == nil && info.PageCount < 1 {
		err = fmt.Errorf("%w: document has no pages", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.loadSeq {
		return nil
	}
	if err != nil {
		log.Printf("[Editor] session %s: load %s failed: %v", s.id, sourceURL, err)
		s.doc = nil
		s.store.Replace(nil)
		s.sel.Clear()
		s.setStateLocked(StateEmpty)
		s.notifyLocked(err)
		return fmt.Errorf("load document: %w", err)
	}

	s.doc = info
	s.store.Replace(initial)
	s.sel.Clear()
	s.sel.Page = 1
	s.sel.Tool = ToolSelect
	s.canvas.Cancel()
	s.history.Reset(s.store.All())
	s.setStateLocked(StateReady)
	s.emitElementsLocked()
	return nil
}

// Close discards the session. Late load and export results are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	s.store.Replace(nil)
	s.sel.Clear()
	s.history.Reset(nil)
	s.state = StateEmpty
}

// ── Queries ─────────────────────────────────────────────────

func (s *Session) Elements() []domain.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.All()
}

func (s *Session) ElementsForPage(page int) []domain.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ElementsForPage(page)
}

func (s *Session) Element(id string) (domain.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.store.Get(id)
	if !ok {
		return el, fmt.Errorf("element %s: %w", id, domain.ErrNotFound)
	}
	return el, nil
}

func (s *Session) Selection() SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionLocked()
}

// Layers returns the paint list for the current page.
func (s *Session) Layers() []Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layersLocked()
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// LastExport returns the status of the most recently finished export.
func (s *Session) LastExport() *ExportStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastExport == nil {
		return nil
	}
	st := *s.lastExport
	return &st
}

// ── Element operations ──────────────────────────────────────

// AddElement stores el on its page (the current page when unset).
func (s *Session) AddElement(el domain.Element) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDocLocked(); err != nil {
		return "", err
	}
	if el.Page == 0 {
		el.Page = s.sel.Page
	}
	if el.Page > s.doc.PageCount {
		return "", fmt.Errorf("%w: page %d beyond document end", domain.ErrValidation, el.Page)
	}
	id, err := s.store.Add(el)
	if err != nil {
		return "", err
	}
	s.commitLocked()
	return id, nil
}

// UpdateElement applies patch. Geometry changes to locked elements are
// rejected with ErrLocked.
func (s *Session) UpdateElement(id string, patch domain.ElementPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDocLocked(); err != nil {
		return err
	}
	el, ok := s.store.Get(id)
	if !ok {
		return fmt.Errorf("update element %s: %w", id, domain.ErrNotFound)
	}
	if el.Locked && touchesGeometry(patch) {
		return fmt.Errorf("update element %s: %w", id, domain.ErrLocked)
	}
	if patch.Page != nil && (*patch.Page < 1 || *patch.Page > s.doc.PageCount) {
		return fmt.Errorf("%w: page %d out of range", domain.ErrValidation, *patch.Page)
	}
	if err := s.store.Update(id, patch); err != nil {
		return err
	}
	s.commitLocked()
	return nil
}

func touchesGeometry(p domain.ElementPatch) bool {
	return p.X != nil || p.Y != nil || p.Width != nil || p.Height != nil || p.Rotation != nil || p.Page != nil
}

func (s *Session) DeleteElement(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDocLocked(); err != nil {
		return err
	}
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.canvas.Cancel()
	s.commitLocked()
	return nil
}

// DeleteSelected removes every selected element as one history step.
func (s *Session) DeleteSelected() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDocLocked(); err != nil {
		return 0, err
	}
	ids := s.sel.IDs()
	for _, id := range ids {
		if err := s.store.Delete(id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
	}
	if len(ids) > 0 {
		s.canvas.Cancel()
		s.commitLocked()
	}
	return len(ids), nil
}

func (s *Session) BringToFront(id string) error {
	return s.mutate(func() error { return s.store.BringToFront(id) })
}

func (s *Session) SendToBack(id string) error {
	return s.mutate(func() error { return s.store.SendToBack(id) })
}

// Duplicate copies id offset by (dx, dy) and selects the copy.
func (s *Session) Duplicate(id string, dx, dy float64) (string, error) {
	var newID string
	err := s.mutate(func() error {
		var err error
		newID, err = s.store.Duplicate(id, dx, dy)
		if err == nil {
			s.sel.Set(newID)
		}
		return err
	})
	return newID, err
}

func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDocLocked(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	s.commitLocked()
	return nil
}

// ── Selection and tools ─────────────────────────────────────

// Select replaces the selection. Unknown ids are rejected.
func (s *Session) Select(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDocLocked(); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := s.store.Get(id); !ok {
			return fmt.Errorf("select %s: %w", id, domain.ErrNotFound)
		}
	}
	s.sel.Set(ids...)
	s.emitElementsLocked()
	return nil
}

func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.Clear()
	s.emitElementsLocked()
}

func (s *Session) SetTool(t Tool) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown tool %q", domain.ErrValidation, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvas.Cancel()
	s.sel.Tool = t
	s.emitElementsLocked()
	return nil
}

// SetToolDefault changes the body new elements of that kind start with.
func (s *Session) SetToolDefault(body domain.ElementBody) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.SetDefault(body)
}

func (s *Session) SetZoom(zoom float64) error {
	if zoom <= 0 {
		return fmt.Errorf("%w: zoom must be positive", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.Zoom = zoom
	s.emitElementsLocked()
	return nil
}

func (s *Session) SetPage(page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDocLocked(); err != nil {
		return err
	}
	if page < 1 || page > s.doc.PageCount {
		return fmt.Errorf("%w: page %d out of range", domain.ErrValidation, page)
	}
	s.canvas.Cancel()
	s.sel.Page = page
	s.sel.Clear()
	s.emitElementsLocked()
	return nil
}

// ── Pointer input ───────────────────────────────────────────

func (s *Session) PointerDown(ev PointerEvent) (Outcome, error) {
	return s.pointer(s.canvas.PointerDown, ev)
}

func (s *Session) PointerMove(ev PointerEvent) (Outcome, error) {
	return s.pointer(s.canvas.PointerMove, ev)
}

func (s *Session) PointerUp(ev PointerEvent) (Outcome, error) {
	return s.pointer(s.canvas.PointerUp, ev)
}

func (s *Session) pointer(fn func(PointerEvent) (Outcome, error), ev PointerEvent) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDocLocked(); err != nil {
		return Outcome{}, err
	}
	out, err := fn(ev)
	if err != nil {
		return out, err
	}
	switch {
	case out.Commit:
		s.commitLocked()
	case out.Changed:
		s.emitElementsLocked()
	}
	return out, nil
}

// ── History ─────────────────────────────────────────────────

// Undo restores the previous snapshot. It reports false at the oldest state.
func (s *Session) Undo() (bool, error) {
	return s.restore(s.history.Undo)
}

// Redo restores the next snapshot. It reports false at the newest state.
func (s *Session) Redo() (bool, error) {
	return s.restore(s.history.Redo)
}

func (s *Session) restore(step func() ([]domain.Element, bool)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireDocLocked(); err != nil {
		return false, err
	}
	snap, ok := step()
	if !ok {
		return false, nil
	}
	s.canvas.Cancel()
	s.store.Replace(snap)
	s.sel.Retain(func(id string) bool {
		_, ok := s.store.Get(id)
		return ok
	})
	s.emitElementsLocked()
	return true, nil
}

// ── Export ──────────────────────────────────────────────────

// Export runs the export pipeline over a copy of the current elements.
// Editing continues while it runs. Concurrent exports are not ordered: the
// status kept is whichever finished last.
func (s *Session) Export(ctx context.Context, req domain.ExportRequest) (*domain.ExportResult, error) {
	s.mu.Lock()
	if err := s.requireDocLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.exporter == nil {
		s.mu.Unlock()
		return nil, errors.New("export pipeline not configured")
	}
	s.exportSeq++
	seq := s.exportSeq
	s.exporting++
	if s.state == StateReady {
		s.setStateLocked(StateExporting)
	}
	job := ExportJob{
		Doc:         *s.doc,
		Elements:    s.store.All(),
		CurrentPage: s.sel.Page,
		Request:     req,
	}
	s.mu.Unlock()

	res, err := s.exporter.Export(ctx, job)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return res, err
	}
	s.exporting--
	status := &ExportStatus{
		SessionID:  s.id,
		Seq:        seq,
		Format:     req.Format,
		Result:     res,
		FinishedAt: time.Now(),
	}
	if err != nil {
		log.Printf("[Export] session %s export #%d (%s) failed: %v", s.id, seq, req.Format, err)
		status.Error = err.Error()
	}
	s.lastExport = status
	if s.exporting == 0 && s.state == StateExporting {
		s.setStateLocked(StateReady)
	}
	s.emit(EventExport, status)
	if err != nil {
		s.notifyLocked(err)
		return nil, err
	}
	return res, nil
}

// ── Internals (s.mu held) ───────────────────────────────────

func (s *Session) requireDocLocked() error {
	if s.closed || s.doc == nil || (s.state != StateReady && s.state != StateExporting) {
		return domain.ErrNoDocument
	}
	return nil
}

func (s *Session) commitLocked() {
	s.history.Record(s.store.All())
	s.emitElementsLocked()
}

func (s *Session) setStateLocked(st State) {
	s.state = st
	ev := StateEvent{SessionID: s.id, State: st}
	if st == StateReady && s.doc != nil {
		doc := *s.doc
		ev.Document = &doc
	}
	s.emit(EventState, ev)
}

func (s *Session) selectionLocked() SelectionState {
	return SelectionState{Tool: s.sel.Tool, IDs: s.sel.IDs(), Zoom: s.sel.Zoom, Page: s.sel.Page}
}

func (s *Session) layersLocked() []Layer {
	var bg *domain.PageRender
	if s.doc != nil {
		for i := range s.doc.Pages {
			if s.doc.Pages[i].Page == s.sel.Page {
				p := s.doc.Pages[i]
				bg = &p
				break
			}
		}
	}
	return s.canvas.Layers(bg)
}

func (s *Session) emitElementsLocked() {
	if s.emitter == nil {
		return
	}
	s.emit(EventElements, ElementsEvent{
		SessionID: s.id,
		Page:      s.sel.Page,
		Elements:  s.store.ElementsForPage(s.sel.Page),
		Layers:    s.layersLocked(),
		Selection: s.selectionLocked(),
		CanUndo:   s.history.CanUndo(),
		CanRedo:   s.history.CanRedo(),
	})
}

func (s *Session) notifyLocked(err error) {
	s.emit(EventNotify, domain.NotificationFor(err))
}

func (s *Session) emit(event string, data any) {
	if s.emitter != nil {
		s.emitter.Emit(s.ctx, event, data)
	}
}
