package app

import (
	"encoding/json"
	"fmt"
	"log"

	"qrstudio/internal/domain"
	"qrstudio/internal/editor"
	"qrstudio/internal/pdfdoc"
	"qrstudio/internal/storage"
)

// ============================================================
// Editor sessions
// ============================================================

// EditorView is a full snapshot of a session, used when a window attaches
// to a session it did not open.
type EditorView struct {
	SessionID  string                `json:"sessionId"`
	TemplateID string                `json:"templateId"`
	State      editor.State          `json:"state"`
	Document   *domain.DocumentInfo  `json:"document"`
	Elements   []domain.Element      `json:"elements"`
	Selection  editor.SelectionState `json:"selection"`
	Layers     []editor.Layer        `json:"layers"`
	CanUndo    bool                  `json:"canUndo"`
	CanRedo    bool                  `json:"canRedo"`
	LastExport *editor.ExportStatus  `json:"lastExport"`
}

// OpenEditor creates an empty session and returns its id.
func (a *App) OpenEditor() string {
	id := a.editors.OpenSession(a.ctx)
	a.setActiveSession(id)
	return id
}

// OpenTemplate opens a session on a saved template.
func (a *App) OpenTemplate(templateID string) (string, error) {
	id := a.editors.OpenSession(a.ctx)
	err := a.bound("open template", false, func() error {
		return a.editors.LoadTemplate(a.ctx, id, templateID)
	})
	if err != nil {
		a.editors.CloseSession(id)
		return "", err
	}
	a.setActiveSession(id)
	if err := a.settings.SetLastTemplate(templateID); err != nil {
		log.Printf("[App] remember template: %v", err)
	}
	return id, nil
}

// LastTemplate returns the template opened most recently, if any.
func (a *App) LastTemplate() string {
	return a.settings.LastTemplate()
}

func (a *App) LoadDocument(sessionID, sourceURL string) error {
	return a.bound("load document", false, func() error {
		return a.editors.LoadDocument(a.ctx, sessionID, sourceURL)
	})
}

func (a *App) CloseEditor(sessionID string) {
	a.editors.CloseSession(sessionID)
	a.mu.Lock()
	if a.activeSession == sessionID {
		a.activeSession = ""
	}
	a.mu.Unlock()
}

func (a *App) FocusEditor(sessionID string) {
	a.setActiveSession(sessionID)
}

func (a *App) setActiveSession(id string) {
	a.mu.Lock()
	a.activeSession = id
	a.mu.Unlock()
}

func (a *App) EditorState(sessionID string) (*EditorView, error) {
	sess, err := a.editors.Session(sessionID)
	if err != nil {
		return nil, err
	}
	return &EditorView{
		SessionID:  sessionID,
		TemplateID: a.editors.TemplateOf(sessionID),
		State:      sess.State(),
		Document:   sess.Document(),
		Elements:   sess.Elements(),
		Selection:  sess.Selection(),
		Layers:     sess.Layers(),
		CanUndo:    sess.CanUndo(),
		CanRedo:    sess.CanRedo(),
		LastExport: sess.LastExport(),
	}, nil
}

// withSession runs fn on an open session at the binding boundary.
func (a *App) withSession(op, sessionID string, fn func(s *editor.Session) error) error {
	return a.bound(op, true, func() error {
		sess, err := a.editors.Session(sessionID)
		if err != nil {
			return err
		}
		return fn(sess)
	})
}

// ── Elements ───────────────────────────────────────────────

func (a *App) AddElement(sessionID string, el domain.Element) (id string, err error) {
	err = a.withSession("add element", sessionID, func(s *editor.Session) error {
		id, err = s.AddElement(el)
		return err
	})
	return id, err
}

func (a *App) UpdateElement(sessionID, elementID string, patch domain.ElementPatch) error {
	return a.withSession("update element", sessionID, func(s *editor.Session) error {
		return s.UpdateElement(elementID, patch)
	})
}

func (a *App) DeleteElement(sessionID, elementID string) error {
	return a.withSession("delete element", sessionID, func(s *editor.Session) error {
		return s.DeleteElement(elementID)
	})
}

func (a *App) DeleteSelected(sessionID string) (n int, err error) {
	err = a.withSession("delete selection", sessionID, func(s *editor.Session) error {
		n, err = s.DeleteSelected()
		return err
	})
	return n, err
}

func (a *App) DuplicateElement(sessionID, elementID string, dx, dy float64) (id string, err error) {
	err = a.withSession("duplicate element", sessionID, func(s *editor.Session) error {
		id, err = s.Duplicate(elementID, dx, dy)
		return err
	})
	return id, err
}

func (a *App) BringToFront(sessionID, elementID string) error {
	return a.withSession("bring to front", sessionID, func(s *editor.Session) error {
		return s.BringToFront(elementID)
	})
}

func (a *App) SendToBack(sessionID, elementID string) error {
	return a.withSession("send to back", sessionID, func(s *editor.Session) error {
		return s.SendToBack(elementID)
	})
}

// ── Selection, tool, view ──────────────────────────────────

func (a *App) SelectElements(sessionID string, ids []string) error {
	return a.withSession("select", sessionID, func(s *editor.Session) error {
		return s.Select(ids...)
	})
}

func (a *App) ClearSelection(sessionID string) error {
	return a.withSession("clear selection", sessionID, func(s *editor.Session) error {
		s.ClearSelection()
		return nil
	})
}

func (a *App) SetTool(sessionID, tool string) error {
	return a.withSession("set tool", sessionID, func(s *editor.Session) error {
		return s.SetTool(editor.Tool(tool))
	})
}

// SetToolDefault sets the properties new elements of kind start with.
func (a *App) SetToolDefault(sessionID, kind string, props json.RawMessage) error {
	return a.withSession("set tool default", sessionID, func(s *editor.Session) error {
		body, err := domain.DecodeBody(domain.ElementKind(kind), props)
		if err != nil {
			return err
		}
		s.SetToolDefault(body)
		return nil
	})
}

func (a *App) SetZoom(sessionID string, zoom float64) error {
	return a.withSession("set zoom", sessionID, func(s *editor.Session) error {
		return s.SetZoom(zoom)
	})
}

func (a *App) SetPage(sessionID string, page int) error {
	return a.withSession("set page", sessionID, func(s *editor.Session) error {
		return s.SetPage(page)
	})
}

// ── Pointer input ──────────────────────────────────────────

func (a *App) PointerDown(sessionID string, ev editor.PointerEvent) (out editor.Outcome, err error) {
	err = a.withSession("pointer down", sessionID, func(s *editor.Session) error {
		out, err = s.PointerDown(ev)
		return err
	})
	return out, err
}

func (a *App) PointerMove(sessionID string, ev editor.PointerEvent) (out editor.Outcome, err error) {
	err = a.withSession("pointer move", sessionID, func(s *editor.Session) error {
		out, err = s.PointerMove(ev)
		return err
	})
	return out, err
}

func (a *App) PointerUp(sessionID string, ev editor.PointerEvent) (out editor.Outcome, err error) {
	err = a.withSession("pointer up", sessionID, func(s *editor.Session) error {
		out, err = s.PointerUp(ev)
		return err
	})
	return out, err
}

// ── History ────────────────────────────────────────────────

func (a *App) Undo(sessionID string) (ok bool, err error) {
	err = a.withSession("undo", sessionID, func(s *editor.Session) error {
		ok, err = s.Undo()
		return err
	})
	return ok, err
}

func (a *App) Redo(sessionID string) (ok bool, err error) {
	err = a.withSession("redo", sessionID, func(s *editor.Session) error {
		ok, err = s.Redo()
		return err
	})
	return ok, err
}

// ── Export, search, save ───────────────────────────────────

// ExportDocument runs an export. Failures are reported by the session's own
// notification; the element store is never touched.
func (a *App) ExportDocument(sessionID string, req domain.ExportRequest) (res *domain.ExportResult, err error) {
	err = a.bound("export", false, func() error {
		sess, err := a.editors.Session(sessionID)
		if err != nil {
			return err
		}
		ctx, cancel := contextWithTimeout(a.ctx, a.cfg.ExportTimeout.Duration)
		defer cancel()
		res, err = sess.Export(ctx, req)
		return err
	})
	return res, err
}

// SearchDocument finds term in the text runs of the loaded document.
func (a *App) SearchDocument(sessionID, term string) ([]domain.TextMatch, error) {
	sess, err := a.editors.Session(sessionID)
	if err != nil {
		return nil, err
	}
	doc := sess.Document()
	if doc == nil {
		return nil, fmt.Errorf("search: %w", domain.ErrNoDocument)
	}
	return pdfdoc.SearchRuns(doc.TextRuns, term), nil
}

func (a *App) SaveTemplate(sessionID, label string) (v *storage.TemplateVersion, err error) {
	err = a.bound("save template", true, func() error {
		v, err = a.editors.SaveTemplate(sessionID, label)
		return err
	})
	return v, err
}

func (a *App) SaveAsTemplate(sessionID, name string) (t *domain.Template, err error) {
	err = a.bound("save as template", true, func() error {
		userID := ""
		if s := a.guard.Current(); s != nil {
			userID = s.UserID
		}
		t, err = a.editors.SaveAsTemplate(sessionID, userID, name)
		return err
	})
	return t, err
}
