package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"qrstudio/internal/domain"
	"qrstudio/internal/editor"
	"qrstudio/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Editor Service: registry of open editing sessions
// ─────────────────────────────────────────────────────────────

type editorEntry struct {
	session    *editor.Session
	templateID string
}

// EditorService opens, finds and closes editor sessions. Sessions share
// nothing but their collaborators.
type EditorService struct {
	deps      editor.Deps
	templates *TemplateService

	mu       sync.Mutex
	sessions map[string]*editorEntry
}

func NewEditorService(deps editor.Deps, templates *TemplateService) *EditorService {
	return &EditorService{deps: deps, templates: templates, sessions: make(map[string]*editorEntry)}
}

// OpenSession creates an Empty session and returns its id.
func (s *EditorService) OpenSession(ctx context.Context) string {
	id := uuid.New().String()
	sess := editor.NewSession(ctx, id, s.deps)
	s.mu.Lock()
	s.sessions[id] = &editorEntry{session: sess}
	s.mu.Unlock()
	log.Printf("[Editor] session %s opened", id)
	return id
}

// Session returns an open session.
func (s *EditorService) Session(id string) (*editor.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("editor session %s: %w", id, domain.ErrNotFound)
	}
	return e.session, nil
}

// SessionIDs lists open sessions, sorted.
func (s *EditorService) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TemplateOf returns the template a session was loaded from, if any.
func (s *EditorService) TemplateOf(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		return e.templateID
	}
	return ""
}

// CloseSession discards the session and everything unsaved in it.
func (s *EditorService) CloseSession(id string) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		e.session.Close()
		log.Printf("[Editor] session %s closed", id)
	}
}

// CloseAll closes every session. Used on shutdown.
func (s *EditorService) CloseAll() {
	for _, id := range s.SessionIDs() {
		s.CloseSession(id)
	}
}

// LoadDocument loads a bare document with no saved overlays.
func (s *EditorService) LoadDocument(ctx context.Context, id, sourceURL string) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	if err := sess.Load(ctx, sourceURL, nil); err != nil {
		return err
	}
	s.bind(id, "")
	return nil
}

// LoadTemplate loads a template's document together with its saved elements.
func (s *EditorService) LoadTemplate(ctx context.Context, id, templateID string) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	t, err := s.templates.GetTemplate(templateID)
	if err != nil {
		return err
	}
	elements, err := s.templates.LoadElements(templateID)
	if err != nil {
		return err
	}
	if err := sess.Load(ctx, t.SourceURL, elements); err != nil {
		return err
	}
	s.bind(id, templateID)

	if doc := sess.Document(); doc != nil && doc.PageCount != t.PageCount {
		thumb := ""
		if len(doc.Pages) > 0 && t.ThumbnailURL == "" {
			thumb = doc.Pages[0].ImageURL
		}
		if err := s.templates.SetPageInfo(templateID, doc.PageCount, thumb); err != nil {
			log.Printf("[Editor] update page info of template %s: %v", templateID, err)
		}
	}
	return nil
}

func (s *EditorService) bind(id, templateID string) {
	s.mu.Lock()
	if e, ok := s.sessions[id]; ok {
		e.templateID = templateID
	}
	s.mu.Unlock()
}

// SaveTemplate writes the session's elements back to the template it was
// loaded from.
func (s *EditorService) SaveTemplate(id, label string) (*storage.TemplateVersion, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	templateID := s.TemplateOf(id)
	if templateID == "" {
		return nil, fmt.Errorf("%w: the document is not a saved template yet", domain.ErrValidation)
	}
	if sess.Document() == nil {
		return nil, domain.ErrNoDocument
	}
	return s.templates.SaveElements(templateID, sess.Elements(), label)
}

// SaveAsTemplate creates a new template from the session's document and
// elements and binds the session to it.
func (s *EditorService) SaveAsTemplate(id, userID, name string) (*domain.Template, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	doc := sess.Document()
	if doc == nil {
		return nil, domain.ErrNoDocument
	}
	if name == "" {
		name = doc.Title
	}
	in := TemplateInput{UserID: userID, Name: name, SourceURL: doc.SourceURL, PageCount: doc.PageCount}
	if len(doc.Pages) > 0 {
		in.ThumbnailURL = doc.Pages[0].ImageURL
	}
	t, err := s.templates.CreateTemplate(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.templates.SaveElements(t.ID, sess.Elements(), "Created"); err != nil {
		return nil, err
	}
	s.bind(id, t.ID)
	return t, nil
}
