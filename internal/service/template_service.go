package service

import (
	"fmt"
	"log"
	"strings"

	"qrstudio/internal/domain"
	"qrstudio/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Template Service: saved documents and their overlays
// ─────────────────────────────────────────────────────────────

// TemplateInput is the DTO for creating a template from an uploaded document.
type TemplateInput struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	SourceURL    string `json:"sourceUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	PageCount    int    `json:"pageCount"`
}

// TemplateService manages templates, their saved elements and save history.
type TemplateService struct {
	store    *storage.TemplateStore
	versions *storage.VersionStore
}

func NewTemplateService(store *storage.TemplateStore, versions *storage.VersionStore) *TemplateService {
	return &TemplateService{store: store, versions: versions}
}

// CreateTemplate registers an uploaded document as a template.
func (s *TemplateService) CreateTemplate(in TemplateInput) (*domain.Template, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: template name is required", domain.ErrValidation)
	}
	if in.SourceURL == "" {
		return nil, fmt.Errorf("%w: template needs a source document", domain.ErrValidation)
	}
	t := &domain.Template{
		UserID:       in.UserID,
		Name:         name,
		SourceURL:    in.SourceURL,
		ThumbnailURL: in.ThumbnailURL,
		PageCount:    in.PageCount,
	}
	if err := s.store.CreateTemplate(t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

func (s *TemplateService) GetTemplate(id string) (*domain.Template, error) {
	return s.store.GetTemplate(id)
}

func (s *TemplateService) ListTemplates(userID string) ([]domain.Template, error) {
	return s.store.ListTemplates(userID)
}

// RenameTemplate changes the display name.
func (s *TemplateService) RenameTemplate(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: template name is required", domain.ErrValidation)
	}
	t, err := s.store.GetTemplate(id)
	if err != nil {
		return err
	}
	t.Name = name
	return s.store.UpdateTemplate(t)
}

// SetPageInfo records what the document loader found out about the source.
func (s *TemplateService) SetPageInfo(id string, pageCount int, thumbnailURL string) error {
	t, err := s.store.GetTemplate(id)
	if err != nil {
		return err
	}
	t.PageCount = pageCount
	if thumbnailURL != "" {
		t.ThumbnailURL = thumbnailURL
	}
	return s.store.UpdateTemplate(t)
}

// DeleteTemplate removes the template, its elements and its versions.
// Campaigns that used it are kept and detached.
func (s *TemplateService) DeleteTemplate(id string) error {
	if err := s.store.DeleteTemplate(id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

// ── Elements ───────────────────────────────────────────────

// LoadElements returns the saved overlays of a template.
func (s *TemplateService) LoadElements(templateID string) ([]domain.Element, error) {
	if _, err := s.store.GetTemplate(templateID); err != nil {
		return nil, err
	}
	return s.store.ListTemplateElements(templateID)
}

// SaveElements replaces the saved overlays atomically and records a version.
// A failed version write does not fail the save.
func (s *TemplateService) SaveElements(templateID string, elements []domain.Element, label string) (*storage.TemplateVersion, error) {
	if err := s.store.ReplaceTemplateElements(templateID, elements); err != nil {
		return nil, fmt.Errorf("save template %s: %w", templateID, err)
	}
	if s.versions == nil {
		return nil, nil
	}
	if label == "" {
		label = "Saved"
	}
	v, err := s.versions.SaveVersion(templateID, label, elements)
	if err != nil {
		log.Printf("[Editor] template %s saved but version not recorded: %v", templateID, err)
		return nil, nil
	}
	return v, nil
}

// ── Versions ───────────────────────────────────────────────

func (s *TemplateService) ListVersions(templateID string) ([]storage.TemplateVersion, error) {
	return s.versions.ListVersions(templateID)
}

// RestoreVersion makes an older version the saved state again and records
// the restore as a new version.
func (s *TemplateService) RestoreVersion(versionID string) ([]domain.Element, error) {
	v, err := s.versions.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	label := "Restored " + v.CreatedAt.Format("2006-01-02 15:04")
	if _, err := s.SaveElements(v.TemplateID, v.Elements, label); err != nil {
		return nil, err
	}
	return v.Elements, nil
}
