package app

import (
	"qrstudio/internal/domain"
	"qrstudio/internal/service"
	"qrstudio/internal/storage"
)

// ============================================================
// Templates
// ============================================================

func (a *App) currentUserID() string {
	if s := a.guard.Current(); s != nil {
		return s.UserID
	}
	return ""
}

func (a *App) ListTemplates() ([]domain.Template, error) {
	return a.templates.ListTemplates(a.currentUserID())
}

func (a *App) GetTemplate(id string) (*domain.Template, error) {
	return a.templates.GetTemplate(id)
}

// CreateTemplate registers an uploaded document as a template.
func (a *App) CreateTemplate(in service.TemplateInput) (t *domain.Template, err error) {
	err = a.bound("create template", true, func() error {
		if in.UserID == "" {
			in.UserID = a.currentUserID()
		}
		t, err = a.templates.CreateTemplate(in)
		return err
	})
	return t, err
}

func (a *App) RenameTemplate(id, name string) error {
	return a.bound("rename template", true, func() error {
		return a.templates.RenameTemplate(id, name)
	})
}

func (a *App) DeleteTemplate(id string) error {
	return a.bound("delete template", true, func() error {
		return a.templates.DeleteTemplate(id)
	})
}

func (a *App) ListTemplateVersions(templateID string) ([]storage.TemplateVersion, error) {
	return a.templates.ListVersions(templateID)
}

// RestoreTemplateVersion makes an older version current. Open sessions on
// the template keep their elements until reloaded.
func (a *App) RestoreTemplateVersion(versionID string) (n int, err error) {
	err = a.bound("restore version", true, func() error {
		els, err := a.templates.RestoreVersion(versionID)
		n = len(els)
		return err
	})
	return n, err
}
