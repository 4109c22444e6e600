package service_test

import (
	"context"
	"errors"
	"testing"

	"qrstudio/internal/domain"
	"qrstudio/internal/editor"
	"qrstudio/internal/service"
	"qrstudio/internal/storage"
)

type stubLoader struct{ pages int }

func (l stubLoader) Load(_ context.Context, url string) (*domain.DocumentInfo, error) {
	info := &domain.DocumentInfo{SourceURL: url, PageCount: l.pages, Title: "Menu"}
	for p := 1; p <= l.pages; p++ {
		info.PageSizes = append(info.PageSizes, domain.Size{Width: 595, Height: 842})
		info.Pages = append(info.Pages, domain.PageRender{Page: p, ImageURL: "https://cdn.test/p.png", Width: 1190, Height: 1684})
	}
	return info, nil
}

func newEditorService(t *testing.T) (*service.EditorService, *service.TemplateService) {
	t.Helper()
	db := newDB(t)
	templates := service.NewTemplateService(storage.NewTemplateStore(db), storage.NewVersionStore(db))
	svc := service.NewEditorService(editor.Deps{Loader: stubLoader{pages: 2}, Emitter: &service.MockEmitter{}}, templates)
	t.Cleanup(svc.CloseAll)
	return svc, templates
}

func qrElement() domain.Element {
	return domain.Element{
		Page:    1,
		Rect:    domain.Rect{X: 400, Y: 700, Width: 100, Height: 100},
		Opacity: 1,
		Body:    domain.QRBody{Content: "https://example.com/menu", ErrorLevel: "M"},
	}
}

func TestEditorService_UnknownSession(t *testing.T) {
	svc, _ := newEditorService(t)
	if _, err := svc.Session("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Session: %v", err)
	}
	if err := svc.LoadDocument(context.Background(), "nope", "https://cdn.test/a.pdf"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("LoadDocument: %v", err)
	}
	svc.CloseSession("nope")
}

func TestEditorService_SaveAsThenReload(t *testing.T) {
	svc, templates := newEditorService(t)
	ctx := context.Background()

	id := svc.OpenSession(ctx)
	if _, err := svc.SaveTemplate(id, ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("save unbound session: %v", err)
	}
	if _, err := svc.SaveAsTemplate(id, "user-1", ""); !errors.Is(err, domain.ErrNoDocument) {
		t.Errorf("save empty session: %v", err)
	}

	if err := svc.LoadDocument(ctx, id, "https://cdn.test/menu.pdf"); err != nil {
		t.Fatal(err)
	}
	sess, _ := svc.Session(id)
	if _, err := sess.AddElement(qrElement()); err != nil {
		t.Fatal(err)
	}
	tpl, err := svc.SaveAsTemplate(id, "user-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if tpl.Name != "Menu" || tpl.PageCount != 2 || tpl.ThumbnailURL == "" {
		t.Errorf("template = %+v", tpl)
	}
	if svc.TemplateOf(id) != tpl.ID {
		t.Errorf("session bound to %q", svc.TemplateOf(id))
	}

	if _, err := sess.AddElement(qrElement()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SaveTemplate(id, "Second code"); err != nil {
		t.Fatal(err)
	}
	svc.CloseSession(id)
	if len(svc.SessionIDs()) != 0 {
		t.Errorf("sessions = %v", svc.SessionIDs())
	}

	other := svc.OpenSession(ctx)
	if err := svc.LoadTemplate(ctx, other, tpl.ID); err != nil {
		t.Fatal(err)
	}
	reopened, _ := svc.Session(other)
	els := reopened.Elements()
	if len(els) != 2 || els[0].Kind() != domain.ElementQR {
		t.Fatalf("elements = %+v", els)
	}

	versions, err := templates.ListVersions(tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 || versions[0].Label != "Second code" || versions[1].ElementCount != 1 {
		t.Errorf("versions = %+v", versions)
	}

	restored, err := templates.RestoreVersion(versions[1].ID)
	if err != nil || len(restored) != 1 {
		t.Fatalf("restore = %d elements, %v", len(restored), err)
	}
	saved, _ := templates.LoadElements(tpl.ID)
	if len(saved) != 1 {
		t.Errorf("saved elements after restore = %d", len(saved))
	}
}

func TestTemplateService_Validation(t *testing.T) {
	_, templates := newEditorService(t)
	if _, err := templates.CreateTemplate(service.TemplateInput{Name: " ", SourceURL: "x"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank name: %v", err)
	}
	if _, err := templates.CreateTemplate(service.TemplateInput{Name: "x"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("no source: %v", err)
	}
	tpl, err := templates.CreateTemplate(service.TemplateInput{Name: "Flyer", SourceURL: "https://cdn.test/f.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if err := templates.RenameTemplate(tpl.ID, ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("rename blank: %v", err)
	}
	if err := templates.DeleteTemplate(tpl.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := templates.LoadElements(tpl.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("elements of deleted template: %v", err)
	}
}
