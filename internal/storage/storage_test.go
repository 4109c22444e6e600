package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"qrstudio/internal/domain"
	"qrstudio/internal/etl"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := New(filepath.Join(dir, "test.db"), filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestTemplateStore_ElementsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := NewTemplateStore(db)

	tpl := &domain.Template{UserID: "u1", Name: "Flyer", SourceURL: "https://cdn/x.pdf", PageCount: 2}
	if err := s.CreateTemplate(tpl); err != nil {
		t.Fatal(err)
	}
	els := []domain.Element{
		{ID: "a", Page: 1, Rect: domain.Rect{X: 10, Y: 20, Width: 100, Height: 40}, Opacity: 1, Z: 2,
			Body: domain.TextBody{Content: "Hi", FontSize: 12, Bold: true}},
		{ID: "b", Page: 2, Rect: domain.Rect{Width: 80, Height: 80}, Opacity: 0.5, Locked: true,
			Body: domain.QRBody{Content: "https://x", ErrorLevel: "H"}},
	}
	if err := s.ReplaceTemplateElements(tpl.ID, els); err != nil {
		t.Fatal(err)
	}
	got, err := s.ListTemplateElements(tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("elements = %+v", got)
	}
	if tb, ok := got[0].Body.(domain.TextBody); !ok || tb.Content != "Hi" || !tb.Bold || got[0].Z != 2 {
		t.Errorf("first = %+v", got[0])
	}
	if qb, ok := got[1].Body.(domain.QRBody); !ok || qb.ErrorLevel != "H" || !got[1].Locked || got[1].Opacity != 0.5 {
		t.Errorf("second = %+v", got[1])
	}

	if err := s.ReplaceTemplateElements(tpl.ID, els[:1]); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.ListTemplateElements(tpl.ID); len(got) != 1 {
		t.Errorf("after replace = %d elements", len(got))
	}
}

func TestTemplateStore_ReplaceRejectsInvalid(t *testing.T) {
	db := openTestDB(t)
	s := NewTemplateStore(db)
	tpl := &domain.Template{Name: "T", SourceURL: "x"}
	s.CreateTemplate(tpl)
	s.ReplaceTemplateElements(tpl.ID, []domain.Element{{ID: "keep", Page: 1, Opacity: 1, Body: domain.ShapeBody{Shape: domain.ShapeRect}}})

	bad := []domain.Element{{ID: "x", Page: 0, Body: domain.ShapeBody{}}}
	if err := s.ReplaceTemplateElements(tpl.ID, bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if got, _ := s.ListTemplateElements(tpl.ID); len(got) != 1 || got[0].ID != "keep" {
		t.Errorf("stored elements changed: %+v", got)
	}
	if err := s.ReplaceTemplateElements("missing", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing template: %v", err)
	}
}

func TestTemplateStore_DeleteDetachesCampaigns(t *testing.T) {
	db := openTestDB(t)
	ts, cs := NewTemplateStore(db), NewCampaignStore(db)
	tpl := &domain.Template{Name: "T", SourceURL: "x"}
	ts.CreateTemplate(tpl)
	c := &domain.Campaign{Name: "C", QRType: domain.QRURL, TemplateID: tpl.ID}
	cs.CreateCampaign(c)

	if err := ts.DeleteTemplate(tpl.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.GetTemplate(tpl.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get deleted: %v", err)
	}
	got, _ := cs.GetCampaign(c.ID)
	if got.TemplateID != "" {
		t.Errorf("campaign still points at %q", got.TemplateID)
	}
	if err := ts.DeleteTemplate(tpl.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestCampaignStore_RowsAndCascade(t *testing.T) {
	db := openTestDB(t)
	cs := NewCampaignStore(db)
	js := NewImportJobStore(db)

	c := &domain.Campaign{UserID: "u1", Name: "Spring", QRType: domain.QRURL}
	if err := cs.CreateCampaign(c); err != nil {
		t.Fatal(err)
	}
	if c.Status != domain.CampaignDraft {
		t.Errorf("status = %q", c.Status)
	}
	for i := 3; i >= 1; i-- {
		if err := cs.CreateRow(&domain.DataRow{CampaignID: c.ID, QRContent: fmt.Sprintf("https://x/%d", i), SortOrder: i}); err != nil {
			t.Fatal(err)
		}
	}
	rows, _ := cs.ListRows(c.ID)
	if len(rows) != 3 || rows[0].QRContent != "https://x/1" {
		t.Fatalf("rows = %+v", rows)
	}
	rows[0].CodeURL = "file:///code.png"
	if err := cs.UpdateRow(&rows[0]); err != nil {
		t.Fatal(err)
	}
	if r, _ := cs.GetRow(rows[0].ID); r.CodeURL != "file:///code.png" {
		t.Errorf("code url = %q", r.CodeURL)
	}

	job := &etl.ImportJob{CampaignID: c.ID, SourceType: "csv_file", SourceCfg: etl.SourceConfig{"filePath": "/x.csv"}, Mode: etl.ModeReplace}
	js.CreateJob(job)
	js.CreateRunLog(&etl.ImportRunLog{JobID: job.ID, Status: "success"})

	if list, _ := cs.ListCampaigns("u1"); len(list) != 1 {
		t.Errorf("list = %+v", list)
	}
	if list, _ := cs.ListCampaigns("u2"); len(list) != 0 {
		t.Errorf("other user sees %+v", list)
	}

	if err := cs.DeleteCampaign(c.ID); err != nil {
		t.Fatal(err)
	}
	if n, _ := cs.CountRows(c.ID); n != 0 {
		t.Errorf("rows left = %d", n)
	}
	if _, err := js.GetJob(job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("job left: %v", err)
	}
}

func TestVersionStore_PrunesOldest(t *testing.T) {
	db := openTestDB(t)
	ts, vs := NewTemplateStore(db), NewVersionStore(db)
	tpl := &domain.Template{Name: "T", SourceURL: "x"}
	ts.CreateTemplate(tpl)

	el := domain.Element{ID: "e", Page: 1, Opacity: 1, Body: domain.TextBody{Content: "v"}}
	var first string
	for i := 0; i < maxVersions+5; i++ {
		v, err := vs.SaveVersion(tpl.ID, fmt.Sprintf("save %d", i), []domain.Element{el})
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = v.ID
		}
	}
	list, err := vs.ListVersions(tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != maxVersions || list[0].Label != fmt.Sprintf("save %d", maxVersions+4) || list[0].ElementCount != 1 {
		t.Fatalf("versions = %d, newest %+v", len(list), list[0])
	}
	if _, err := vs.GetVersion(first); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("oldest not pruned: %v", err)
	}
	v, err := vs.GetVersion(list[0].ID)
	if err != nil || len(v.Elements) != 1 || v.Elements[0].Body.(domain.TextBody).Content != "v" {
		t.Errorf("version = %+v, %v", v, err)
	}
}

func TestImportJobStore_TriggeredJobs(t *testing.T) {
	db := openTestDB(t)
	cs, js := NewCampaignStore(db), NewImportJobStore(db)
	c := &domain.Campaign{Name: "C", QRType: domain.QRURL}
	cs.CreateCampaign(c)

	manual := &etl.ImportJob{CampaignID: c.ID, SourceType: "http", TriggerType: etl.TriggerManual, Enabled: true}
	cron := &etl.ImportJob{CampaignID: c.ID, SourceType: "http", TriggerType: etl.TriggerSchedule, TriggerConfig: "@hourly", Enabled: true,
		Transforms: []etl.TransformConfig{{Type: "limit", Config: map[string]any{"count": float64(5)}}}}
	off := &etl.ImportJob{CampaignID: c.ID, SourceType: "http", TriggerType: etl.TriggerFileWatch, Enabled: false}
	for _, j := range []*etl.ImportJob{manual, cron, off} {
		if err := js.CreateJob(j); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := js.ListTriggeredJobs()
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != cron.ID || jobs[0].Transforms[0].Config["count"] != float64(5) {
		t.Fatalf("jobs = %+v", jobs)
	}
	if !jobs[0].LastRunAt.IsZero() {
		t.Errorf("last run = %v", jobs[0].LastRunAt)
	}

	if err := js.UpdateJobStatus(cron.ID, "error", "boom"); err != nil {
		t.Fatal(err)
	}
	got, _ := js.GetJob(cron.ID)
	if got.LastStatus != "error" || got.LastError != "boom" || got.LastRunAt.IsZero() {
		t.Errorf("job = %+v", got)
	}

	for i := 0; i < maxRunLogs+3; i++ {
		js.CreateRunLog(&etl.ImportRunLog{JobID: cron.ID, Status: "success", RowsWritten: i})
	}
	logs, _ := js.ListRunLogs(cron.ID, 100)
	if len(logs) != maxRunLogs || logs[0].RowsWritten != maxRunLogs+2 {
		t.Errorf("logs = %d, newest %+v", len(logs), logs[0])
	}
}

func TestDBConnectionStore(t *testing.T) {
	db := openTestDB(t)
	s := NewDBConnectionStore(db)
	c := &domain.DatabaseConnection{Name: "crm", Driver: domain.DatabaseDriverPostgres, Host: "db", Port: 5432}
	if err := s.CreateConnection(c); err != nil {
		t.Fatal(err)
	}
	c.Port = 6543
	if err := s.UpdateConnection(c); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetConnection(c.ID)
	if err != nil || got.Port != 6543 || got.Driver != domain.DatabaseDriverPostgres {
		t.Fatalf("got = %+v, %v", got, err)
	}
	s.DeleteConnection(c.ID)
	if _, err := s.GetConnection(c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleted: %v", err)
	}
}
