package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"qrstudio/internal/domain"
	"qrstudio/internal/etl/sources"
	"qrstudio/internal/qr"
	"qrstudio/internal/secret"
	"qrstudio/internal/service"
	"qrstudio/internal/storage"
)

// guestDB creates an external SQLite file with n guests.
func guestDB(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guests.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE guests (id INTEGER PRIMARY KEY, name TEXT, link TEXT)`); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= n; i++ {
		if _, err := db.Exec(`INSERT INTO guests (name, link) VALUES (?, ?)`,
			fmt.Sprintf("Guest %d", i), fmt.Sprintf("https://example.com/rsvp/%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func newConnectionService(t *testing.T, db *storage.DB) *service.ConnectionService {
	t.Helper()
	secrets, err := secret.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := service.NewConnectionService(storage.NewDBConnectionStore(db), secrets)
	t.Cleanup(svc.Close)
	return svc
}

func TestConnection_CRUDAndValidation(t *testing.T) {
	svc := newConnectionService(t, newDB(t))

	bad := []service.ConnectionInput{
		{Driver: "sqlite", Host: "/tmp/x.db"},
		{Name: "x", Driver: "oracle", Host: "db"},
		{Name: "x", Driver: "postgres"},
		{Name: "x", Driver: "sqlite"},
	}
	for _, in := range bad {
		if _, err := svc.CreateConnection(in); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%+v: err = %v", in, err)
		}
	}

	conn, err := svc.CreateConnection(service.ConnectionInput{
		Name: "Events", Driver: "PostgreSQL", Host: "db.internal", Database: "events", Username: "app", Password: "s3cret",
	})
	if err != nil {
		t.Fatal(err)
	}
	if conn.Driver != domain.DatabaseDriverPostgres || conn.PortOrDefault() != 5432 {
		t.Errorf("driver = %q, port = %d", conn.Driver, conn.PortOrDefault())
	}
	list, err := svc.ListConnections()
	if err != nil || len(list) != 1 || list[0].Name != "Events" {
		t.Fatalf("list = %+v, %v", list, err)
	}
	if err := svc.DeleteConnection(conn.ID); err != nil {
		t.Fatal(err)
	}
	list, _ = svc.ListConnections()
	if len(list) != 0 {
		t.Errorf("list after delete = %+v", list)
	}
}

func TestConnection_SQLiteIntrospectAndQuery(t *testing.T) {
	svc := newConnectionService(t, newDB(t))
	conn, err := svc.CreateConnection(service.ConnectionInput{Name: "Guests", Driver: "sqlite", Host: guestDB(t, 3)})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := svc.TestConnection(ctx, conn.ID); err != nil {
		t.Fatal(err)
	}
	schema, err := svc.Introspect(ctx, conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(schema.Tables) != 1 || schema.Tables[0].Name != "guests" || len(schema.Tables[0].Columns) != 3 {
		t.Errorf("schema = %+v", schema)
	}

	page, err := svc.ExecuteImportQuery(ctx, conn.ID, "SELECT name, link FROM guests ORDER BY id", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Rows) != 2 || !page.HasMore {
		t.Fatalf("first page = %+v", page)
	}
	page, err = svc.FetchMoreImportRows(ctx, conn.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Rows) != 1 || page.HasMore || page.Rows[0][0] != "Guest 3" {
		t.Errorf("second page = %+v", page)
	}

	if _, err := svc.ExecuteImportQuery(ctx, conn.ID, "DELETE FROM guests", 10); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("write query: err = %v", err)
	}
	if _, err := svc.FetchMoreImportRows(ctx, "unknown", 10); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("no cursor: err = %v", err)
	}
}

func TestConnection_FeedsDatabaseImport(t *testing.T) {
	db := newDB(t)
	conns := newConnectionService(t, db)
	sources.SetDBProvider(conns)
	t.Cleanup(func() { sources.SetDBProvider(nil) })

	conn, err := conns.CreateConnection(service.ConnectionInput{Name: "Guests", Driver: "sqlite", Host: guestDB(t, 620)})
	if err != nil {
		t.Fatal(err)
	}

	store := storage.NewCampaignStore(db)
	campaigns := service.NewCampaignService(store, storage.NewTemplateStore(db), qr.NewGenerator(nil), nil)
	c, err := campaigns.CreateCampaign(service.CampaignInput{Name: "RSVP", QRType: domain.QRURL})
	if err != nil {
		t.Fatal(err)
	}
	imports := service.NewImportService(storage.NewImportJobStore(db), store, campaigns.RowPayload, nil)
	t.Cleanup(imports.Stop)

	job, err := imports.CreateJob(context.Background(), service.ImportJobInput{
		CampaignID: c.ID,
		Name:       "Guests",
		SourceType: "database",
		SourceConfig: map[string]any{
			"connectionId": conn.ID,
			"query":        "SELECT name, link AS url FROM guests ORDER BY id",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := imports.RunJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsRead != 620 || res.RowsWritten != 620 {
		t.Errorf("result = %+v", res)
	}
	rows, err := campaigns.ListRows(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 620 || rows[619].QRContent != "https://example.com/rsvp/620" {
		t.Errorf("rows = %d, last payload %q", len(rows), rows[len(rows)-1].QRContent)
	}
}
