package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"qrstudio/internal/domain"
	"qrstudio/internal/etl"
)

// collect drains a Read: collect(t)(src.Read(ctx, cfg)).
func collect(t *testing.T) func(<-chan etl.Record, <-chan error) []etl.Record {
	t.Helper()
	return func(recCh <-chan etl.Record, errCh <-chan error) []etl.Record {
		t.Helper()
		var out []etl.Record
		for r := range recCh {
			out = append(out, r)
		}
		if err := <-errCh; err != nil {
			t.Fatal(err)
		}
		return out
	}
}

func TestCSVSource_KeepsStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	os.WriteFile(path, []byte("\ufeffname;phone;qty\nAda;0612345678;3\n;;\nBob;0698765432;12\n"), 0o644)
	src, _ := etl.GetSource("csv_file")
	cfg := etl.SourceConfig{"filePath": path, "delimiter": ";"}

	schema, err := src.Discover(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := schema.FieldNames(); len(got) != 3 || got[0] != "name" {
		t.Fatalf("fields = %v", got)
	}
	if schema.Fields[1].Type != "text" || schema.Fields[2].Type != "number" {
		t.Errorf("types = %+v", schema.Fields)
	}

	recs := collect(t)(src.Read(context.Background(), cfg))
	if len(recs) != 2 {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].Data["phone"] != "0612345678" || recs[1].Data["name"] != "Bob" {
		t.Errorf("records = %+v", recs)
	}
}

func TestCSVSource_NoHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	os.WriteFile(path, []byte("a,1\nb,2\n"), 0o644)
	src, _ := etl.GetSource("csv_file")
	recs := collect(t)(src.Read(context.Background(), etl.SourceConfig{"filePath": path, "hasHeader": "false"}))
	if len(recs) != 2 || recs[0].Data["col_1"] != "a" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestJSONSource_DataPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.json")
	os.WriteFile(path, []byte(`{"data":{"items":[{"url":"https://a","tags":["x"]},{"url":"https://b"}]}}`), 0o644)
	src, _ := etl.GetSource("json_file")

	recs := collect(t)(src.Read(context.Background(), etl.SourceConfig{"filePath": path, "dataPath": "data.items"}))
	if len(recs) != 2 || recs[0].Data["tags"] != `["x"]` {
		t.Fatalf("records = %+v", recs)
	}

	_, err := src.Discover(context.Background(), etl.SourceConfig{"filePath": path, "dataPath": "data.missing"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing path: %v", err)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"url":"https://a"},{"url":"https://b"}]`))
	}))
	defer srv.Close()
	src, _ := etl.GetSource("http")

	recs := collect(t)(src.Read(context.Background(), etl.SourceConfig{"url": srv.URL, "headers": `{"Authorization":"Bearer k"}`}))
	if len(recs) != 2 {
		t.Fatalf("records = %+v", recs)
	}
	_, err := src.Discover(context.Background(), etl.SourceConfig{"url": srv.URL})
	if !errors.Is(err, domain.ErrRemote) {
		t.Errorf("unauthorized: %v", err)
	}
}

type fakeDB struct{ pages []*QueryPage }

func (f *fakeDB) ExecuteImportQuery(ctx context.Context, connID, query string, n int) (*QueryPage, error) {
	return f.pages[0], nil
}

func (f *fakeDB) FetchMoreImportRows(ctx context.Context, connID string, n int) (*QueryPage, error) {
	f.pages = f.pages[1:]
	return f.pages[0], nil
}

func TestDatabaseSource_Pages(t *testing.T) {
	SetDBProvider(&fakeDB{pages: []*QueryPage{
		{Columns: []string{"id", "url"}, Rows: [][]any{{int64(1), "https://a"}}, HasMore: true},
		{Columns: []string{"id", "url"}, Rows: [][]any{{int64(2), "https://b"}}},
	}})
	defer SetDBProvider(nil)

	src, _ := etl.GetSource("database")
	recs := collect(t)(src.Read(context.Background(), etl.SourceConfig{"connectionId": "c", "query": "select"}))
	if len(recs) != 2 || recs[1].Data["url"] != "https://b" {
		t.Fatalf("records = %+v", recs)
	}
}
