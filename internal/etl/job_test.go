package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"qrstudio/internal/domain"
)

type staticSource struct {
	typ  string
	rows []map[string]any
	err  error
}

func (s *staticSource) Spec() SourceSpec {
	return SourceSpec{Type: s.typ, ConfigFields: []ConfigField{{Key: "name", Required: true}}}
}

func (s *staticSource) Discover(ctx context.Context, cfg SourceConfig) (*Schema, error) {
	return &Schema{Fields: []Field{{Name: "name", Type: "text"}, {Name: "url", Type: "text"}}}, nil
}

func (s *staticSource) Read(ctx context.Context, cfg SourceConfig) (<-chan Record, <-chan error) {
	out := make(chan Record, len(s.rows))
	errCh := make(chan error, 1)
	for _, r := range s.rows {
		out <- Record{Data: r}
	}
	close(out)
	if s.err != nil {
		errCh <- s.err
	}
	close(errCh)
	return out, errCh
}

type memCampaigns struct {
	campaigns map[string]*domain.Campaign
	rows      []domain.DataRow
}

func (m *memCampaigns) CreateCampaign(c *domain.Campaign) error { m.campaigns[c.ID] = c; return nil }
func (m *memCampaigns) GetCampaign(id string) (*domain.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}
func (m *memCampaigns) ListCampaigns(string) ([]domain.Campaign, error) { return nil, nil }
func (m *memCampaigns) UpdateCampaign(*domain.Campaign) error           { return nil }
func (m *memCampaigns) DeleteCampaign(string) error                     { return nil }
func (m *memCampaigns) CreateRow(r *domain.DataRow) error               { m.rows = append(m.rows, *r); return nil }
func (m *memCampaigns) ListRows(string) ([]domain.DataRow, error)       { return m.rows, nil }
func (m *memCampaigns) UpdateRow(*domain.DataRow) error                 { return nil }
func (m *memCampaigns) DeleteRow(string) error                          { return nil }
func (m *memCampaigns) DeleteRowsByCampaign(string) error               { m.rows = nil; return nil }

func newEngine(store *memCampaigns) *Engine {
	return &Engine{Dest: &CampaignRowWriter{
		Store: store,
		Payload: func(c *domain.Campaign, data map[string]any) (string, error) {
			url, _ := data["url"].(string)
			if url == "" {
				return "", fmt.Errorf("%w: url is empty", domain.ErrValidation)
			}
			return url, nil
		},
	}}
}

func TestEngine_RunTransformsAndWrites(t *testing.T) {
	RegisterSource(&staticSource{typ: "test_rows", rows: []map[string]any{
		{"name": "b", "link": "https://b.example"},
		{"name": "a", "link": "https://a.example"},
		{"name": "a", "link": "https://dup.example"},
		{"name": "c", "link": ""},
	}})
	store := &memCampaigns{campaigns: map[string]*domain.Campaign{"c1": {ID: "c1", QRType: domain.QRURL}}}
	store.rows = []domain.DataRow{{ID: "old"}}

	job := &ImportJob{
		ID: "j1", CampaignID: "c1", SourceType: "test_rows",
		SourceCfg: SourceConfig{"name": "x"},
		Transforms: []TransformConfig{
			{Type: "rename", Config: map[string]any{"mapping": map[string]any{"link": "url"}}},
			{Type: "sort", Config: map[string]any{"field": "name"}},
		},
		DedupeKey: "name",
		Mode:      ModeReplace,
	}
	res, err := newEngine(store).Run(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "success" || res.RowsRead != 4 || res.RowsWritten != 2 || res.RowsSkipped != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(store.rows) != 2 {
		t.Fatalf("rows = %+v", store.rows)
	}
	if store.rows[0].QRContent != "https://a.example" || store.rows[0].SortOrder != 1 {
		t.Errorf("first row = %+v", store.rows[0])
	}
	var data map[string]any
	json.Unmarshal([]byte(store.rows[1].DataJSON), &data)
	if data["name"] != "b" || data["link"] != nil {
		t.Errorf("second row data = %v", data)
	}
}

func TestEngine_AppendContinuesSortOrder(t *testing.T) {
	RegisterSource(&staticSource{typ: "test_append", rows: []map[string]any{{"url": "https://x.example"}}})
	store := &memCampaigns{campaigns: map[string]*domain.Campaign{"c1": {ID: "c1"}}}
	store.rows = []domain.DataRow{{ID: "r1", SortOrder: 7}}

	job := &ImportJob{CampaignID: "c1", SourceType: "test_append", SourceCfg: SourceConfig{"name": "x"}, Mode: ModeAppend}
	if _, err := newEngine(store).Run(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if len(store.rows) != 2 || store.rows[1].SortOrder != 8 {
		t.Fatalf("rows = %+v", store.rows)
	}
}

func TestEngine_RunErrors(t *testing.T) {
	RegisterSource(&staticSource{typ: "test_broken", err: errors.New("boom")})
	store := &memCampaigns{campaigns: map[string]*domain.Campaign{"c1": {ID: "c1"}}}
	e := newEngine(store)

	if _, err := e.Run(context.Background(), &ImportJob{CampaignID: "c1", SourceType: "nope"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown source: %v", err)
	}
	if _, err := e.Run(context.Background(), &ImportJob{CampaignID: "c1", SourceType: "test_broken"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing required config: %v", err)
	}
	res, err := e.Run(context.Background(), &ImportJob{CampaignID: "c1", SourceType: "test_broken", SourceCfg: SourceConfig{"name": "x"}})
	if err == nil || res.Status != "error" {
		t.Errorf("read failure: %+v, %v", res, err)
	}
	bad := &ImportJob{CampaignID: "c1", SourceType: "test_broken", SourceCfg: SourceConfig{"name": "x"},
		Transforms: []TransformConfig{{Type: "explode"}}}
	if _, err := e.Run(context.Background(), bad); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad transform: %v", err)
	}
}

func TestEngine_Preview(t *testing.T) {
	rows := make([]map[string]any, 10)
	for i := range rows {
		rows[i] = map[string]any{"name": fmt.Sprint(i)}
	}
	RegisterSource(&staticSource{typ: "test_preview", rows: rows})
	recs, schema, err := (&Engine{}).Preview(context.Background(), "test_preview", SourceConfig{"name": "x"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 || len(schema.Fields) != 2 {
		t.Fatalf("preview = %d records, %+v", len(recs), schema)
	}
}

func TestTransforms(t *testing.T) {
	ts, err := BuildTransformers([]TransformConfig{
		{Type: "filter", Config: map[string]any{"field": "qty", "op": "gt", "value": 1}},
		{Type: "compute", Config: map[string]any{"columns": []any{
			map[string]any{"name": "url", "expression": "https://shop.example/p/{sku}"},
		}}},
		{Type: "select", Config: map[string]any{"fields": []any{"sku", "url"}}},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, keep := ApplyTransformers(Record{Data: map[string]any{"qty": "1", "sku": "A"}}, ts); keep {
		t.Error("qty 1 should be filtered out")
	}
	out, keep := ApplyTransformers(Record{Data: map[string]any{"qty": "3", "sku": "B7"}}, ts)
	if !keep || out.Data["url"] != "https://shop.example/p/B7" || len(out.Data) != 2 {
		t.Errorf("out = %+v", out)
	}

	lim, _ := BuildTransformers([]TransformConfig{{Type: "limit", Config: map[string]any{"count": float64(1)}}}, "")
	ApplyTransformers(Record{Data: map[string]any{}}, lim)
	if _, keep := ApplyTransformers(Record{Data: map[string]any{}}, lim); keep {
		t.Error("limit 1 kept a second record")
	}
}

func TestApplyBatchSort_NumericDesc(t *testing.T) {
	recs := []Record{
		{Data: map[string]any{"n": "2"}},
		{Data: map[string]any{"n": "10"}},
		{Data: map[string]any{"n": "1"}},
	}
	sorted := ApplyBatchSort(recs, []Transformer{&SortTransform{Field: "n", Direction: "desc"}})
	if sorted[0].Data["n"] != "10" || sorted[2].Data["n"] != "1" {
		t.Errorf("sorted = %+v", sorted)
	}
	if recs[0].Data["n"] != "2" {
		t.Error("input slice reordered")
	}
}
