package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"qrstudio/internal/domain"
	"qrstudio/internal/objstore"
	"qrstudio/internal/qr"
	"qrstudio/internal/service"
	"qrstudio/internal/storage"
)

type campaignFixture struct {
	svc     *service.CampaignService
	store   *storage.CampaignStore
	objects *objstore.LocalStore
}

func newCampaignFixture(t *testing.T) *campaignFixture {
	t.Helper()
	db := newDB(t)
	objects := newObjects(t)
	store := storage.NewCampaignStore(db)
	svc := service.NewCampaignService(store, storage.NewTemplateStore(db), qr.NewGenerator(nil), objects)
	return &campaignFixture{svc: svc, store: store, objects: objects}
}

func (f *campaignFixture) wifiCampaign(t *testing.T) *domain.Campaign {
	t.Helper()
	c, err := f.svc.CreateCampaign(service.CampaignInput{
		UserID:             "user-1",
		Name:               " Guest Wi-Fi ",
		QRType:             domain.QRWiFi,
		DefaultContentJSON: `{"encryption":"WPA","password":"welcome1"}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCampaign_Validation(t *testing.T) {
	f := newCampaignFixture(t)
	cases := map[string]service.CampaignInput{
		"no name":          {QRType: domain.QRURL},
		"unknown type":     {Name: "x", QRType: "fax"},
		"bad defaults":     {Name: "x", QRType: domain.QRURL, DefaultContentJSON: "{"},
		"bad status":       {Name: "x", QRType: domain.QRURL, Status: "deleted"},
		"missing template": {Name: "x", QRType: domain.QRURL, TemplateID: "nope"},
	}
	for name, in := range cases {
		if _, err := f.svc.CreateCampaign(in); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	_, err := f.svc.CreateCampaign(service.CampaignInput{Name: "x", QRType: "fax"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown type err = %v", err)
	}
}

func TestCampaign_RowPayloadMergesDefaults(t *testing.T) {
	f := newCampaignFixture(t)
	c := f.wifiCampaign(t)
	if c.Name != "Guest Wi-Fi" {
		t.Errorf("name = %q", c.Name)
	}

	row, err := f.svc.AddRow(c.ID, map[string]any{"ssid": "Lobby", "table": 4})
	if err != nil {
		t.Fatal(err)
	}
	if row.QRContent != "WIFI:T:WPA;S:Lobby;P:welcome1;;" {
		t.Errorf("payload = %q", row.QRContent)
	}
	if row.SortOrder != 1 {
		t.Errorf("sort order = %d", row.SortOrder)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(row.DataJSON), &data); err != nil || data["table"] != float64(4) {
		t.Errorf("data = %s", row.DataJSON)
	}

	if _, err := f.svc.AddRow(c.ID, map[string]any{"table": 5}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("row without ssid: err = %v", err)
	}
}

func TestCampaign_UpdateRecomputesPayloads(t *testing.T) {
	f := newCampaignFixture(t)
	c := f.wifiCampaign(t)
	row, err := f.svc.AddRow(c.ID, map[string]any{"ssid": "Lobby"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.GenerateRowCodes(context.Background(), c.ID, qr.Options{Size: 128}); err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.UpdateCampaign(c.ID, service.CampaignInput{
		Name:               c.Name,
		QRType:             domain.QRWiFi,
		DefaultContentJSON: `{"encryption":"nopass"}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.store.GetRow(row.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.QRContent != "WIFI:T:nopass;S:Lobby;;" {
		t.Errorf("payload = %q", got.QRContent)
	}
	if got.CodeURL != "" {
		t.Errorf("stale code url kept: %q", got.CodeURL)
	}

	updated, err := f.svc.UpdateRowData(row.ID, map[string]any{"ssid": "Terrace"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.QRContent != "WIFI:T:nopass;S:Terrace;;" {
		t.Errorf("row payload = %q", updated.QRContent)
	}
}

func TestCampaign_GenerateRowCodes(t *testing.T) {
	f := newCampaignFixture(t)
	c := f.wifiCampaign(t)
	for _, ssid := range []string{"A", "B"} {
		if _, err := f.svc.AddRow(c.ID, map[string]any{"ssid": ssid}); err != nil {
			t.Fatal(err)
		}
	}
	// A row whose payload can no longer be built.
	if err := f.store.CreateRow(&domain.DataRow{CampaignID: c.ID, DataJSON: `{}`, SortOrder: 3}); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.GenerateRowCodes(context.Background(), c.ID, qr.Options{Size: 128})
	if err != nil {
		t.Fatal(err)
	}
	if res.Generated != 2 || res.Failed != 1 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}

	rows, err := f.svc.ListRows(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rows[:2] {
		if !strings.HasSuffix(r.CodeURL, "campaigns/"+c.ID+"/codes/"+r.ID+".png") {
			t.Errorf("code url = %q", r.CodeURL)
			continue
		}
		rc, contentType, err := f.objects.Get(context.Background(), "campaigns/"+c.ID+"/codes/"+r.ID+".png")
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		if contentType != "image/png" || !bytes.HasPrefix(b, []byte("\x89PNG")) {
			t.Errorf("stored code: %s, %d bytes", contentType, len(b))
		}
	}
}

func TestCampaign_PrintSheet(t *testing.T) {
	f := newCampaignFixture(t)
	c := f.wifiCampaign(t)

	if _, err := f.svc.PrintSheet(context.Background(), c.ID, service.SheetInput{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty campaign: err = %v", err)
	}

	for _, ssid := range []string{"Lobby", "Terrace", "Bar"} {
		if _, err := f.svc.AddRow(c.ID, map[string]any{"ssid": ssid}); err != nil {
			t.Fatal(err)
		}
	}
	url, err := f.svc.PrintSheet(context.Background(), c.ID, service.SheetInput{Columns: 2, LabelField: "ssid"})
	if err != nil {
		t.Fatal(err)
	}
	i := strings.Index(url, "campaigns/")
	if i < 0 || !strings.HasSuffix(url, ".pdf") {
		t.Fatalf("url = %q", url)
	}
	rc, _, err := f.objects.Get(context.Background(), url[i:])
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Errorf("sheet is not a PDF: %q", b[:min(len(b), 8)])
	}
}

func TestCampaign_DeleteRemovesRows(t *testing.T) {
	f := newCampaignFixture(t)
	c := f.wifiCampaign(t)
	if _, err := f.svc.AddRow(c.ID, map[string]any{"ssid": "Lobby"}); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteCampaign(c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.GetCampaign(c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	rows, err := f.svc.ListRows(c.ID)
	if err != nil || len(rows) != 0 {
		t.Errorf("rows after delete = %d, %v", len(rows), err)
	}
}
