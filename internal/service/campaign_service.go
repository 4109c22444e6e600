package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"qrstudio/internal/domain"
	"qrstudio/internal/objstore"
	"qrstudio/internal/qr"
	"qrstudio/internal/render"
	"qrstudio/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Campaign Service: campaigns, data rows and their QR codes
// ─────────────────────────────────────────────────────────────

// CampaignInput is the DTO for creating and updating campaigns.
type CampaignInput struct {
	UserID             string                `json:"userId"`
	Name               string                `json:"name"`
	Description        string                `json:"description"`
	QRType             domain.QRType         `json:"qrType"`
	DefaultContentJSON string                `json:"defaultContentJson"`
	TemplateID         string                `json:"templateId"`
	Status             domain.CampaignStatus `json:"status"`
}

// CodesResult summarizes a GenerateRowCodes run.
type CodesResult struct {
	CampaignID string   `json:"campaignId"`
	Generated  int      `json:"generated"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// SheetInput lays out a campaign print sheet.
type SheetInput struct {
	Title      string `json:"title"`
	Columns    int    `json:"columns"`
	LabelField string `json:"labelField"` // data column printed under each code
}

type CampaignService struct {
	store     *storage.CampaignStore
	templates *storage.TemplateStore
	gen       *qr.Generator
	objects   objstore.Store
	now       func() time.Time
}

func NewCampaignService(
	store *storage.CampaignStore,
	templates *storage.TemplateStore,
	gen *qr.Generator,
	objects objstore.Store,
) *CampaignService {
	return &CampaignService{store: store, templates: templates, gen: gen, objects: objects, now: time.Now}
}

func (s *CampaignService) validate(in CampaignInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: campaign name is required", domain.ErrValidation)
	}
	known := false
	for _, f := range s.gen.Forms() {
		if f.Type == in.QRType {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: unknown QR type %q", domain.ErrValidation, in.QRType)
	}
	if in.DefaultContentJSON != "" && !json.Valid([]byte(in.DefaultContentJSON)) {
		return fmt.Errorf("%w: default content is not valid JSON", domain.ErrValidation)
	}
	switch in.Status {
	case "", domain.CampaignDraft, domain.CampaignActive, domain.CampaignArchived:
	default:
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, in.Status)
	}
	if in.TemplateID != "" && s.templates != nil {
		if _, err := s.templates.GetTemplate(in.TemplateID); err != nil {
			return fmt.Errorf("campaign template: %w", err)
		}
	}
	return nil
}

// ── Campaign CRUD ──────────────────────────────────────────

func (s *CampaignService) CreateCampaign(in CampaignInput) (*domain.Campaign, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	c := &domain.Campaign{
		UserID:             in.UserID,
		Name:               strings.TrimSpace(in.Name),
		Description:        in.Description,
		QRType:             in.QRType,
		DefaultContentJSON: in.DefaultContentJSON,
		TemplateID:         in.TemplateID,
		Status:             in.Status,
	}
	if err := s.store.CreateCampaign(c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

func (s *CampaignService) GetCampaign(id string) (*domain.Campaign, error) {
	return s.store.GetCampaign(id)
}

func (s *CampaignService) ListCampaigns(userID string) ([]domain.Campaign, error) {
	return s.store.ListCampaigns(userID)
}

// UpdateCampaign saves in over the campaign. Changing the QR type or the
// defaults recomputes every row payload and clears stale code images.
func (s *CampaignService) UpdateCampaign(id string, in CampaignInput) (*domain.Campaign, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	c, err := s.store.GetCampaign(id)
	if err != nil {
		return nil, err
	}
	contentChanged := c.QRType != in.QRType || c.DefaultContentJSON != in.DefaultContentJSON
	c.Name = strings.TrimSpace(in.Name)
	c.Description = in.Description
	c.QRType = in.QRType
	c.DefaultContentJSON = in.DefaultContentJSON
	c.TemplateID = in.TemplateID
	if in.Status != "" {
		c.Status = in.Status
	}
	if err := s.store.UpdateCampaign(c); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}
	if contentChanged {
		if err := s.refreshPayloads(c); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (s *CampaignService) DeleteCampaign(id string) error {
	if err := s.store.DeleteCampaign(id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return nil
}

// ── Rows ───────────────────────────────────────────────────

func (s *CampaignService) ListRows(campaignID string) ([]domain.DataRow, error) {
	return s.store.ListRows(campaignID)
}

// RowPayload builds the QR payload of one row of data. It is also the
// payload function of campaign imports.
func (s *CampaignService) RowPayload(c *domain.Campaign, data map[string]any) (string, error) {
	var defaults json.RawMessage
	if c.DefaultContentJSON != "" {
		defaults = json.RawMessage(c.DefaultContentJSON)
	}
	return s.gen.Payload(c.QRType, defaults, data)
}

// AddRow appends a row typed in by the user.
func (s *CampaignService) AddRow(campaignID string, data map[string]any) (*domain.DataRow, error) {
	c, err := s.store.GetCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	payload, err := s.RowPayload(c, data)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	n, err := s.store.CountRows(campaignID)
	if err != nil {
		return nil, err
	}
	row := &domain.DataRow{CampaignID: campaignID, DataJSON: string(raw), QRContent: payload, SortOrder: n + 1}
	if err := s.store.CreateRow(row); err != nil {
		return nil, fmt.Errorf("add row: %w", err)
	}
	return row, nil
}

// UpdateRowData replaces the data of a row and recomputes its payload. The
// stored code image is cleared since it no longer matches.
func (s *CampaignService) UpdateRowData(rowID string, data map[string]any) (*domain.DataRow, error) {
	row, err := s.store.GetRow(rowID)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCampaign(row.CampaignID)
	if err != nil {
		return nil, err
	}
	payload, err := s.RowPayload(c, data)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	row.DataJSON = string(raw)
	if row.QRContent != payload {
		row.CodeURL = ""
	}
	row.QRContent = payload
	if err := s.store.UpdateRow(row); err != nil {
		return nil, fmt.Errorf("update row: %w", err)
	}
	return row, nil
}

func (s *CampaignService) DeleteRow(id string) error {
	return s.store.DeleteRow(id)
}

func (s *CampaignService) refreshPayloads(c *domain.Campaign) error {
	rows, err := s.store.ListRows(c.ID)
	if err != nil {
		return err
	}
	var failed int
	for i := range rows {
		row := &rows[i]
		var data map[string]any
		if err := json.Unmarshal([]byte(row.DataJSON), &data); err != nil {
			failed++
			continue
		}
		payload, err := s.RowPayload(c, data)
		if err != nil {
			payload = ""
			failed++
		}
		if payload == row.QRContent {
			continue
		}
		row.QRContent = payload
		row.CodeURL = ""
		if err := s.store.UpdateRow(row); err != nil {
			return fmt.Errorf("update row %s: %w", row.ID, err)
		}
	}
	if failed > 0 {
		log.Printf("[Campaign] %s: %d row(s) no longer produce a valid payload", c.ID, failed)
	}
	return nil
}

// ── Codes ──────────────────────────────────────────────────

func codePath(campaignID, rowID string) string {
	return "campaigns/" + campaignID + "/codes/" + rowID + ".png"
}

// GenerateRowCodes encodes each row's payload as a PNG, stores it and
// records its URL on the row. Rows without a payload are counted as failed.
func (s *CampaignService) GenerateRowCodes(ctx context.Context, campaignID string, opts qr.Options) (*CodesResult, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("generate codes: %w: no object store configured", domain.ErrStorage)
	}
	rows, err := s.store.ListRows(campaignID)
	if err != nil {
		return nil, err
	}
	res := &CodesResult{CampaignID: campaignID}
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		row := &rows[i]
		if row.QRContent == "" {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: no payload", row.SortOrder))
			continue
		}
		png, err := qr.PNG(row.QRContent, opts)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", row.SortOrder, err))
			continue
		}
		url, err := s.objects.Put(ctx, codePath(campaignID, row.ID), bytes.NewReader(png), "image/png")
		if err != nil {
			return res, fmt.Errorf("store code of row %d: %w", row.SortOrder, err)
		}
		row.CodeURL = url
		if err := s.store.UpdateRow(row); err != nil {
			return res, fmt.Errorf("update row %d: %w", row.SortOrder, err)
		}
		res.Generated++
	}
	log.Printf("[Campaign] %s: generated %d code(s), %d failed", campaignID, res.Generated, res.Failed)
	return res, nil
}

// PrintSheet renders every row's code onto an A4 PDF grid, stores it and
// returns its URL.
func (s *CampaignService) PrintSheet(ctx context.Context, campaignID string, in SheetInput) (string, error) {
	if s.objects == nil {
		return "", fmt.Errorf("print sheet: %w: no object store configured", domain.ErrStorage)
	}
	c, err := s.store.GetCampaign(campaignID)
	if err != nil {
		return "", err
	}
	rows, err := s.store.ListRows(campaignID)
	if err != nil {
		return "", err
	}

	items := make([]render.SheetItem, 0, len(rows))
	for _, row := range rows {
		if row.QRContent == "" {
			continue
		}
		png, err := qr.PNG(row.QRContent, qr.Options{Size: 512})
		if err != nil {
			log.Printf("[Campaign] sheet %s: skip row %d: %v", campaignID, row.SortOrder, err)
			continue
		}
		items = append(items, render.SheetItem{Label: rowLabel(row, in.LabelField), PNG: png})
	}
	if len(items) == 0 {
		return "", fmt.Errorf("%w: campaign has no rows with QR content", domain.ErrValidation)
	}

	title := in.Title
	if title == "" {
		title = c.Name
	}
	var buf bytes.Buffer
	if err := render.PrintSheet(&buf, items, render.SheetOptions{Title: title, Columns: in.Columns}); err != nil {
		return "", fmt.Errorf("render sheet: %w", err)
	}
	p := fmt.Sprintf("campaigns/%s/sheet-%d.pdf", campaignID, s.now().UnixMilli())
	url, err := s.objects.Put(ctx, p, &buf, "application/pdf")
	if err != nil {
		return "", fmt.Errorf("store sheet: %w", err)
	}
	return url, nil
}

// rowLabel is the labelField value of the row, or its position.
func rowLabel(row domain.DataRow, labelField string) string {
	if labelField != "" {
		var data map[string]any
		if json.Unmarshal([]byte(row.DataJSON), &data) == nil {
			if v, ok := data[labelField]; ok && v != nil {
				return fmt.Sprint(v)
			}
		}
	}
	return fmt.Sprintf("#%d", row.SortOrder)
}
