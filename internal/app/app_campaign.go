package app

import (
	"encoding/json"

	"qrstudio/internal/domain"
	"qrstudio/internal/qr"
	"qrstudio/internal/service"
)

// ============================================================
// QR codes
// ============================================================

func (a *App) ListQRForms() []domain.QRForm {
	return a.gen.Forms()
}

// PreviewQR encodes typed content without storing anything.
func (a *App) PreviewQR(qrType string, content json.RawMessage, opts qr.Options) (g *qr.Generated, err error) {
	err = a.bound("preview qr", true, func() error {
		g, err = a.gen.GenerateJSON(domain.QRType(qrType), content, opts)
		return err
	})
	return g, err
}

// ============================================================
// Campaigns
// ============================================================

func (a *App) ListCampaigns() ([]domain.Campaign, error) {
	return a.campaigns.ListCampaigns(a.currentUserID())
}

func (a *App) GetCampaign(id string) (*domain.Campaign, error) {
	return a.campaigns.GetCampaign(id)
}

func (a *App) CreateCampaign(in service.CampaignInput) (c *domain.Campaign, err error) {
	err = a.bound("create campaign", true, func() error {
		if in.UserID == "" {
			in.UserID = a.currentUserID()
		}
		c, err = a.campaigns.CreateCampaign(in)
		return err
	})
	return c, err
}

func (a *App) UpdateCampaign(id string, in service.CampaignInput) (c *domain.Campaign, err error) {
	err = a.bound("update campaign", true, func() error {
		c, err = a.campaigns.UpdateCampaign(id, in)
		return err
	})
	return c, err
}

func (a *App) DeleteCampaign(id string) error {
	return a.bound("delete campaign", true, func() error {
		return a.campaigns.DeleteCampaign(id)
	})
}

// ── Data rows ──────────────────────────────────────────────

func (a *App) ListCampaignRows(campaignID string) ([]domain.DataRow, error) {
	a.watcher.SetCampaign(campaignID)
	return a.campaigns.ListRows(campaignID)
}

func (a *App) AddCampaignRow(campaignID string, data map[string]any) (r *domain.DataRow, err error) {
	err = a.bound("add row", true, func() error {
		r, err = a.campaigns.AddRow(campaignID, data)
		return err
	})
	return r, err
}

func (a *App) UpdateCampaignRow(rowID string, data map[string]any) (r *domain.DataRow, err error) {
	err = a.bound("update row", true, func() error {
		r, err = a.campaigns.UpdateRowData(rowID, data)
		return err
	})
	return r, err
}

func (a *App) DeleteCampaignRow(rowID string) error {
	return a.bound("delete row", true, func() error {
		return a.campaigns.DeleteRow(rowID)
	})
}

// GenerateCampaignCodes renders and stores a code image for every row.
func (a *App) GenerateCampaignCodes(campaignID string, opts qr.Options) (res *service.CodesResult, err error) {
	err = a.bound("generate codes", true, func() error {
		res, err = a.campaigns.GenerateRowCodes(a.ctx, campaignID, opts)
		return err
	})
	return res, err
}

// PrintCampaignSheet renders the row codes onto a printable PDF and returns
// its URL.
func (a *App) PrintCampaignSheet(campaignID string, in service.SheetInput) (url string, err error) {
	err = a.bound("print sheet", true, func() error {
		url, err = a.campaigns.PrintSheet(a.ctx, campaignID, in)
		return err
	})
	return url, err
}
