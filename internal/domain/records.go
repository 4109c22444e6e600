package domain

import "time"

// Template is an uploaded document the user edits and saves overlays onto.
type Template struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	SourceURL    string    `json:"sourceUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	PageCount    int       `json:"pageCount"`
	MetadataJSON string    `json:"metadataJson"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type TemplateStore interface {
	CreateTemplate(t *Template) error
	GetTemplate(id string) (*Template, error)
	ListTemplates(userID string) ([]Template, error)
	UpdateTemplate(t *Template) error
	DeleteTemplate(id string) error

	ListTemplateElements(templateID string) ([]Element, error)
	ReplaceTemplateElements(templateID string, elements []Element) error
}

type CampaignStatus string

const (
	CampaignDraft    CampaignStatus = "draft"
	CampaignActive   CampaignStatus = "active"
	CampaignArchived CampaignStatus = "archived"
)

// Campaign groups data rows that each become one QR code.
type Campaign struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"userId"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	QRType             QRType         `json:"qrType"`
	DefaultContentJSON string         `json:"defaultContentJson"`
	TemplateID         string         `json:"templateId"`
	Status             CampaignStatus `json:"status"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// DataRow is one record of campaign data. DataJSON stores the imported
// columns as { "column": value }; QRContent is the payload encoded for it
// and CodeURL the stored image of that code, once generated.
type DataRow struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaignId"`
	DataJSON   string    `json:"dataJson"`
	QRContent  string    `json:"qrContent"`
	CodeURL    string    `json:"codeUrl"`
	SortOrder  int       `json:"sortOrder"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type CampaignStore interface {
	CreateCampaign(c *Campaign) error
	GetCampaign(id string) (*Campaign, error)
	ListCampaigns(userID string) ([]Campaign, error)
	UpdateCampaign(c *Campaign) error
	DeleteCampaign(id string) error

	CreateRow(row *DataRow) error
	ListRows(campaignID string) ([]DataRow, error)
	UpdateRow(row *DataRow) error
	DeleteRow(id string) error
	DeleteRowsByCampaign(campaignID string) error
}
