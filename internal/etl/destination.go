package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"qrstudio/internal/domain"
)

// WriteMode decides what happens to a campaign's existing rows.
type WriteMode string

const (
	ModeReplace WriteMode = "replace"
	ModeAppend  WriteMode = "append"
)

// Destination stores transformed records for a campaign.
type Destination interface {
	Write(ctx context.Context, campaignID string, schema *Schema, records []Record, mode WriteMode) (int, error)
}

// PayloadFunc builds the QR payload of a row from the campaign's type and
// default content.
type PayloadFunc func(c *domain.Campaign, data map[string]any) (string, error)

// CampaignRowWriter writes records as campaign data rows.
type CampaignRowWriter struct {
	Store   domain.CampaignStore
	Payload PayloadFunc // nil leaves QRContent empty
}

// Write stores records in order. Rows whose payload cannot be built are
// skipped and logged; they do not fail the import.
func (w *CampaignRowWriter) Write(ctx context.Context, campaignID string, schema *Schema, records []Record, mode WriteMode) (int, error) {
	campaign, err := w.Store.GetCampaign(campaignID)
	if err != nil {
		return 0, fmt.Errorf("get campaign: %w", err)
	}

	offset := 0
	switch mode {
	case ModeReplace, "":
		if err := w.Store.DeleteRowsByCampaign(campaignID); err != nil {
			return 0, fmt.Errorf("clear campaign rows: %w", err)
		}
	case ModeAppend:
		existing, err := w.Store.ListRows(campaignID)
		if err != nil {
			return 0, fmt.Errorf("list campaign rows: %w", err)
		}
		for _, r := range existing {
			if r.SortOrder > offset {
				offset = r.SortOrder
			}
		}
	default:
		return 0, fmt.Errorf("%w: unknown write mode %q", domain.ErrValidation, mode)
	}

	written := 0
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		var payload string
		if w.Payload != nil {
			payload, err = w.Payload(campaign, rec.Data)
			if err != nil {
				log.Printf("[Campaign] %s: row %d skipped: %v", campaignID, i+1, err)
				continue
			}
		}
		data, err := json.Marshal(rec.Data)
		if err != nil {
			log.Printf("[Campaign] %s: row %d skipped: %v", campaignID, i+1, err)
			continue
		}
		row := &domain.DataRow{
			ID:         uuid.New().String(),
			CampaignID: campaignID,
			DataJSON:   string(data),
			QRContent:  payload,
			SortOrder:  offset + written + 1,
		}
		if err := w.Store.CreateRow(row); err != nil {
			return written, fmt.Errorf("create row %d: %w", i+1, err)
		}
		written++
	}
	return written, nil
}
