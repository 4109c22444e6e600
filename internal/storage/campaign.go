package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"qrstudio/internal/domain"
)

// CampaignStore implements domain.CampaignStore using SQLite.
type CampaignStore struct {
	db *DB
}

func NewCampaignStore(db *DB) *CampaignStore {
	return &CampaignStore{db: db}
}

const campaignColumns = `id, user_id, name, description, qr_type, default_content_json, template_id, status, created_at, updated_at`

func scanCampaign(sc interface{ Scan(...any) error }, c *domain.Campaign) error {
	return sc.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.QRType, &c.DefaultContentJSON, &c.TemplateID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
}

func (s *CampaignStore) CreateCampaign(c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	if c.DefaultContentJSON == "" {
		c.DefaultContentJSON = "{}"
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.db.Conn().Exec(
		`INSERT INTO campaigns (`+campaignColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Description, c.QRType, c.DefaultContentJSON, c.TemplateID, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (s *CampaignStore) GetCampaign(id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	row := s.db.Conn().QueryRow(`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	if err := scanCampaign(row, c); err != nil {
		return nil, notFound(err, "campaign", id)
	}
	return c, nil
}

// ListCampaigns returns the user's campaigns, newest first. An empty userID
// lists every campaign.
func (s *CampaignStore) ListCampaigns(userID string) ([]domain.Campaign, error) {
	rows, err := s.db.Conn().Query(
		`SELECT `+campaignColumns+` FROM campaigns WHERE ? = '' OR user_id = ? ORDER BY created_at DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := scanCampaign(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CampaignStore) UpdateCampaign(c *domain.Campaign) error {
	c.UpdatedAt = time.Now()
	res, err := s.db.Conn().Exec(
		`UPDATE campaigns SET name = ?, description = ?, qr_type = ?, default_content_json = ?, template_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Description, c.QRType, c.DefaultContentJSON, c.TemplateID, c.Status, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return requireRow(res, "campaign", c.ID)
}

// DeleteCampaign removes the campaign with its rows and import jobs.
func (s *CampaignStore) DeleteCampaign(id string) error {
	return s.db.withTx(func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM import_run_logs WHERE job_id IN (SELECT id FROM import_jobs WHERE campaign_id = ?)`,
			`DELETE FROM import_jobs WHERE campaign_id = ?`,
			`DELETE FROM data_rows WHERE campaign_id = ?`,
		} {
			if _, err := tx.Exec(q, id); err != nil {
				return fmt.Errorf("delete campaign %s: %w", id, err)
			}
		}
		res, err := tx.Exec(`DELETE FROM campaigns WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete campaign %s: %w", id, err)
		}
		return requireRow(res, "campaign", id)
	})
}

// ── Data rows ──────────────────────────────────────────────

const rowColumns = `id, campaign_id, data_json, qr_content, code_url, sort_order, created_at, updated_at`

func (s *CampaignStore) CreateRow(r *domain.DataRow) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.DataJSON == "" {
		r.DataJSON = "{}"
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := s.db.Conn().Exec(
		`INSERT INTO data_rows (`+rowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CampaignID, r.DataJSON, r.QRContent, r.CodeURL, r.SortOrder, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}

func (s *CampaignStore) GetRow(id string) (*domain.DataRow, error) {
	r := &domain.DataRow{}
	err := s.db.Conn().QueryRow(`SELECT `+rowColumns+` FROM data_rows WHERE id = ?`, id).
		Scan(&r.ID, &r.CampaignID, &r.DataJSON, &r.QRContent, &r.CodeURL, &r.SortOrder, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "row", id)
	}
	return r, nil
}

func (s *CampaignStore) ListRows(campaignID string) ([]domain.DataRow, error) {
	rows, err := s.db.Conn().Query(
		`SELECT `+rowColumns+` FROM data_rows WHERE campaign_id = ? ORDER BY sort_order ASC, created_at ASC`, campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	var out []domain.DataRow
	for rows.Next() {
		var r domain.DataRow
		if err := rows.Scan(&r.ID, &r.CampaignID, &r.DataJSON, &r.QRContent, &r.CodeURL, &r.SortOrder, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CampaignStore) CountRows(campaignID string) (int, error) {
	var n int
	err := s.db.Conn().QueryRow(`SELECT COUNT(*) FROM data_rows WHERE campaign_id = ?`, campaignID).Scan(&n)
	return n, err
}

func (s *CampaignStore) UpdateRow(r *domain.DataRow) error {
	r.UpdatedAt = time.Now()
	res, err := s.db.Conn().Exec(
		`UPDATE data_rows SET data_json = ?, qr_content = ?, code_url = ?, sort_order = ?, updated_at = ? WHERE id = ?`,
		r.DataJSON, r.QRContent, r.CodeURL, r.SortOrder, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update row: %w", err)
	}
	return requireRow(res, "row", r.ID)
}

func (s *CampaignStore) DeleteRow(id string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM data_rows WHERE id = ?`, id)
	return err
}

func (s *CampaignStore) DeleteRowsByCampaign(campaignID string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM data_rows WHERE campaign_id = ?`, campaignID)
	return err
}
