package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"qrstudio/internal/domain"
)

// maxVersions is how many saved versions are kept per template.
const maxVersions = 40

// TemplateVersion is a saved snapshot of a template's elements.
type TemplateVersion struct {
	ID           string           `json:"id"`
	TemplateID   string           `json:"templateId"`
	Label        string           `json:"label"`
	ElementCount int              `json:"elementCount"`
	Elements     []domain.Element `json:"elements,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// VersionStore keeps the save history of templates in SQLite.
type VersionStore struct {
	db *DB
}

func NewVersionStore(db *DB) *VersionStore {
	return &VersionStore{db: db}
}

// SaveVersion records elements as the newest version of the template and
// prunes the oldest beyond maxVersions.
func (s *VersionStore) SaveVersion(templateID, label string, elements []domain.Element) (*TemplateVersion, error) {
	if elements == nil {
		elements = []domain.Element{}
	}
	snapshot, err := json.Marshal(elements)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	v := &TemplateVersion{
		ID:           uuid.New().String(),
		TemplateID:   templateID,
		Label:        label,
		ElementCount: len(elements),
		CreatedAt:    time.Now(),
	}
	_, err = s.db.Conn().Exec(
		`INSERT INTO template_versions (id, template_id, label, snapshot_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.TemplateID, v.Label, string(snapshot), v.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	if err := s.prune(templateID, maxVersions); err != nil {
		return nil, err
	}
	return v, nil
}

// ListVersions returns version headers, newest first, without snapshots.
func (s *VersionStore) ListVersions(templateID string) ([]TemplateVersion, error) {
	rows, err := s.db.Conn().Query(
		`SELECT id, template_id, label, json_array_length(snapshot_json), created_at
		 FROM template_versions WHERE template_id = ? ORDER BY rowid DESC`, templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []TemplateVersion
	for rows.Next() {
		var v TemplateVersion
		if err := rows.Scan(&v.ID, &v.TemplateID, &v.Label, &v.ElementCount, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersion returns one version with its elements decoded.
func (s *VersionStore) GetVersion(id string) (*TemplateVersion, error) {
	var (
		v        TemplateVersion
		snapshot string
	)
	err := s.db.Conn().QueryRow(
		`SELECT id, template_id, label, snapshot_json, created_at FROM template_versions WHERE id = ?`, id,
	).Scan(&v.ID, &v.TemplateID, &v.Label, &snapshot, &v.CreatedAt)
	if err != nil {
		return nil, notFound(err, "version", id)
	}
	if err := json.Unmarshal([]byte(snapshot), &v.Elements); err != nil {
		return nil, fmt.Errorf("decode version %s: %w", id, err)
	}
	v.ElementCount = len(v.Elements)
	return &v, nil
}

func (s *VersionStore) ClearTemplate(templateID string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM template_versions WHERE template_id = ?`, templateID)
	return err
}

// prune deletes the oldest versions beyond keep.
func (s *VersionStore) prune(templateID string, keep int) error {
	_, err := s.db.Conn().Exec(
		`DELETE FROM template_versions WHERE template_id = ? AND id NOT IN (
			SELECT id FROM template_versions WHERE template_id = ?
			ORDER BY rowid DESC LIMIT ?
		)`, templateID, templateID, keep,
	)
	if err != nil {
		return fmt.Errorf("prune versions: %w", err)
	}
	return nil
}
