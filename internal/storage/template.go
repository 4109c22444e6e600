package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"qrstudio/internal/domain"
)

// TemplateStore implements domain.TemplateStore using SQLite.
type TemplateStore struct {
	db *DB
}

func NewTemplateStore(db *DB) *TemplateStore {
	return &TemplateStore{db: db}
}

const templateColumns = `id, user_id, name, source_url, thumbnail_url, page_count, metadata_json, created_at, updated_at`

func scanTemplate(sc interface{ Scan(...any) error }, t *domain.Template) error {
	return sc.Scan(&t.ID, &t.UserID, &t.Name, &t.SourceURL, &t.ThumbnailURL, &t.PageCount, &t.MetadataJSON, &t.CreatedAt, &t.UpdatedAt)
}

func (s *TemplateStore) CreateTemplate(t *domain.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.MetadataJSON == "" {
		t.MetadataJSON = "{}"
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.Conn().Exec(
		`INSERT INTO templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Name, t.SourceURL, t.ThumbnailURL, t.PageCount, t.MetadataJSON, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *TemplateStore) GetTemplate(id string) (*domain.Template, error) {
	t := &domain.Template{}
	row := s.db.Conn().QueryRow(`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	if err := scanTemplate(row, t); err != nil {
		return nil, notFound(err, "template", id)
	}
	return t, nil
}

// ListTemplates returns the user's templates, most recently edited first.
// An empty userID lists every template.
func (s *TemplateStore) ListTemplates(userID string) ([]domain.Template, error) {
	rows, err := s.db.Conn().Query(
		`SELECT `+templateColumns+` FROM templates WHERE ? = '' OR user_id = ? ORDER BY updated_at DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := scanTemplate(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TemplateStore) UpdateTemplate(t *domain.Template) error {
	t.UpdatedAt = time.Now()
	res, err := s.db.Conn().Exec(
		`UPDATE templates SET name = ?, source_url = ?, thumbnail_url = ?, page_count = ?, metadata_json = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.SourceURL, t.ThumbnailURL, t.PageCount, t.MetadataJSON, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return requireRow(res, "template", t.ID)
}

// DeleteTemplate removes the template with its elements and versions and
// detaches campaigns that used it.
func (s *TemplateStore) DeleteTemplate(id string) error {
	return s.db.withTx(func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM template_elements WHERE template_id = ?`,
			`DELETE FROM template_versions WHERE template_id = ?`,
			`UPDATE campaigns SET template_id = '' WHERE template_id = ?`,
		} {
			if _, err := tx.Exec(q, id); err != nil {
				return fmt.Errorf("delete template %s: %w", id, err)
			}
		}
		res, err := tx.Exec(`DELETE FROM templates WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete template %s: %w", id, err)
		}
		return requireRow(res, "template", id)
	})
}

// ── Elements ───────────────────────────────────────────────

// ListTemplateElements returns the saved elements in their saved order.
func (s *TemplateStore) ListTemplateElements(templateID string) ([]domain.Element, error) {
	rows, err := s.db.Conn().Query(
		`SELECT id, type, page, x, y, width, height, rotation, opacity, z, locked, edited, props_json
		 FROM template_elements WHERE template_id = ? ORDER BY sort_order ASC`, templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list template elements: %w", err)
	}
	defer rows.Close()

	var out []domain.Element
	for rows.Next() {
		var (
			el    domain.Element
			kind  domain.ElementKind
			props string
		)
		if err := rows.Scan(&el.ID, &kind, &el.Page, &el.Rect.X, &el.Rect.Y, &el.Rect.Width, &el.Rect.Height,
			&el.Rotation, &el.Opacity, &el.Z, &el.Locked, &el.Edited, &props); err != nil {
			return nil, err
		}
		body, err := domain.DecodeBody(kind, json.RawMessage(props))
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", el.ID, err)
		}
		el.Body = body
		out = append(out, el)
	}
	return out, rows.Err()
}

// ReplaceTemplateElements atomically replaces every saved element of a
// template and bumps its updated_at.
func (s *TemplateStore) ReplaceTemplateElements(templateID string, elements []domain.Element) error {
	for _, el := range elements {
		if err := el.Validate(); err != nil {
			return fmt.Errorf("element %s: %w", el.ID, err)
		}
	}
	return s.db.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE templates SET updated_at = ? WHERE id = ?`, time.Now(), templateID)
		if err != nil {
			return fmt.Errorf("touch template: %w", err)
		}
		if err := requireRow(res, "template", templateID); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM template_elements WHERE template_id = ?`, templateID); err != nil {
			return fmt.Errorf("delete elements: %w", err)
		}
		for i, el := range elements {
			props, err := json.Marshal(el.Body)
			if err != nil {
				return fmt.Errorf("encode element %s: %w", el.ID, err)
			}
			_, err = tx.Exec(
				`INSERT INTO template_elements (id, template_id, type, page, x, y, width, height, rotation, opacity, z, locked, edited, props_json, sort_order)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				el.ID, templateID, el.Kind(), el.Page, el.Rect.X, el.Rect.Y, el.Rect.Width, el.Rect.Height,
				el.Rotation, el.Opacity, el.Z, el.Locked, el.Edited, string(props), i,
			)
			if err != nil {
				return fmt.Errorf("insert element %s: %w", el.ID, err)
			}
		}
		return nil
	})
}

func requireRow(res sql.Result, what, id string) error {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return nil
}
