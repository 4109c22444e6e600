package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"qrstudio/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Settings: small key/value preferences in app_settings
// ─────────────────────────────────────────────────────────────

// WindowSize holds the saved window dimensions.
type WindowSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SettingsService persists UI preferences between runs.
type SettingsService struct {
	db *storage.DB
}

func NewSettingsService(db *storage.DB) *SettingsService {
	return &SettingsService{db: db}
}

const (
	settingWindowWidth  = "window_width"
	settingWindowHeight = "window_height"
	settingLastTemplate = "last_template_id"
	defaultWindowWidth  = 1280
	defaultWindowHeight = 800
	minWindowWidth      = 960
	minWindowHeight     = 640
)

// Get returns a stored value and whether it exists.
func (s *SettingsService) Get(key string) (string, bool, error) {
	if s.db == nil {
		return "", false, nil
	}
	var v string
	err := s.db.Conn().QueryRow(`SELECT value FROM app_settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SettingsService) Set(key, value string) error {
	if s.db == nil {
		return fmt.Errorf("settings: no db")
	}
	_, err := s.db.Conn().Exec(
		`INSERT INTO app_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	return nil
}

func (s *SettingsService) getInt(key string, fallback int) int {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// LoadWindowSize returns the saved window dimensions, or defaults.
func (s *SettingsService) LoadWindowSize() WindowSize {
	w := s.getInt(settingWindowWidth, defaultWindowWidth)
	h := s.getInt(settingWindowHeight, defaultWindowHeight)
	if w < minWindowWidth {
		w = defaultWindowWidth
	}
	if h < minWindowHeight {
		h = defaultWindowHeight
	}
	return WindowSize{Width: w, Height: h}
}

// SaveWindowSize persists the current window dimensions.
func (s *SettingsService) SaveWindowSize(width, height int) error {
	if err := s.Set(settingWindowWidth, strconv.Itoa(width)); err != nil {
		return err
	}
	return s.Set(settingWindowHeight, strconv.Itoa(height))
}

// LastTemplate is the template reopened at startup.
func (s *SettingsService) LastTemplate() string {
	v, _, _ := s.Get(settingLastTemplate)
	return v
}

func (s *SettingsService) SetLastTemplate(id string) error {
	return s.Set(settingLastTemplate, id)
}
