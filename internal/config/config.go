package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the application configuration. It is read from
// $XDG_CONFIG_HOME/qrstudio/config.json when present, then overridden by
// QRSTUDIO_* environment variables.
type Config struct {
	DataDir string `json:"data_dir"` // default ~/.local/share/qrstudio
	DBPath  string `json:"db_path"`  // default <data_dir>/qrstudio.db

	ConvertURL    string `json:"convert_url"`     // remote conversion service base URL
	ConvertAPIKey string `json:"convert_api_key"` // sent as X-API-Key

	AuthURL      string `json:"auth_url"`       // identity provider base URL
	AuthClientID string `json:"auth_client_id"` // sent as Client-Id

	ObjectStore ObjectStoreConf `json:"object_store"`
	Cache       CacheConf       `json:"cache"`

	MaxPDFBytes   int64 `json:"max_pdf_bytes"`
	MaxImageBytes int64 `json:"max_image_bytes"`

	HistoryLimit  int      `json:"history_limit"` // snapshots kept per session, 0 = unbounded
	ExportTimeout Duration `json:"export_timeout"`
	RenderDPI     int      `json:"render_dpi"`
	RenderWorkers int      `json:"render_workers"`

	DownloadListen string `json:"download_listen"` // download routes, e.g. 127.0.0.1:34115
}

type ObjectStoreConf struct {
	Backend  string `json:"backend"` // "local" | "gridfs"
	Root     string `json:"root"`    // local: directory, default <data_dir>/assets
	MongoURI string `json:"mongo_uri"`
	Database string `json:"database"`
	Bucket   string `json:"bucket"`

	// WritablePrefixes restricts uploads to these path prefixes. Empty
	// allows any path outside the reserved ones.
	WritablePrefixes []string `json:"writable_prefixes"`
}

type CacheConf struct {
	Backend   string   `json:"backend"` // "memory" | "redis"
	RedisAddr string   `json:"redis_addr"`
	RedisPW   string   `json:"redis_pw"`
	RedisDB   int      `json:"redis_db"`
	TTL       Duration `json:"ttl"`
}

// Duration reads either a Go duration string ("30s") or whole seconds.
type Duration struct{ time.Duration }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		d.Duration = v
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

const (
	MiB = 1 << 20

	defaultMaxPDF   = 50 * MiB
	defaultMaxImage = 5 * MiB
)

// Default returns the configuration used when no file or env is present.
func Default() Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "qrstudio")
	return Config{
		DataDir:       dataDir,
		ConvertURL:    "http://127.0.0.1:8090",
		AuthURL:       "http://127.0.0.1:8091",
		AuthClientID:  "qrstudio-desktop",
		ObjectStore:   ObjectStoreConf{Backend: "local", Database: "qrstudio", Bucket: "uploads"},
		Cache:         CacheConf{Backend: "memory", RedisAddr: "127.0.0.1:6379", TTL: Duration{time.Hour}},
		MaxPDFBytes:   defaultMaxPDF,
		MaxImageBytes: defaultMaxImage,
		HistoryLimit:  200,
		ExportTimeout: Duration{2 * time.Minute},
		RenderDPI:     150,
		RenderWorkers: 4,

		DownloadListen: "127.0.0.1:34115",
	}
}

// Path returns the config file location.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "qrstudio", "config.json")
}

// Load reads the config file (a missing file is not an error), applies env
// overrides and fills derived paths.
func Load() (Config, error) {
	return LoadFile(Path())
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	cfg.fillDerived()
	return cfg, cfg.Validate()
}

func (c *Config) fillDerived() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "qrstudio.db")
	}
	if c.ObjectStore.Root == "" {
		c.ObjectStore.Root = filepath.Join(c.DataDir, "assets")
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"QRSTUDIO_DATA_DIR":        &c.DataDir,
		"QRSTUDIO_DB_PATH":         &c.DBPath,
		"QRSTUDIO_CONVERT_URL":     &c.ConvertURL,
		"QRSTUDIO_CONVERT_API_KEY": &c.ConvertAPIKey,
		"QRSTUDIO_AUTH_URL":        &c.AuthURL,
		"QRSTUDIO_AUTH_CLIENT_ID":  &c.AuthClientID,
		"QRSTUDIO_OBJECT_STORE":    &c.ObjectStore.Backend,
		"QRSTUDIO_MONGO_URI":       &c.ObjectStore.MongoURI,
		"QRSTUDIO_CACHE":           &c.Cache.Backend,
		"QRSTUDIO_REDIS_ADDR":      &c.Cache.RedisAddr,
		"QRSTUDIO_REDIS_PW":        &c.Cache.RedisPW,
		"QRSTUDIO_DOWNLOAD_LISTEN": &c.DownloadListen,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"QRSTUDIO_HISTORY_LIMIT":  &c.HistoryLimit,
		"QRSTUDIO_RENDER_DPI":     &c.RenderDPI,
		"QRSTUDIO_RENDER_WORKERS": &c.RenderWorkers,
		"QRSTUDIO_REDIS_DB":       &c.Cache.RedisDB,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := getenv("QRSTUDIO_EXPORT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("QRSTUDIO_EXPORT_TIMEOUT: %w", err)
		}
		c.ExportTimeout = Duration{d}
	}
	return nil
}

// Validate rejects configurations the app cannot start with.
func (c Config) Validate() error {
	switch c.ObjectStore.Backend {
	case "local":
	case "gridfs":
		if c.ObjectStore.MongoURI == "" {
			return errors.New("object_store.mongo_uri is required for the gridfs backend")
		}
	default:
		return fmt.Errorf("unknown object_store.backend %q", c.ObjectStore.Backend)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	if c.MaxPDFBytes <= 0 || c.MaxImageBytes <= 0 {
		return errors.New("upload limits must be positive")
	}
	if c.HistoryLimit < 0 {
		return errors.New("history_limit must not be negative")
	}
	return nil
}
