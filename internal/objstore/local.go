package objstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"

	"qrstudio/internal/domain"
)

// LocalStore keeps objects as files under Root. The content type is kept in
// a sidecar "<name>.meta" file.
type LocalStore struct {
	Root    string
	BaseURL string
	Policy  Policy
}

var _ Store = (*LocalStore)(nil)

type localMeta struct {
	ContentType string `json:"contentType"`
}

func NewLocalStore(root, baseURL string, policy Policy) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &LocalStore{Root: root, BaseURL: baseURL, Policy: policy}, nil
}

func (s *LocalStore) Put(ctx context.Context, p string, r io.Reader, contentType string) (string, error) {
	clean, err := s.Policy.CheckWrite(p)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.Root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, contextReader{ctx, r}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write %s: %v", domain.ErrStorage, clean, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(full))
	}
	meta, _ := json.Marshal(localMeta{ContentType: contentType})
	if err := os.WriteFile(full+".meta", meta, 0o644); err != nil {
		log.Printf("[Upload] write meta for %s: %v", clean, err)
	}
	return s.URL(clean), nil
}

func (s *LocalStore) Get(_ context.Context, p string) (io.ReadCloser, string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, "", err
	}
	full := filepath.Join(s.Root, filepath.FromSlash(clean))
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("open %s: %w", clean, domain.ErrNotFound)
		}
		return nil, "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(full))
	if b, err := os.ReadFile(full + ".meta"); err == nil {
		var m localMeta
		if json.Unmarshal(b, &m) == nil && m.ContentType != "" {
			contentType = m.ContentType
		}
	}
	return f, contentType, nil
}

func (s *LocalStore) Delete(_ context.Context, p string) error {
	clean, err := s.Policy.CheckWrite(p)
	if err != nil {
		return err
	}
	full := filepath.Join(s.Root, filepath.FromSlash(clean))
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", clean, domain.ErrNotFound)
		}
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	os.Remove(full + ".meta")
	return nil
}

func (s *LocalStore) URL(p string) string { return publicURL(s.BaseURL, p) }

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
