// Package objstore stores uploaded files (source PDFs, images, rendered
// pages) and hands out the public URL each one is served under.
package objstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"qrstudio/internal/config"
	"qrstudio/internal/domain"
)

// Store is an object store addressed by slash-separated paths.
type Store interface {
	Put(ctx context.Context, path string, r io.Reader, contentType string) (string, error)
	Get(ctx context.Context, path string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

var reservedPrefixes = []string{"admin/", ".", "_"}

// Policy decides which paths may be written.
type Policy struct {
	WritablePrefixes []string
}

// CleanPath normalizes p and rejects traversal, absolute paths and reserved
// prefixes with ErrAccessDenied.
func CleanPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", domain.ErrValidation)
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", domain.ErrAccessDenied, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", domain.ErrAccessDenied, p)
		}
	}
	clean := path.Clean(p)
	for _, r := range reservedPrefixes {
		if strings.HasPrefix(clean, r) {
			return "", fmt.Errorf("%w: reserved path %q", domain.ErrAccessDenied, p)
		}
	}
	return clean, nil
}

// CheckWrite applies CleanPath and the writable prefixes.
func (p Policy) CheckWrite(raw string) (string, error) {
	clean, err := CleanPath(raw)
	if err != nil {
		return "", err
	}
	if len(p.WritablePrefixes) == 0 {
		return clean, nil
	}
	for _, prefix := range p.WritablePrefixes {
		if strings.HasPrefix(clean, prefix) {
			return clean, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not writable", domain.ErrAccessDenied, raw)
}

func publicURL(base, p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segs, "/")
}

// Open builds the backend named in the config. Public URLs are rooted at
// baseURL, normally the local download server.
func Open(ctx context.Context, conf config.ObjectStoreConf, baseURL string) (Store, error) {
	policy := Policy{WritablePrefixes: conf.WritablePrefixes}
	switch conf.Backend {
	case "", "local":
		return NewLocalStore(conf.Root, baseURL, policy)
	case "gridfs":
		return NewGridFSStore(ctx, conf.MongoURI, conf.Database, conf.Bucket, baseURL, policy)
	default:
		return nil, fmt.Errorf("unknown object store backend %q", conf.Backend)
	}
}
