package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrstudio/internal/auth"
	"qrstudio/internal/domain"
	"qrstudio/internal/objstore"
)

// ─────────────────────────────────────────────────────────────
// Upload Service: validated uploads of documents and images
// ─────────────────────────────────────────────────────────────

type UploadKind string

const (
	UploadPDF   UploadKind = "pdf"
	UploadImage UploadKind = "image"
)

// UploadInput describes one file handed over by the frontend.
type UploadInput struct {
	Kind        UploadKind
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type UploadResult struct {
	URL         string     `json:"url"`
	Path        string     `json:"path"`
	Kind        UploadKind `json:"kind"`
	Size        int64      `json:"size"`
	ContentType string     `json:"contentType"`
}

// SessionGuard runs an action with a valid signed-in session.
// *auth.Guard implements it.
type SessionGuard interface {
	Do(ctx context.Context, fn func(ctx context.Context, s *auth.Session) error) error
}

// UploadLimits are the largest accepted files per kind, in bytes.
type UploadLimits struct {
	PDF   int64
	Image int64
}

var (
	pdfTypes = map[string]string{".pdf": "application/pdf"}

	imageTypes = map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
		".webp": "image/webp",
		".svg":  "image/svg+xml",
	}
)

// publicPrefix is the alternate path convention tried once when the store
// rejects the user-namespaced path.
const publicPrefix = "public/"

type UploadService struct {
	store  objstore.Store
	guard  SessionGuard
	limits UploadLimits
	now    func() time.Time
}

func NewUploadService(store objstore.Store, guard SessionGuard, limits UploadLimits) *UploadService {
	return &UploadService{store: store, guard: guard, limits: limits, now: time.Now}
}

// Upload validates in, then stores it under <userID>/<unixmillis>-<random>.<ext>.
// Validation runs before the session check and before any storage call.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	ext, contentType, limit, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	// Read at most limit+1 bytes so a lying Size cannot get past the cap.
	data, err := io.ReadAll(io.LimitReader(in.Reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s is larger than %d MB", domain.ErrValidation, in.FileName, limit>>20)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrValidation, in.FileName)
	}

	var result *UploadResult
	err = s.guard.Do(ctx, func(ctx context.Context, sess *auth.Session) error {
		name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), randomSuffix(), ext)
		p := sess.UserID + "/" + name

		url, err := s.store.Put(ctx, p, bytes.NewReader(data), contentType)
		if errors.Is(err, domain.ErrAccessDenied) {
			log.Printf("[Upload] %s rejected by storage policy, retrying under %s", p, publicPrefix)
			p = publicPrefix + p
			url, err = s.store.Put(ctx, p, bytes.NewReader(data), contentType)
		}
		if err != nil {
			log.Printf("[Upload] store %s failed: %v", p, err)
			if errors.Is(err, domain.ErrStorage) {
				return err
			}
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		result = &UploadResult{URL: url, Path: p, Kind: in.Kind, Size: int64(len(data)), ContentType: contentType}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", in.FileName, err)
	}
	log.Printf("[Upload] stored %s (%d bytes)", result.Path, result.Size)
	return result, nil
}

func (s *UploadService) validate(in UploadInput) (ext, contentType string, limit int64, err error) {
	ext = strings.ToLower(filepath.Ext(in.FileName))
	var allowed map[string]string
	switch in.Kind {
	case UploadPDF:
		allowed, limit = pdfTypes, s.limits.PDF
	case UploadImage:
		allowed, limit = imageTypes, s.limits.Image
	default:
		return "", "", 0, fmt.Errorf("%w: unknown upload kind %q", domain.ErrValidation, in.Kind)
	}
	contentType, ok := allowed[ext]
	if !ok {
		return "", "", 0, fmt.Errorf("%w: %s files are not accepted as %s", domain.ErrValidation, ext, in.Kind)
	}
	if in.ContentType != "" && in.ContentType != "application/octet-stream" {
		declared, _, perr := mime.ParseMediaType(in.ContentType)
		if perr != nil || declared != contentType {
			return "", "", 0, fmt.Errorf("%w: content type %q does not match %s", domain.ErrValidation, in.ContentType, ext)
		}
	}
	if in.Reader == nil || in.Size <= 0 {
		return "", "", 0, fmt.Errorf("%w: %s is empty", domain.ErrValidation, in.FileName)
	}
	if limit > 0 && in.Size > limit {
		return "", "", 0, fmt.Errorf("%w: %s is larger than %d MB", domain.ErrValidation, in.FileName, limit>>20)
	}
	if limit <= 0 {
		limit = in.Size
	}
	return ext, contentType, limit, nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
