package app

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"qrstudio/internal/auth"
	"qrstudio/internal/domain"
	"qrstudio/internal/service"
)

// ============================================================
// Account
// ============================================================

// UserView is the signed-in user as the frontend sees it (no tokens).
type UserView struct {
	UserID    string `json:"userId"`
	SignedIn  bool   `json:"signedIn"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func userView(s *auth.Session) UserView {
	if s == nil {
		return UserView{}
	}
	return UserView{UserID: s.UserID, SignedIn: true, ExpiresAt: s.ExpiresAt.Format(time.RFC3339)}
}

func (a *App) SignIn(email, password string) (u UserView, err error) {
	err = a.bound("sign in", true, func() error {
		s, err := a.authc.SignIn(a.ctx, email, password)
		if err != nil {
			return err
		}
		if err := a.guard.SetSession(s); err != nil {
			return err
		}
		u = userView(s)
		return nil
	})
	return u, err
}

func (a *App) SignOut() error {
	return a.bound("sign out", false, a.guard.SignOut)
}

func (a *App) CurrentUser() UserView {
	return userView(a.guard.Current())
}

// ============================================================
// Uploads
// ============================================================

// PickAndUpload opens a native file picker and uploads the chosen file.
// An empty result with no error means the user cancelled.
func (a *App) PickAndUpload(kind string) (res *service.UploadResult, err error) {
	filters := []wailsRuntime.FileFilter{{DisplayName: "PDF Documents", Pattern: "*.pdf"}}
	if service.UploadKind(kind) == service.UploadImage {
		filters = []wailsRuntime.FileFilter{{DisplayName: "Images", Pattern: "*.png;*.jpg;*.jpeg;*.gif;*.webp;*.svg"}}
	}
	path, err := wailsRuntime.OpenFileDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title:   "Select File",
		Filters: filters,
	})
	if err != nil || path == "" {
		return nil, err
	}

	err = a.bound("upload", true, func() error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", filepath.Base(path), err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", filepath.Base(path), err)
		}
		res, err = a.uploads.Upload(a.ctx, service.UploadInput{
			Kind:     service.UploadKind(kind),
			FileName: filepath.Base(path),
			Size:     info.Size(),
			Reader:   f,
		})
		return err
	})
	return res, err
}

// UploadDataURL uploads a file the webview already holds, e.g. a pasted or
// dropped image, given as a base64 data URL.
func (a *App) UploadDataURL(kind, fileName, dataURL string) (res *service.UploadResult, err error) {
	err = a.bound("upload", true, func() error {
		header, payload, ok := strings.Cut(dataURL, ",")
		if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
			return fmt.Errorf("%w: not a base64 data URL", domain.ErrValidation)
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return fmt.Errorf("%w: decode data URL: %v", domain.ErrValidation, err)
		}
		res, err = a.uploads.Upload(a.ctx, service.UploadInput{
			Kind:        service.UploadKind(kind),
			FileName:    fileName,
			ContentType: strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"),
			Size:        int64(len(data)),
			Reader:      bytes.NewReader(data),
		})
		return err
	})
	return res, err
}
