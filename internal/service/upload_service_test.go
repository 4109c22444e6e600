package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"qrstudio/internal/auth"
	"qrstudio/internal/domain"
	"qrstudio/internal/objstore"
	"qrstudio/internal/service"
)

var limits = service.UploadLimits{PDF: 50 << 20, Image: 5 << 20}

type countingGuard struct {
	calls   int
	session *auth.Session
}

func (g *countingGuard) Do(ctx context.Context, fn func(ctx context.Context, s *auth.Session) error) error {
	g.calls++
	if g.session == nil {
		return domain.ErrUnauthenticated
	}
	return fn(ctx, g.session)
}

type countingStore struct {
	objstore.Store
	puts int
}

func (c *countingStore) Put(ctx context.Context, p string, r io.Reader, contentType string) (string, error) {
	c.puts++
	return c.Store.Put(ctx, p, r, contentType)
}

func signedIn() *countingGuard {
	return &countingGuard{session: &auth.Session{UserID: "user-1", AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}}
}

func pdfInput(size int) service.UploadInput {
	return service.UploadInput{
		Kind:        service.UploadPDF,
		FileName:    "Menu.PDF",
		ContentType: "application/pdf",
		Size:        int64(size),
		Reader:      bytes.NewReader(bytes.Repeat([]byte("%"), size)),
	}
}

func TestUpload_OversizeRejectedBeforeAnySideEffect(t *testing.T) {
	guard := signedIn()
	store := &countingStore{Store: newObjects(t)}
	svc := service.NewUploadService(store, guard, limits)

	in := pdfInput(10)
	in.Size = 51 << 20
	_, err := svc.Upload(context.Background(), in)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if guard.calls != 0 || store.puts != 0 {
		t.Errorf("guard calls = %d, puts = %d", guard.calls, store.puts)
	}

	img := service.UploadInput{Kind: service.UploadImage, FileName: "logo.png", ContentType: "image/png", Size: 6 << 20, Reader: strings.NewReader("x")}
	if _, err := svc.Upload(context.Background(), img); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("image err = %v", err)
	}
}

func TestUpload_LyingSizeStillCapped(t *testing.T) {
	store := &countingStore{Store: newObjects(t)}
	svc := service.NewUploadService(store, signedIn(), service.UploadLimits{PDF: 100, Image: 100})

	in := pdfInput(500)
	in.Size = 10
	if _, err := svc.Upload(context.Background(), in); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if store.puts != 0 {
		t.Errorf("puts = %d", store.puts)
	}
}

func TestUpload_TypeChecks(t *testing.T) {
	svc := service.NewUploadService(newObjects(t), signedIn(), limits)
	cases := []service.UploadInput{
		{Kind: service.UploadPDF, FileName: "menu.docx", Size: 3, Reader: strings.NewReader("abc")},
		{Kind: service.UploadPDF, FileName: "menu.pdf", ContentType: "text/html", Size: 3, Reader: strings.NewReader("abc")},
		{Kind: service.UploadImage, FileName: "menu.pdf", Size: 3, Reader: strings.NewReader("abc")},
		{Kind: "video", FileName: "a.mp4", Size: 3, Reader: strings.NewReader("abc")},
		{Kind: service.UploadPDF, FileName: "empty.pdf", Size: 0, Reader: strings.NewReader("")},
	}
	for _, in := range cases {
		if _, err := svc.Upload(context.Background(), in); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s as %s: err = %v", in.FileName, in.Kind, err)
		}
	}
}

func TestUpload_PathConvention(t *testing.T) {
	svc := service.NewUploadService(newObjects(t), signedIn(), limits)
	res, err := svc.Upload(context.Background(), pdfInput(2048))
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^user-1/\d{13}-[0-9a-f]{12}\.pdf$`).MatchString(res.Path) {
		t.Errorf("path = %q", res.Path)
	}
	if res.Size != 2048 || res.ContentType != "application/pdf" || !strings.HasSuffix(res.URL, res.Path) {
		t.Errorf("result = %+v", res)
	}
}

func TestUpload_RetriesUnderPublicPrefix(t *testing.T) {
	store := &countingStore{Store: newObjects(t, "public/")}
	svc := service.NewUploadService(store, signedIn(), limits)

	res, err := svc.Upload(context.Background(), pdfInput(64))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.Path, "public/user-1/") || store.puts != 2 {
		t.Errorf("path = %q after %d puts", res.Path, store.puts)
	}
}

func TestUpload_StorageFailureAfterRetry(t *testing.T) {
	store := &countingStore{Store: newObjects(t, "somewhere-else/")}
	svc := service.NewUploadService(store, signedIn(), limits)

	_, err := svc.Upload(context.Background(), pdfInput(64))
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("err = %v", err)
	}
	if store.puts != 2 {
		t.Errorf("puts = %d, want 2", store.puts)
	}
	if n := domain.NotificationFor(err); n.Title != "Upload failed" {
		t.Errorf("notification = %+v", n)
	}
}

func TestUpload_RequiresSession(t *testing.T) {
	store := &countingStore{Store: newObjects(t)}
	svc := service.NewUploadService(store, auth.NewGuard(nil, nil), limits)

	_, err := svc.Upload(context.Background(), pdfInput(64))
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("err = %v", err)
	}
	if store.puts != 0 {
		t.Errorf("puts = %d", store.puts)
	}
}
