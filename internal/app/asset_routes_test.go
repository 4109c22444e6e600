package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"qrstudio/internal/objstore"
)

func newAssetStore(t *testing.T) *objstore.LocalStore {
	t.Helper()
	s, err := objstore.NewLocalStore(filepath.Join(t.TempDir(), "assets"), "http://127.0.0.1:34115/files", objstore.Policy{})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAssetRoutes_ServesStoredObject(t *testing.T) {
	store := newAssetStore(t)
	url, err := store.Put(context.Background(), "user-1/code.png", strings.NewReader("png-bytes"), "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if url != "http://127.0.0.1:34115/files/user-1/code.png" {
		t.Fatalf("url = %s", url)
	}

	srv := httptest.NewServer(assetRouter(store))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/files/user-1/code.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "png-bytes" {
		t.Fatalf("status %d body %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
}

func TestAssetRoutes_Errors(t *testing.T) {
	srv := httptest.NewServer(assetRouter(newAssetStore(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/files/user-1/missing.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing: status %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/files/user-1/x.png", "image/png", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("post: status %d", resp.StatusCode)
	}
}

func TestFilesBaseURL(t *testing.T) {
	if got := filesBaseURL("127.0.0.1:34115"); got != "http://127.0.0.1:34115/files" {
		t.Errorf("got %s", got)
	}
	if got := filesBaseURL("https://assets.example.com/"); got != "https://assets.example.com/files" {
		t.Errorf("got %s", got)
	}
}
