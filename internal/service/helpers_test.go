package service_test

import (
	"path/filepath"
	"testing"

	"qrstudio/internal/objstore"
	"qrstudio/internal/storage"
)

func newDB(t *testing.T) *storage.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "qrstudio.db"), dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newObjects(t *testing.T, writable ...string) *objstore.LocalStore {
	t.Helper()
	s, err := objstore.NewLocalStore(filepath.Join(t.TempDir(), "assets"), "http://127.0.0.1:34115/files",
		objstore.Policy{WritablePrefixes: writable})
	if err != nil {
		t.Fatal(err)
	}
	return s
}
