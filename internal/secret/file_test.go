package secret

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTripAndPersistence(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if v, err := s.Get("missing"); err != nil || v != nil {
		t.Fatalf("missing = %q, %v", v, err)
	}
	if err := s.Set("auth.refresh", []byte("rt-123")); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	v, err := reopened.Get("auth.refresh")
	if err != nil || string(v) != "rt-123" {
		t.Fatalf("get = %q, %v", v, err)
	}

	raw, _ := os.ReadFile(filepath.Join(dir, valuesFile))
	if bytes.Contains(raw, []byte("rt-123")) {
		t.Error("secret stored in plaintext")
	}

	if err := reopened.Delete("auth.refresh"); err != nil {
		t.Fatal(err)
	}
	if v, _ := reopened.Get("auth.refresh"); v != nil {
		t.Errorf("after delete = %q", v)
	}
}

func TestFileStore_SwappedValuesFail(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	s.Set("a", []byte("alpha"))
	s.Set("b", []byte("bravo"))

	path := filepath.Join(dir, valuesFile)
	raw, _ := os.ReadFile(path)
	values := map[string]string{}
	json.Unmarshal(raw, &values)
	values["a"], values["b"] = values["b"], values["a"]
	raw, _ = json.Marshal(values)
	os.WriteFile(path, raw, 0o600)

	if _, err := s.Get("a"); err == nil {
		t.Error("value moved to another key decrypted without error")
	}
}
