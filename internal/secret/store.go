package secret

import (
	"path/filepath"
	"runtime"
)

// SecretStore keeps sensitive values out of the sqlite database: the auth
// refresh token and passwords of external databases used for campaign
// imports.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// Open returns the Keychain store on macOS and an encrypted file store in
// dataDir elsewhere.
func Open(dataDir string) (SecretStore, error) {
	if runtime.GOOS == "darwin" {
		return NewKeychainStore(), nil
	}
	return NewFileStore(filepath.Join(dataDir, "secrets"))
}
