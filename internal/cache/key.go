package cache

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// keyFileName is the name of the per-installation HMAC key file under
// cache_dir.
const keyFileName = "hmac.key"

// keySize is the minimum acceptable HMAC key length (≥32 bytes).
const keySize = 32

// loadOrCreateKey reads the per-installation HMAC key, generating and
// persisting a new one (with owner-only permissions) if absent or
// unreadable. A missing or corrupt key file forces full cache
// invalidation, since every existing hmac_tag was computed with the key
// that is now gone.
func loadOrCreateKey(cacheDir string) (key []byte, regenerated bool, err error) {
	path := filepath.Join(cacheDir, keyFileName)

	existing, err := os.ReadFile(path)
	if err == nil && len(existing) >= keySize {
		return existing, false, nil
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generating HMAC key: %w", err)
	}

	if err := writeKeyFile(path, key); err != nil {
		return nil, false, fmt.Errorf("persisting HMAC key: %w", err)
	}

	return key, true, nil
}

// writeKeyFile writes key to path with the strictest permissions the
// platform offers, then locks them down further via restrictKeyFile
//.
func writeKeyFile(path string, key []byte) error {
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return err
	}
	return restrictKeyFile(path)
}
