package refresh

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// fileFingerprint returns the hex-encoded SHA-256 of the file at path.
// The artifact is opaque bytes; no attempt is made to parse it.
func fileFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
