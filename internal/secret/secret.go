// Package secret resolves the shared HMAC secret used for token signing.
package secret

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvVar overrides all other sources when set.
const EnvVar = "SWEETLINK_SECRET"

// MinLength rejects secrets too short to resist brute force.
const MinLength = 32

// DefaultPath returns the conventional on-disk secret location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate home directory: %w", err)
	}
	return filepath.Join(home, ".sweetlink", "secret"), nil
}

// Resolve returns the shared secret: from the environment, then from the
// file at path (DefaultPath when empty), else freshly generated and
// persisted with restrictive permissions.
func Resolve(path string) (string, error) {
	if s := os.Getenv(EnvVar); s != "" {
		return validate(s)
	}

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return "", err
		}
	}

	if data, err := os.ReadFile(path); err == nil {
		return validate(strings.TrimSpace(string(data)))
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}

	generated, err := generate()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create secret directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(generated+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to persist secret: %w", err)
	}
	return generated, nil
}

func validate(s string) (string, error) {
	if len(s) < MinLength {
		return "", fmt.Errorf("secret is too weak: need at least %d characters, got %d", MinLength, len(s))
	}
	return s, nil
}

func generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
