package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var baseDir = "./data/spool"

// SavePreview stores the rendered headers of one recipient on disk and
// returns the file path. The recipient address is hashed so that spool file
// names do not leak it.
func SavePreview(jobID, queueID int64, to string, data []byte) (string, error) {
	if jobID < 0 || queueID < 0 {
		return "", errors.New("invalid identifier")
	}
	recipientToken := hashRecipient(to)

	dir := filepath.Join(baseDir, time.Now().UTC().Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.eml",
		strconv.FormatInt(jobID, 10), strconv.FormatInt(queueID, 10), recipientToken))
	payload := append([]byte(nil), data...)
	if err := os.WriteFile(filename, payload, 0o600); err != nil {
		return "", err
	}
	return filename, nil
}

// SetBaseDir allows overriding the storage location (useful for tests or configuration).
func SetBaseDir(dir string) {
	baseDir = dir
}

// BaseDir returns the current spool location.
func BaseDir() string {
	return baseDir
}

func hashRecipient(addr string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(addr))))
	return hex.EncodeToString(sum[:8])
}
