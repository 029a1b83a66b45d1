package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	baseDir = "./data/deadletter"
)

// Record is the on-disk form of a job that failed for good.
type Record struct {
	ID          string         `json:"id"`
	Destination string         `json:"destination"`
	Payload     string         `json:"payload"`
	Options     map[string]any `json:"options,omitempty"`
	Priority    int            `json:"priority"`
	Attempts    int            `json:"attempts"`
	CreatedAt   time.Time      `json:"created_at"`
	FailedAt    time.Time      `json:"failed_at"`
	Error       string         `json:"error"`
}

// SaveDeadLetter writes rec under a per-day directory so failed
// notifications can be inspected or replayed by hand.
func SaveDeadLetter(rec Record) (string, error) {
	safeID, err := sanitizeComponent(rec.ID)
	if err != nil {
		return "", err
	}
	if rec.FailedAt.IsZero() {
		rec.FailedAt = time.Now().UTC()
	}
	destToken := hashDestination(rec.Destination)

	dir := filepath.Join(BaseDir(), rec.FailedAt.UTC().Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode record %s: %w", safeID, err)
	}
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s.json", safeID, destToken))
	if err := os.WriteFile(filename, payload, 0o600); err != nil {
		return "", err
	}
	return filename, nil
}

// ReadDeadLetter loads a record written by SaveDeadLetter.
func ReadDeadLetter(path string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", path, err)
	}
	return rec, nil
}

// SetBaseDir allows overriding the storage location (useful for tests or configuration).
func SetBaseDir(dir string) {
	mu.Lock()
	baseDir = dir
	mu.Unlock()
}

// BaseDir returns the current storage location.
func BaseDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return baseDir
}

func sanitizeComponent(v string) (string, error) {
	if strings.ContainsAny(v, "/\\") || strings.Contains(v, "..") {
		return "", errors.New("invalid identifier")
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errors.New("empty identifier")
	}
	return v, nil
}

// hashDestination keeps chat ids out of file names.
func hashDestination(dest string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(dest))))
	return hex.EncodeToString(sum[:8])
}
