// Package tempdir manages scoped working directories for jobs: unique
// creation, best-effort cleanup with a delayed retry, and a startup sweep of
// abandoned directories.
package tempdir

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Kira7dn/video-create/internal/logger"
)

// Manager creates and removes job temp directories under Root.
type Manager struct {
	Root           string
	Prefix         string
	DelayedCleanup time.Duration
	SweepAge       time.Duration
}

// NewManager builds a Manager rooted at the OS temp dir.
func NewManager(prefix string, delayedCleanup, sweepAge time.Duration) *Manager {
	return &Manager{
		Root:           os.TempDir(),
		Prefix:         prefix,
		DelayedCleanup: delayedCleanup,
		SweepAge:       sweepAge,
	}
}

// Create makes a fresh unique directory and returns its path.
func (m *Manager) Create() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	path := filepath.Join(m.Root, m.Prefix+hex.EncodeToString(b))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("creating temp dir %s: %w", path, err)
	}
	return path, nil
}

// Cleanup removes the directory. A failed removal schedules one delayed
// retry in the background and returns without error.
func (m *Manager) Cleanup(path string) {
	if path == "" || !strings.HasPrefix(filepath.Base(path), m.Prefix) {
		return
	}
	if err := os.RemoveAll(path); err == nil {
		return
	} else {
		logger.Warn("temp dir removal failed, scheduling retry",
			"path", path, "retry_in", m.DelayedCleanup, "error", err)
	}
	go func() {
		time.Sleep(m.DelayedCleanup)
		if err := os.RemoveAll(path); err != nil {
			logger.Error("delayed temp dir removal failed", "path", path, "error", err)
		}
	}()
}

// Sweep removes prefix-matching directories older than SweepAge. Run once at
// startup to reclaim space left by crashed processes.
func (m *Manager) Sweep() {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		logger.Warn("temp sweep skipped", "root", m.Root, "error", err)
		return
	}
	cutoff := time.Now().Add(-m.SweepAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), m.Prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.Root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("sweep removal failed, scheduling retry", "path", path, "error", err)
			m.Cleanup(path)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("swept stale temp dirs", "count", removed)
	}
}
