package storage

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"go.uber.org/zap"
)

var unsafeDirChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// LocalWorkspace implements port.Workspace with per-job temp directories
type LocalWorkspace struct {
	root   string
	logger *zap.Logger
}

// NewLocalWorkspace creates a workspace below root
func NewLocalWorkspace(root string, logger *zap.Logger) *LocalWorkspace {
	return &LocalWorkspace{root: root, logger: logger}
}

// Acquire creates a fresh directory for jobID. release is idempotent.
func (w *LocalWorkspace) Acquire(ctx context.Context, jobID string) (string, func(), error) {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	dir, err := os.MkdirTemp(w.root, SanitizeName(jobID)+"-")
	if err != nil {
		w.logger.Error("Failed to create job workspace",
			zap.String("job_id", jobID),
			zap.Error(err))
		return "", nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := os.RemoveAll(dir); err != nil {
			w.logger.Error("Failed to remove job workspace",
				zap.String("dir", dir),
				zap.Error(err))
		}
	}

	w.logger.Debug("Acquired job workspace",
		zap.String("job_id", jobID),
		zap.String("dir", dir))

	return dir, release, nil
}

// SanitizeName keeps only alphanumerics, hyphens and underscores
func SanitizeName(name string) string {
	name = unsafeDirChars.ReplaceAllString(name, "")
	if name == "" {
		return "job"
	}
	return name
}
