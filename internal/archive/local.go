package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local writes snapshots under a base directory on the local
// filesystem.
type Local struct {
	baseDir string
	now     func() time.Time
}

// NewLocal creates a filesystem-backed archiver rooted at baseDir,
// creating the directory when missing.
func NewLocal(baseDir string) (*Local, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create archive directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat archive directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("archive path %q is not a directory", baseDir)
	}
	return &Local{baseDir: baseDir, now: time.Now}, nil
}

// Save writes the snapshot to disk and returns a file:// URI.
func (a *Local) Save(_ context.Context, target, sourceURL string, body []byte) (string, error) {
	rel := objectName("", target, sourceURL, a.now())
	full := filepath.Join(a.baseDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(filepath.Clean(full), filepath.Clean(a.baseDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("snapshot path %q escapes archive directory", rel)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.WriteFile(full, body, 0o640); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return "file://" + full, nil
}
