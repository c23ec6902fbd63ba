// Package archive stores raw page snapshots for pages that failed
// parsing, so selector regressions can be diagnosed against the exact
// markup that broke. Snapshots are write-only from the pipeline's
// point of view; nothing in the run path ever reads one back.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Archiver persists one page snapshot and returns its location URI.
type Archiver interface {
	Save(ctx context.Context, target, sourceURL string, body []byte) (string, error)
}

// NoOp discards snapshots. Used when no archive is configured.
type NoOp struct{}

// Save discards the snapshot and returns an empty URI.
func (NoOp) Save(context.Context, string, string, []byte) (string, error) {
	return "", nil
}

// objectName derives a collision-free snapshot path from the target
// name, a URL digest, and the capture time.
func objectName(prefix, target, sourceURL string, now time.Time) string {
	sum := sha256.Sum256([]byte(sourceURL))
	name := fmt.Sprintf("%s/%s/%s.html", target, now.UTC().Format("2006-01-02T15-04-05"), hex.EncodeToString(sum[:8]))
	if prefix != "" {
		return prefix + "/" + name
	}
	return name
}
