package archive

import (
	"context"
	"sync"
	"time"
)

// Memory keeps snapshots in a map. Test double for the Archiver
// interface.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
	now   func() time.Time
}

// NewMemory creates an empty in-memory archiver.
func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[string][]byte),
		now:   time.Now,
	}
}

// Save records the snapshot and returns a mem:// URI.
func (a *Memory) Save(_ context.Context, target, sourceURL string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	path := objectName("", target, sourceURL, a.now())
	a.blobs[path] = append([]byte(nil), body...)
	return "mem://" + path, nil
}

// Len reports the number of stored snapshots.
func (a *Memory) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blobs)
}
