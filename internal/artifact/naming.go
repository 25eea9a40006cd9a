package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	filePrefix      = "meeting_recording_"
	timestampLayout = "20060102_150405"
)

// Namer hands out recording paths derived from the start timestamp. A path
// is never handed out twice, even when two recordings start within the
// same second.
type Namer struct {
	dir string

	mu   sync.Mutex
	used map[string]struct{}
}

func NewNamer(dir string) *Namer {
	if dir == "" {
		dir = "recordings"
	}
	return &Namer{dir: dir, used: make(map[string]struct{})}
}

// Dir returns the output directory.
func (n *Namer) Dir() string { return n.dir }

// Next reserves a path for a recording started at t.
func (n *Namer) Next(t time.Time) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	base := filePrefix + t.Format(timestampLayout)
	candidate := filepath.Join(n.dir, base+".wav")
	for suffix := 1; n.taken(candidate); suffix++ {
		candidate = filepath.Join(n.dir, fmt.Sprintf("%s_%d.wav", base, suffix))
	}
	n.used[candidate] = struct{}{}
	return candidate
}

func (n *Namer) taken(path string) bool {
	if _, ok := n.used[path]; ok {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}
