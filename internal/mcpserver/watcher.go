package mcpserver

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"cortex/internal/logging"
	"cortex/internal/transcript"
)

// transcriptCache keeps the most recently written non-agent transcript
// path warm via an fsnotify watch on the host's transcript directory, so
// repeated "latest transcript" queries during a session avoid rescanning
// the directory on every call.
type transcriptCache struct {
	mu      sync.RWMutex
	dir     string
	latest  string
	watcher *fsnotify.Watcher
}

// newTranscriptCache seeds the cache with a directory scan and, if the
// directory exists, starts an fsnotify watch to keep it current. A
// directory that does not exist yet (no sessions recorded) degrades to a
// cache that always reports "" — never an error.
func newTranscriptCache(dir string) *transcriptCache {
	c := &transcriptCache{dir: dir, latest: transcript.FindLatestTranscript(dir)}
	if dir == "" {
		return c
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logging.MCPError("failed to create transcript watcher: %v", err)
		return c
	}
	if err := w.Add(dir); err != nil {
		// Directory doesn't exist yet; fall back to polling on each query.
		_ = w.Close()
		return c
	}
	c.watcher = w
	go c.watchLoop()
	return c
}

func (c *transcriptCache) watchLoop() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(ev)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			logging.MCPError("transcript watcher error: %v", err)
		}
	}
}

func (c *transcriptCache) handleEvent(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".jsonl") || strings.Contains(ev.Name, "-agent-") {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	c.mu.Lock()
	c.latest = ev.Name
	c.mu.Unlock()
}

// Latest returns the cached latest transcript path, falling back to a
// fresh directory scan if the watcher was never established.
func (c *transcriptCache) Latest() string {
	c.mu.RLock()
	cached := c.latest
	watching := c.watcher != nil
	c.mu.RUnlock()
	if watching {
		return cached
	}
	return transcript.FindLatestTranscript(c.dir)
}

func (c *transcriptCache) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}
