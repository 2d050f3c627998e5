package cache

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Entry describes one downloaded media file.
type Entry struct {
	Path      string    `json:"path"`
	FetchedAt time.Time `json:"fetched_at"`
	Size      int64     `json:"size"`
	// ContentType as reported by the server, if any.
	ContentType string `json:"content_type,omitempty"`
}

type MediaCache struct {
	MaxEntries int
	Entries    map[string]Entry `json:"entries"`
	lock       sync.Mutex
}

// New returns a MediaCache that indexes up to maxEntries files.
//
// Set maxEntries to zero for an unbounded cache.
func New(maxEntries int) *MediaCache {
	return &MediaCache{
		MaxEntries: maxEntries,
		Entries:    make(map[string]Entry),
	}
}

// Import a MediaCache using data in r.
// The data should previously have been generated using [MediaCache.Export].
func Import(r io.Reader) (*MediaCache, error) {
	var cache MediaCache
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&cache); err != nil {
		return nil, err
	}
	if cache.Entries == nil {
		cache.Entries = make(map[string]Entry)
	}
	return &cache, nil
}

// ImportFromFile reads a MediaCache from disk.
func ImportFromFile(filename string) (*MediaCache, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes a serialized MediaCache to w.
func (c *MediaCache) Export(w io.Writer) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return json.NewEncoder(w).Encode(c)
}

// ExportToFile writes a MediaCache to disk.
func (c *MediaCache) ExportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	return c.Export(file)
}

// Update records entry for uri and returns the entries evicted to make room for it. The caller
// should delete the evicted files.
func (c *MediaCache) Update(uri string, entry Entry) []Entry {
	c.lock.Lock()
	defer c.lock.Unlock()

	var evicted []Entry
	if previous, ok := c.Entries[uri]; ok && previous.Path != entry.Path {
		evicted = append(evicted, previous)
	}
	c.Entries[uri] = entry
	for c.MaxEntries > 0 && len(c.Entries) > c.MaxEntries {
		oldestURI := uri
		oldestFetchTime := time.Now()
		for u, e := range c.Entries {
			if e.FetchedAt.Before(oldestFetchTime) {
				oldestURI = u
				oldestFetchTime = e.FetchedAt
			}
		}
		evicted = append(evicted, c.Entries[oldestURI])
		delete(c.Entries, oldestURI)
	}
	return evicted
}

// Remove drops the entry for uri, e.g. because its file disappeared.
func (c *MediaCache) Remove(uri string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.Entries, uri)
}

// GetEntry returns the entry recorded for uri.
func (c *MediaCache) GetEntry(uri string) (Entry, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	entry, ok := c.Entries[uri]
	return entry, ok
}
