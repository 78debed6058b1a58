// Package cache memoizes backend output keyed by an xxhash of the source
// text, the configuration fingerprint and the requested output kind.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
)

type Key uint64

func (k Key) String() string { return fmt.Sprintf("%016x", uint64(k)) }

// KeyOf hashes every part in order. Parts are length prefixed so that
// ("ab", "c") and ("a", "bc") produce different keys.
func KeyOf(parts ...string) Key {
	h := xxhash.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.WriteString(p)
	}
	return Key(h.Sum64())
}

type Stats struct {
	Hits   int
	Misses int
	Writes int
}

// Cache is safe for concurrent use. When Dir is set entries are also
// persisted there, one file per key.
type Cache struct {
	mu    sync.Mutex
	dir   string
	mem   map[Key][]byte
	stats Stats
}

func New(dir string) *Cache {
	return &Cache{dir: dir, mem: make(map[Key][]byte)}
}

func (c *Cache) path(k Key) string { return filepath.Join(c.dir, k.String()+".out") }

func (c *Cache) Get(k Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.mem[k]; ok {
		c.stats.Hits++
		return data, true
	}
	if c.dir != "" {
		if data, err := os.ReadFile(c.path(k)); err == nil {
			c.mem[k] = data
			c.stats.Hits++
			return data, true
		}
	}
	c.stats.Misses++
	return nil, false
}

// Put stores data under k. The disk copy is written to a temporary file
// and renamed into place so readers never observe a partial entry.
func (c *Cache) Put(k Key, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[k] = data
	c.stats.Writes++
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", c.dir, err)
	}
	tmp, err := os.CreateTemp(c.dir, "entry-*")
	if err != nil {
		return fmt.Errorf("failed to create cache entry: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path(k))
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
