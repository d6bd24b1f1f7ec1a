// Package cache keeps recently computed feature sequences in memory, keyed by
// file content so renamed or copied files still hit.
package cache

import (
	"container/list"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/OneOfOne/xxhash"

	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/features"
)

// Key identifies a sequence by content hash and extractor configuration.
type Key struct {
	Hash      uint64
	Signature string
}

func (k Key) String() string {
	return fmt.Sprintf("%016x/%s", k.Hash, k.Signature)
}

// KeyForFile hashes the bytes of path with xxhash64.
func KeyForFile(path, signature string) (Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return Key{}, err
	}
	defer f.Close()

	h := xxhash.New64()
	if _, err := io.Copy(h, f); err != nil {
		return Key{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return Key{Hash: h.Sum64(), Signature: signature}, nil
}

type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
}

// Cache is an LRU of feature sequences. Stored sequences are shared with
// callers and must not be modified.
type Cache struct {
	capacity int

	mu    sync.Mutex
	items map[Key]*list.Element
	lru   *list.List
	stats Stats
}

type entry struct {
	key   Key
	value features.Sequence
}

// New returns a cache holding at most capacity sequences. A capacity below 1
// is treated as 1.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[Key]*list.Element),
		lru:      list.New(),
	}
}

func (c *Cache) Get(key Key) (features.Sequence, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		c.stats.Hits++
		return elem.Value.(*entry).value, true
	}
	c.stats.Misses++
	return nil, false
}

// Put stores seq under key, evicting the least recently used entry when full.
func (c *Cache) Put(key Key, seq features.Sequence) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*entry).value = seq
		return
	}

	c.items[key] = c.lru.PushFront(&entry{key: key, value: seq})

	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
			c.stats.Evictions++
		}
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.lru.Len()
	s.Capacity = c.capacity
	return s
}

// Purge drops every entry. Counters are kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[Key]*list.Element)
	c.lru.Init()
}
