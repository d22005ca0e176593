package detect

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// dedupeCache suppresses repeat alerts keyed by constructed strings.
// Bounded so a long run cannot leak: old keys fall out of the LRU instead
// of accumulating forever.
type dedupeCache struct {
	keys *lru.Cache[string, struct{}]
}

func newDedupeCache(size int) *dedupeCache {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, struct{}](size)
	return &dedupeCache{keys: c}
}

// Seen records key and reports whether it was already present.
func (d *dedupeCache) Seen(key string) bool {
	if _, ok := d.keys.Get(key); ok {
		return true
	}
	d.keys.Add(key, struct{}{})
	return false
}
