package cache

import (
	"sync"
	"time"
)

// CachedExpansion is the printed output of one pure macro expansion
type CachedExpansion struct {
	Key         string
	Macro       string
	Text        string
	Hits        int
	CachedAt    time.Time
	LastChecked time.Time
}

// ExpansionCache keeps expansion output in memory for the lifetime of the
// process, so watch mode and multi-file runs skip repeated pure expansions.
type ExpansionCache struct {
	entries map[string]*CachedExpansion
	hits    int
	misses  int
	mu      sync.RWMutex
}

// NewExpansionCache creates an empty expansion cache
func NewExpansionCache() *ExpansionCache {
	return &ExpansionCache{
		entries: make(map[string]*CachedExpansion),
	}
}

// Get retrieves an expansion by key and counts the lookup
func (ec *ExpansionCache) Get(key string) (*CachedExpansion, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	entry, exists := ec.entries[key]
	if !exists {
		ec.misses++
		return nil, false
	}
	ec.hits++
	entry.Hits++
	entry.LastChecked = time.Now()
	return entry, true
}

// Set stores the printed expansion for key
func (ec *ExpansionCache) Set(key, macro, text string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := time.Now()
	ec.entries[key] = &CachedExpansion{
		Key:         key,
		Macro:       macro,
		Text:        text,
		CachedAt:    now,
		LastChecked: now,
	}
}

// Invalidate removes an entry from the cache
func (ec *ExpansionCache) Invalidate(key string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	delete(ec.entries, key)
}

// InvalidateMacro removes every entry produced by macro, used when a macro
// definition is replaced
func (ec *ExpansionCache) InvalidateMacro(macro string) int {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	removed := 0
	for key, entry := range ec.entries {
		if entry.Macro == macro {
			delete(ec.entries, key)
			removed++
		}
	}
	return removed
}

// InvalidateAll clears the entire cache
func (ec *ExpansionCache) InvalidateAll() {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.entries = make(map[string]*CachedExpansion)
	ec.hits, ec.misses = 0, 0
}

// Size returns the number of cached entries
func (ec *ExpansionCache) Size() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	return len(ec.entries)
}

// Stats returns the hit and miss counts since the last InvalidateAll
func (ec *ExpansionCache) Stats() (hits, misses int) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	return ec.hits, ec.misses
}

// Prune removes entries that haven't been used in the given duration
func (ec *ExpansionCache) Prune(maxAge time.Duration) int {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := time.Now()
	pruned := 0

	for key, entry := range ec.entries {
		if now.Sub(entry.LastChecked) > maxAge {
			delete(ec.entries, key)
			pruned++
		}
	}

	return pruned
}
