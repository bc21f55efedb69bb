package querycache

import (
	"sort"
	"time"
)

type entry struct {
	key         string
	value       any
	createdAt   time.Time
	expiresAt   time.Time
	lastAccess  time.Time
	tags        map[string]struct{}
	accessCount uint64
	size        int
}

// expiredAt reports whether the entry is stale at now. expiresAt itself is stale.
func (e *entry) expiredAt(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

func (e *entry) info(now time.Time) EntryInfo {
	tags := make([]string, 0, len(e.tags))
	for t := range e.tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return EntryInfo{
		Key:         e.key,
		Value:       e.value,
		CreatedAt:   e.createdAt,
		ExpiresAt:   e.expiresAt,
		LastAccess:  e.lastAccess,
		Tags:        tags,
		AccessCount: e.accessCount,
		SizeBytes:   e.size,
		Expired:     e.expiredAt(now),
	}
}

// EntryInfo is a read-only snapshot of a cache entry, for monitoring.
type EntryInfo struct {
	Key         string    `json:"key"`
	Value       any       `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	LastAccess  time.Time `json:"last_access"`
	Tags        []string  `json:"tags"`
	AccessCount uint64    `json:"access_count"`
	SizeBytes   int       `json:"size_bytes"`
	Expired     bool      `json:"expired"`
}

// Stats holds cumulative cache counters.
//
// Misses include lookups that found an expired entry; those are also counted in
// Expired. Evictions only count capacity-driven removals.
type Stats struct {
	Size        int     `json:"size"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   uint64  `json:"evictions"`
	Expired     uint64  `json:"expired"`
	MemoryBytes int64   `json:"memory_bytes"`
}
