package core

import (
	"container/list"
	"fmt"
)

// MeasurementDeduper implements two-tier deduplication for the measurement
// feed. NATS delivers at-least-once, so a redelivered publication must not
// append a second event to the log.
type MeasurementDeduper struct {
	// Tier 1: In-memory LRU
	lru *dedupLRU

	// Tier 2: event log lookup (injected via interface)
	dbChecker DBDedupChecker
}

// DBDedupChecker is the interface for the event-log dedup lookup
type DBDedupChecker interface {
	IsDuplicate(eventType string, idempotencyKey string) (bool, error)
}

func NewMeasurementDeduper(capacity int, dbChecker DBDedupChecker) *MeasurementDeduper {
	return &MeasurementDeduper{
		lru:       newDedupLRU(capacity),
		dbChecker: dbChecker,
	}
}

// IsDuplicate checks whether the publication has been processed (two-tier lookup)
func (md *MeasurementDeduper) IsDuplicate(eventType string, idempotencyKey string) bool {
	compositeKey := fmt.Sprintf("%s:%s", eventType, idempotencyKey)

	// Tier 1: LRU check (hot path)
	if md.lru.contains(compositeKey) {
		return true
	}

	// Tier 2: event log check (cold path)
	if md.dbChecker != nil {
		isDup, err := md.dbChecker.IsDuplicate(eventType, idempotencyKey)
		if err != nil {
			// Conservative: a DB issue must not block the feed, assume new
			return false
		}
		if isDup {
			md.lru.add(compositeKey)
			return true
		}
	}

	return false
}

// MarkProcessed adds the key to the LRU after the publication commits
func (md *MeasurementDeduper) MarkProcessed(eventType string, idempotencyKey string) {
	compositeKey := fmt.Sprintf("%s:%s", eventType, idempotencyKey)
	md.lru.add(compositeKey)
}

// Warm loads recent composite keys from a snapshot into the LRU so that
// redeliveries right after a restart skip the cold path.
func (md *MeasurementDeduper) Warm(keys []string) {
	for _, key := range keys {
		md.lru.add(key)
	}
}

// Keys returns all cached composite keys for snapshotting.
func (md *MeasurementDeduper) Keys() []string {
	return md.lru.keys()
}

// --- LRU Implementation ---

// dedupLRU is an LRU cache for idempotency keys.
// Not thread-safe — only accessed from the single-threaded engine.
type dedupLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
}

type lruEntry struct {
	key string
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

func (lru *dedupLRU) contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

func (lru *dedupLRU) add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *dedupLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
	}
}

func (lru *dedupLRU) keys() []string {
	out := make([]string, 0, lru.lruList.Len())
	for elem := lru.lruList.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*lruEntry).key)
	}
	return out
}
