package jobstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
	seq       uint64
}

// memoryBackend is the in-process fallback. The map has no native expiry, so
// reads skip expired entries and purgeExpired removes them by active scan.
type memoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nextSeq uint64
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{entries: make(map[string]memoryEntry)}
}

func (b *memoryBackend) save(_ context.Context, key string, payload []byte, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.nextSeq
	if existing, ok := b.entries[key]; ok {
		seq = existing.seq
	} else {
		b.nextSeq++
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.entries[key] = memoryEntry{payload: cp, expiresAt: expiresAt, seq: seq}
	return nil
}

func (b *memoryBackend) get(_ context.Context, key string, now time.Time) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		delete(b.entries, key)
		return nil, false, nil
	}
	cp := make([]byte, len(entry.payload))
	copy(cp, entry.payload)
	return cp, true, nil
}

func (b *memoryBackend) remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *memoryBackend) loadAll(_ context.Context, prefix string, now time.Time) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	type seqPayload struct {
		seq     uint64
		payload []byte
	}
	live := make([]seqPayload, 0, len(b.entries))
	for key, entry := range b.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if now.After(entry.expiresAt) {
			delete(b.entries, key)
			continue
		}
		cp := make([]byte, len(entry.payload))
		copy(cp, entry.payload)
		live = append(live, seqPayload{seq: entry.seq, payload: cp})
	}
	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })

	payloads := make([][]byte, len(live))
	for i, item := range live {
		payloads[i] = item.payload
	}
	return payloads, nil
}

func (b *memoryBackend) purgeExpired(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	purged := 0
	for key, entry := range b.entries {
		if now.After(entry.expiresAt) {
			delete(b.entries, key)
			purged++
		}
	}
	return purged, nil
}

func (b *memoryBackend) close() error { return nil }
