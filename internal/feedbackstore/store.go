// Package feedbackstore keeps device tokens reported by the feedback service
// so callers can stop sending to them.
package feedbackstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/pushgate/internal/protocol/wire"
)

// Entry is one unreachable device token. Timestamp is when the feedback
// service saw the app removed; HarvestedAt is when we read it.
type Entry struct {
	Token       string    `json:"token"`
	Timestamp   time.Time `json:"timestamp"`
	HarvestedAt time.Time `json:"harvested_at"`
}

type Store interface {
	// Put upserts records by token, keeping the newest timestamp.
	Put(ctx context.Context, records []wire.FeedbackRecord) error
	// List returns entries newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Entry, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemory() Store {
	return &memoryStore{entries: make(map[string]Entry), now: time.Now}
}

func (m *memoryStore) Put(ctx context.Context, records []wire.FeedbackRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	harvested := m.now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		key := r.Token.String()
		if cur, ok := m.entries[key]; ok && cur.Timestamp.After(r.Timestamp) {
			continue
		}
		m.entries[key] = Entry{Token: key, Timestamp: r.Timestamp.UTC(), HarvestedAt: harvested}
	}
	return nil
}

func (m *memoryStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Token < out[j].Token
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *memoryStore) Close() error {
	return nil
}
