// Package snapshot reads the append-only raw snapshot tables written by the
// extraction layer. The transform never mutates them.
package snapshot

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Raw is one captured API response.
type Raw struct {
	ID            int64
	TenantID      string
	ApplicationID string
	Endpoint      string
	Payload       json.RawMessage
	LoadedAt      time.Time
}

// Source loads every snapshot stored in a raw table.
type Source interface {
	Load(ctx context.Context, table string) ([]Raw, error)
}

// MemorySource is a Source backed by in-process slices, used for dry runs
// over fixture files and in tests.
type MemorySource struct {
	mu     sync.RWMutex
	tables map[string][]Raw
	nextID int64
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{tables: make(map[string][]Raw)}
}

// Add appends snapshots to table. Snapshots without an ID are numbered in
// insertion order, mirroring a BIGSERIAL column.
func (m *MemorySource) Add(table string, raws ...Raw) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range raws {
		if r.ID == 0 {
			m.nextID++
			r.ID = m.nextID
		} else if r.ID > m.nextID {
			m.nextID = r.ID
		}
		m.tables[table] = append(m.tables[table], r)
	}
}

func (m *MemorySource) Load(ctx context.Context, table string) ([]Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Raw, len(m.tables[table]))
	copy(out, m.tables[table])
	return out, nil
}
