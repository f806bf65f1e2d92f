package ledger

import (
	"context"
	"sync"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

// Backend is durable append-only storage for committed records.
//
// Append must not return until the record is flushed to durable storage.
// Load returns committed records in append order and ignores a trailing
// incomplete unit.
type Backend interface {
	Load(ctx context.Context) ([]deed.Record, error)
	Append(ctx context.Context, r deed.Record) error
	Close() error
}

// MemoryBackend keeps records in process memory. Useful for tests and for
// ephemeral chains.
type MemoryBackend struct {
	mu      sync.Mutex
	records [][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load(ctx context.Context) ([]deed.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]deed.Record, 0, len(m.records))
	for _, b := range m.records {
		r, err := deed.Decode(b)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryBackend) Append(ctx context.Context, r deed.Record) error {
	b, err := deed.Encode(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, b)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
