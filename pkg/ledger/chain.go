// Package ledger is the durable, append-only, hash-chained store of deed
// records.
//
// A Chain admits a single writer at a time: appends serialize on one write
// lock, so concurrent appenders agree on a single total order when assigning
// prev_hash. Readers never wait on backend I/O; they observe the chain either
// before or fully after an in-flight append.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

var tracer = otel.Tracer("deedchain/ledger")

// Chain is the in-process view of a durable record sequence.
type Chain struct {
	backend Backend
	logger  *slog.Logger
	clock   func() time.Time

	// writeMu serializes appends, including the backend write.
	writeMu sync.Mutex

	// mu guards the committed view below. It is never held across I/O.
	mu      sync.RWMutex
	records []deed.Record
	byID    map[string]int
	tail    string
}

// Open loads every committed record from backend. It does not validate the
// chain; use validator.ValidateChain on Records() for that.
func Open(ctx context.Context, backend Backend) (*Chain, error) {
	records, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	c := &Chain{
		backend: backend,
		logger:  slog.Default().With("component", "ledger"),
		clock:   time.Now,
		records: records,
		byID:    make(map[string]int, len(records)),
		tail:    deed.GenesisHash,
	}
	for i, r := range records {
		c.byID[r.ID] = i
	}
	if n := len(records); n > 0 {
		c.tail = records[n-1].SelfHash
	}
	c.logger.DebugContext(ctx, "chain opened", "length", len(records), "tail", c.tail)
	return c, nil
}

// WithClock overrides the clock used by AppendIntent.
func (c *Chain) WithClock(clock func() time.Time) *Chain {
	c.clock = clock
	return c
}

// TailHash returns the self hash of the last committed record, or the
// genesis sentinel when the chain is empty.
func (c *Chain) TailHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tail
}

// Len returns the number of committed records.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// AppendIntent drafts in with a fresh id and timestamp and appends it.
// Callers that may retry on ErrIOFailure should use NewDraft + Append so the
// retry carries the same id and timestamp.
func (c *Chain) AppendIntent(ctx context.Context, in deed.Intent) (deed.Record, error) {
	d, err := deed.NewDraft(in, c.clock())
	if err != nil {
		return deed.Record{}, err
	}
	return c.Append(ctx, d)
}

// Append links d to the current tail, persists it durably and only then
// returns the committed record.
//
// Appending a draft whose id is already committed returns the committed
// record unchanged, so a retry after an ambiguous failure cannot produce a
// second record for the same intent.
func (c *Chain) Append(ctx context.Context, d deed.Draft) (deed.Record, error) {
	ctx, span := tracer.Start(ctx, "ledger.Append")
	defer span.End()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	idx, seen := c.byID[d.ID]
	var existing deed.Record
	if seen {
		existing = c.records[idx].Clone()
	}
	prev := c.tail
	c.mu.RUnlock()

	if seen {
		again, err := deed.New(d, existing.PrevHash)
		if err != nil {
			return deed.Record{}, err
		}
		if again.SelfHash != existing.SelfHash {
			return deed.Record{}, fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
		}
		span.SetAttributes(attribute.Bool("deed.replayed", true))
		return existing, nil
	}

	r, err := deed.New(d, prev)
	if err != nil {
		return deed.Record{}, err
	}
	span.SetAttributes(
		attribute.String("deed.id", r.ID),
		attribute.String("deed.category", string(r.Category)),
	)

	if err := c.backend.Append(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		c.logger.ErrorContext(ctx, "append failed", "id", r.ID, "error", err)
		return deed.Record{}, err
	}

	c.mu.Lock()
	c.byID[r.ID] = len(c.records)
	c.records = append(c.records, r)
	c.tail = r.SelfHash
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "deed appended", "id", r.ID, "actor", r.ActorID, "self_hash", r.SelfHash)
	return r.Clone(), nil
}

// Records returns a consistent copy of every committed record in order.
func (c *Chain) Records() []deed.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.records)
}

// Segment returns a copy of committed records [from, to).
func (c *Chain) Segment(from, to int) ([]deed.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if from < 0 || to > len(c.records) || from > to {
		return nil, fmt.Errorf("ledger: segment [%d,%d) out of range 0..%d", from, to, len(c.records))
	}
	return cloneAll(c.records[from:to]), nil
}

// Get returns the committed record with id.
func (c *Chain) Get(id string) (deed.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return deed.Record{}, false
	}
	return c.records[i].Clone(), true
}

// ByActor returns every record whose actor is actorID, in chain order.
func (c *Chain) ByActor(actorID string) []deed.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]deed.Record, 0)
	for _, r := range c.records {
		if r.ActorID == actorID {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Close releases the backend.
func (c *Chain) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.backend.Close()
}

func cloneAll(in []deed.Record) []deed.Record {
	out := make([]deed.Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
