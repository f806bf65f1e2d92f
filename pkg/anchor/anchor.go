// Package anchor publishes Merkle roots of chain segments to external
// storage so third parties can later check that a segment existed unchanged.
package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

// ErrNotFound is returned by a Sink when a key does not exist.
var ErrNotFound = errors.New("anchor: not found")

// Sink is write-once object storage for anchor documents.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}

// Anchor commits to records [From, To) of a chain.
type Anchor struct {
	ID        string    `json:"id"`
	From      int       `json:"from"`
	To        int       `json:"to"`
	Root      string    `json:"root"`
	TailHash  string    `json:"tail_hash"`
	RecordIDs []string  `json:"record_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// Key is the object key the anchor is stored under.
func (a Anchor) Key() string {
	return fmt.Sprintf("anchor-%010d-%010d-%s.json", a.From, a.To, a.Root[:16])
}

// Publisher builds anchors and writes them to a sink.
type Publisher struct {
	sink   Sink
	clock  func() time.Time
	logger *slog.Logger
}

func NewPublisher(sink Sink) *Publisher {
	return &Publisher{
		sink:   sink,
		clock:  time.Now,
		logger: slog.Default().With("component", "anchor"),
	}
}

// WithClock overrides clock for testing.
func (p *Publisher) WithClock(clock func() time.Time) *Publisher {
	p.clock = clock
	return p
}

// Build computes the anchor for segment, which starts at chain index from.
func (p *Publisher) Build(segment []deed.Record, from int) (Anchor, error) {
	root, err := Root(segment)
	if err != nil {
		return Anchor{}, err
	}
	ids := make([]string, len(segment))
	for i, r := range segment {
		ids[i] = r.ID
	}
	return Anchor{
		ID:        uuid.New().String(),
		From:      from,
		To:        from + len(segment),
		Root:      root,
		TailHash:  segment[len(segment)-1].SelfHash,
		RecordIDs: ids,
		CreatedAt: p.clock().UTC(),
	}, nil
}

// Publish builds and stores the anchor for segment.
func (p *Publisher) Publish(ctx context.Context, segment []deed.Record, from int) (Anchor, error) {
	a, err := p.Build(segment, from)
	if err != nil {
		return Anchor{}, err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return Anchor{}, fmt.Errorf("anchor: encode: %w", err)
	}
	if err := p.sink.Put(ctx, a.Key(), data); err != nil {
		return Anchor{}, fmt.Errorf("anchor: publish %s: %w", a.Key(), err)
	}
	p.logger.InfoContext(ctx, "anchor published", "key", a.Key(), "from", a.From, "to", a.To, "root", a.Root)
	return a, nil
}

// Anchored reads every anchor from the sink and returns the ids of records
// whose anchor root still matches the given chain. Anchors that no longer
// match are skipped and logged.
func (p *Publisher) Anchored(ctx context.Context, chain []deed.Record) (map[string]bool, error) {
	keys, err := p.sink.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("anchor: list: %w", err)
	}
	out := make(map[string]bool)
	for _, key := range keys {
		data, err := p.sink.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("anchor: get %s: %w", key, err)
		}
		var a Anchor
		if err := json.Unmarshal(data, &a); err != nil {
			p.logger.WarnContext(ctx, "skipping unreadable anchor", "key", key, "error", err)
			continue
		}
		if err := Verify(a, chain); err != nil {
			p.logger.WarnContext(ctx, "skipping anchor that does not match chain", "key", key, "error", err)
			continue
		}
		for _, id := range a.RecordIDs {
			out[id] = true
		}
	}
	return out, nil
}

// Verify recomputes a's root over the matching chain segment.
func Verify(a Anchor, chain []deed.Record) error {
	if a.From < 0 || a.To > len(chain) || a.From >= a.To {
		return fmt.Errorf("anchor: segment [%d,%d) outside chain of %d", a.From, a.To, len(chain))
	}
	segment := chain[a.From:a.To]
	root, err := Root(segment)
	if err != nil {
		return err
	}
	if root != a.Root {
		return fmt.Errorf("anchor: root mismatch for [%d,%d): have %s, anchored %s", a.From, a.To, root, a.Root)
	}
	if len(a.RecordIDs) != len(segment) {
		return fmt.Errorf("anchor: %d record ids for %d records", len(a.RecordIDs), len(segment))
	}
	for i, r := range segment {
		if a.RecordIDs[i] != r.ID {
			return fmt.Errorf("anchor: record %d is %s, anchored %s", a.From+i, r.ID, a.RecordIDs[i])
		}
	}
	return nil
}
