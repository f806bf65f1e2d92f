package budget

import (
	"context"
	"sync"
)

// UsageStore holds per-subject running usage for the current window.
//
// Apply serializes per subject: check sees the subject's current usage and,
// if it returns nil, demand is added before any other Apply for the same
// subject observes usage. If check returns an error, usage is unchanged and
// that error is returned as is.
type UsageStore interface {
	Apply(ctx context.Context, subject string, demand Envelope, check func(current Envelope) error) (Envelope, error)
	Usage(ctx context.Context, subject string) (Envelope, error)
	Reset(ctx context.Context, subject string) error
	ResetAll(ctx context.Context) error
}

type subjectUsage struct {
	mu    sync.Mutex
	usage Envelope
}

// MemoryUsageStore keeps usage in process memory with one lock per subject,
// so unrelated subjects never contend.
type MemoryUsageStore struct {
	subjects sync.Map // string -> *subjectUsage
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{}
}

func (s *MemoryUsageStore) entry(subject string) *subjectUsage {
	if v, ok := s.subjects.Load(subject); ok {
		return v.(*subjectUsage)
	}
	v, _ := s.subjects.LoadOrStore(subject, &subjectUsage{usage: Envelope{}})
	return v.(*subjectUsage)
}

func (s *MemoryUsageStore) Apply(ctx context.Context, subject string, demand Envelope, check func(current Envelope) error) (Envelope, error) {
	e := s.entry(subject)
	e.mu.Lock()
	defer e.mu.Unlock()

	if check != nil {
		if err := check(e.usage.Clone()); err != nil {
			return nil, err
		}
	}
	for dim, v := range demand {
		e.usage[dim] += v
	}
	return e.usage.Clone(), nil
}

func (s *MemoryUsageStore) Usage(ctx context.Context, subject string) (Envelope, error) {
	v, ok := s.subjects.Load(subject)
	if !ok {
		return Envelope{}, nil
	}
	e := v.(*subjectUsage)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usage.Clone(), nil
}

func (s *MemoryUsageStore) Reset(ctx context.Context, subject string) error {
	v, ok := s.subjects.Load(subject)
	if !ok {
		return nil
	}
	e := v.(*subjectUsage)
	e.mu.Lock()
	e.usage = Envelope{}
	e.mu.Unlock()
	return nil
}

func (s *MemoryUsageStore) ResetAll(ctx context.Context) error {
	s.subjects.Range(func(_, v any) bool {
		e := v.(*subjectUsage)
		e.mu.Lock()
		e.usage = Envelope{}
		e.mu.Unlock()
		return true
	})
	return nil
}
