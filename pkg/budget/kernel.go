package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Receipt records one successful admission.
type Receipt struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	Route         string    `json:"route"`
	Demand        Envelope  `json:"demand"`
	Usage         Envelope  `json:"usage"`
	PolicyVersion string    `json:"policy_version"`
	Timestamp     time.Time `json:"timestamp"`
}

// Kernel is the admission gate. It is safe for concurrent use; construct one
// per process and share it by reference.
type Kernel struct {
	policy    atomic.Pointer[snapshot]
	store     UsageStore
	risk      RiskSource
	viability Viability
	clock     func() time.Time
	logger    *slog.Logger

	decisions metric.Int64Counter
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithRiskSource sets the live risk indicator checked first on every request.
func WithRiskSource(r RiskSource) Option {
	return func(k *Kernel) { k.risk = r }
}

// WithViability sets the external viability predicate.
func WithViability(v Viability) Option {
	return func(k *Kernel) { k.viability = v }
}

// WithStore replaces the in-memory usage store.
func WithStore(s UsageStore) Option {
	return func(k *Kernel) { k.store = s }
}

// NewKernel creates a kernel enforcing p.
func NewKernel(p *Policy, opts ...Option) (*Kernel, error) {
	snap, err := newSnapshot(p)
	if err != nil {
		return nil, err
	}
	k := &Kernel{
		store:  NewMemoryUsageStore(),
		clock:  time.Now,
		logger: slog.Default().With("component", "budget"),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.policy.Store(snap)

	k.decisions, err = otel.Meter("deedchain/budget").Int64Counter("deedchain.budget.decisions",
		metric.WithDescription("Admission decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		k.logger.Warn("failed to create decisions counter", "error", err)
	}
	return k, nil
}

// WithClock overrides clock for testing.
func (k *Kernel) WithClock(clock func() time.Time) *Kernel {
	k.clock = clock
	return k
}

// Policy returns a copy of the current policy snapshot.
func (k *Kernel) Policy() *Policy {
	return k.policy.Load().policy.Clone()
}

// Reload atomically replaces the policy. Requests already past their policy
// read finish against the old snapshot. A lower version is refused.
func (k *Kernel) Reload(p *Policy) error {
	next, err := newSnapshot(p)
	if err != nil {
		return err
	}
	for {
		cur := k.policy.Load()
		if next.version.LessThan(cur.version) {
			return fmt.Errorf("%w: %s < %s", ErrPolicyDowngrade, next.version, cur.version)
		}
		if k.policy.CompareAndSwap(cur, next) {
			k.logger.Info("policy reloaded", "from", cur.version.String(), "to", next.version.String())
			return nil
		}
	}
}

// CheckAndCommit admits demand for subject on route or rejects it with an
// *Error. Checks run in a fixed order: risk cap, ceiling, governed route,
// minimum guarantee, viability. Usage changes only on admission.
func (k *Kernel) CheckAndCommit(ctx context.Context, subject, route string, demand Envelope) (*Receipt, error) {
	if err := demand.Validate(); err != nil {
		return nil, err
	}
	snap := k.policy.Load()
	reject := func(kind Kind) *Error {
		return &Error{Kind: kind, Subject: subject, Route: route}
	}

	// 1. Live risk against the fixed cap.
	if k.risk != nil {
		risk, err := k.risk.CurrentRisk(ctx)
		if err != nil {
			e := reject(SafetyCeilingBreach)
			e.Err = fmt.Errorf("risk source: %w", err)
			return nil, k.rejected(ctx, e)
		}
		if math.IsNaN(risk) || risk > snap.riskCap {
			e := reject(SafetyCeilingBreach)
			e.Value, e.Limit = risk, snap.riskCap
			return nil, k.rejected(ctx, e)
		}
	}

	// 2-3. Effective ceiling, per dimension in fixed order.
	ceiling := snap.ceilingFor(route)
	for _, dim := range Dimensions(demand) {
		limit, constrained := ceiling[dim]
		if constrained && demand[dim] > limit {
			e := reject(CeilingExceeded)
			e.Dimension, e.Value, e.Limit = dim, demand[dim], limit
			return nil, k.rejected(ctx, e)
		}
	}

	// 4. Governed routes go to elevated approval, never auto-admit.
	if _, governed := snap.governed[route]; governed {
		return nil, k.rejected(ctx, reject(GovernedRouteBlocked))
	}

	// Stores may retry check under contention; the predicate runs at most
	// once per request and only after step 5 has passed.
	var (
		viabilityDone bool
		viable        bool
		viabilityErr  error
	)

	minimum := snap.policy.Minimums[subject]
	usage, err := k.store.Apply(ctx, subject, demand, func(current Envelope) error {
		// 5. Minimum guarantee.
		for _, dim := range Dimensions(minimum) {
			floor := minimum[dim]
			total := current[dim] + demand[dim]
			if total >= floor {
				continue
			}
			if limit, constrained := ceiling[dim]; constrained && limit < floor {
				e := reject(BelowMinimumGuarantee)
				e.Dimension, e.Value, e.Limit = dim, total, floor
				return e
			}
		}
		// 6. Viability.
		if !viabilityDone {
			viable, viabilityErr = k.admissible(ctx, snap, demand)
			viabilityDone = true
		}
		if !viable {
			e := reject(ViabilityRejected)
			e.Err = viabilityErr
			return e
		}
		return nil
	})
	if err != nil {
		if KindOf(err) != "" {
			return nil, k.rejected(ctx, err)
		}
		k.logger.ErrorContext(ctx, "usage store failed", "subject", subject, "route", route, "error", err)
		k.count(ctx, "error", "")
		return nil, err
	}

	// 7. Committed.
	k.count(ctx, "admitted", "")
	return &Receipt{
		ID:            uuid.New().String(),
		Subject:       subject,
		Route:         route,
		Demand:        demand.Clone(),
		Usage:         usage,
		PolicyVersion: snap.policy.Version,
		Timestamp:     k.clock().UTC(),
	}, nil
}

func (k *Kernel) admissible(ctx context.Context, snap *snapshot, demand Envelope) (bool, error) {
	for _, v := range []Viability{k.viability, snap.viability} {
		if v == nil {
			continue
		}
		ok, err := v.Admissible(ctx, demand.Clone())
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (k *Kernel) rejected(ctx context.Context, err error) error {
	var be *Error
	if errors.As(err, &be) {
		k.logger.InfoContext(ctx, "admission rejected",
			"subject", be.Subject, "route", be.Route, "kind", string(be.Kind), "dimension", be.Dimension)
	}
	k.count(ctx, "rejected", KindOf(err))
	return err
}

func (k *Kernel) count(ctx context.Context, outcome string, kind Kind) {
	if k.decisions == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if kind != "" {
		attrs = append(attrs, attribute.String("kind", string(kind)))
	}
	k.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Usage returns subject's committed usage in the current window.
func (k *Kernel) Usage(ctx context.Context, subject string) (Envelope, error) {
	return k.store.Usage(ctx, subject)
}

// ResetWindow clears subject's usage. The kernel never calls this itself.
func (k *Kernel) ResetWindow(ctx context.Context, subject string) error {
	if err := k.store.Reset(ctx, subject); err != nil {
		return err
	}
	k.logger.InfoContext(ctx, "window reset", "subject", subject)
	return nil
}

// ResetAllWindows clears every subject's usage.
func (k *Kernel) ResetAllWindows(ctx context.Context) error {
	if err := k.store.ResetAll(ctx); err != nil {
		return err
	}
	k.logger.InfoContext(ctx, "window reset", "subject", "*")
	return nil
}
