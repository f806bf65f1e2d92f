// Package service wires the ledger, content validation, the budget kernel
// and scoring into the operations a front end calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Mindburn-Labs/deedchain/pkg/budget"
	"github.com/Mindburn-Labs/deedchain/pkg/deed"
	"github.com/Mindburn-Labs/deedchain/pkg/ledger"
	"github.com/Mindburn-Labs/deedchain/pkg/scoring"
	"github.com/Mindburn-Labs/deedchain/pkg/validator"
)

// ErrRateLimited is returned when an actor submits faster than allowed.
var ErrRateLimited = errors.New("service: append rate limit exceeded")

var tracer = otel.Tracer("deedchain/service")

// Config tunes the service. Zero AppendRPS disables rate limiting.
type Config struct {
	Rules       []validator.Rule
	AppendRPS   float64
	AppendBurst int
}

// Service is safe for concurrent use.
type Service struct {
	chain   *ledger.Chain
	kernel  *budget.Kernel
	engine  *scoring.Engine
	content *validator.ContentValidator
	limiter *actorLimiter
	clock   func() time.Time
	logger  *slog.Logger
}

// New builds a service. kernel may be nil when admission is handled
// elsewhere; engine defaults to scoring.Default().
func New(chain *ledger.Chain, kernel *budget.Kernel, engine *scoring.Engine, cfg Config) (*Service, error) {
	if chain == nil {
		return nil, fmt.Errorf("service: chain is required")
	}
	content, err := validator.NewContentValidator(cfg.Rules)
	if err != nil {
		return nil, err
	}
	if engine == nil {
		engine = scoring.Default()
	}
	return &Service{
		chain:   chain,
		kernel:  kernel,
		engine:  engine,
		content: content,
		limiter: newActorLimiter(cfg.AppendRPS, cfg.AppendBurst),
		clock:   time.Now,
		logger:  slog.Default().With("component", "service"),
	}, nil
}

// WithClock overrides clock for testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Draft assigns an id and timestamp to in. Keep the draft to retry Submit
// after an I/O failure without creating a second record.
func (s *Service) Draft(in deed.Intent) (deed.Draft, error) {
	return deed.NewDraft(in, s.clock())
}

// Submit drafts and submits in.
func (s *Service) Submit(ctx context.Context, in deed.Intent, bio *validator.Bioload) (deed.Record, error) {
	d, err := s.Draft(in)
	if err != nil {
		return deed.Record{}, err
	}
	return s.SubmitDraft(ctx, d, bio)
}

// SubmitDraft runs the content gate, then the actor's rate limit, then
// appends. Nothing reaches the chain unless both pass.
func (s *Service) SubmitDraft(ctx context.Context, d deed.Draft, bio *validator.Bioload) (deed.Record, error) {
	ctx, span := tracer.Start(ctx, "service.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("deed.id", d.ID), attribute.String("deed.category", string(d.Category)))

	if err := s.content.Check(ctx, d, bio); err != nil {
		span.SetStatus(codes.Error, "rejected")
		s.logger.InfoContext(ctx, "submission rejected", "id", d.ID, "actor", d.ActorID, "error", err)
		return deed.Record{}, err
	}
	// A retry of a committed draft replays the record and costs no token.
	if _, committed := s.chain.Get(d.ID); !committed && !s.limiter.allow(d.ActorID, s.clock()) {
		span.SetStatus(codes.Error, "rate limited")
		s.logger.WarnContext(ctx, "submission rate limited", "actor", d.ActorID)
		return deed.Record{}, fmt.Errorf("%w: actor %s", ErrRateLimited, d.ActorID)
	}
	r, err := s.chain.Append(ctx, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return deed.Record{}, err
	}
	return r, nil
}

// Admit forwards to the budget kernel.
func (s *Service) Admit(ctx context.Context, subject, route string, demand budget.Envelope) (*budget.Receipt, error) {
	if s.kernel == nil {
		return nil, fmt.Errorf("%w: no budget kernel configured", budget.ErrNoPolicy)
	}
	return s.kernel.CheckAndCommit(ctx, subject, route, demand)
}

// Verify checks the whole committed chain, content first.
func (s *Service) Verify() error {
	return validator.ValidateLedger(s.chain.Records())
}

// Report is an actor's advisory standing.
type Report struct {
	ActorID        string                 `json:"actor_id"`
	Counts         scoring.Counts         `json:"counts"`
	Vector         scoring.Vector         `json:"vector"`
	Recommendation scoring.Recommendation `json:"recommendation"`
	Deeds          []scoring.Advisory     `json:"deeds"`
}

// Reputation recomputes actorID's standing from the chain as it is now.
// An actor id starting with "did:" counts as DID-bound.
func (s *Service) Reputation(ctx context.Context, actorID string, aux scoring.Signals) Report {
	_, span := tracer.Start(ctx, "service.Reputation")
	defer span.End()

	records := s.chain.ByActor(actorID)
	aux.DIDBound = aux.DIDBound || strings.HasPrefix(actorID, "did:")

	counts := scoring.Count(records, aux)
	vec := s.engine.FromCounts(counts, aux)
	rep := Report{
		ActorID:        actorID,
		Counts:         counts,
		Vector:         vec,
		Recommendation: s.engine.Recommend(vec),
		Deeds:          make([]scoring.Advisory, 0, len(records)),
	}
	for _, r := range records {
		rep.Deeds = append(rep.Deeds, s.engine.DeedAdvisory(r))
	}
	span.SetAttributes(attribute.Int("deed.count", len(records)), attribute.String("recommendation", string(rep.Recommendation)))
	return rep
}
