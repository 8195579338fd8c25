// Package router resolves follow-up questions against conversation memory and
// dispatches each classification to the matching flight collaborator.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/scttfrdmn/travelrouter/inquiry"
	"github.com/scttfrdmn/travelrouter/middleware"
	"github.com/scttfrdmn/travelrouter/observability"
)

// Collaborator names used in failures, metrics and breaker names.
const (
	CollaboratorStatus    = inquiry.CollaboratorStatus
	CollaboratorAnalytics = inquiry.CollaboratorAnalytics
)

// DefaultCollaboratorTimeout bounds each collaborator call.
const DefaultCollaboratorTimeout = 10 * time.Second

// Memory is the session conversation the router reads and appends to.
type Memory interface {
	Turns(ctx context.Context) ([]inquiry.Turn, error)
	Append(ctx context.Context, turn inquiry.Turn) error
}

// Config configures a Router.
type Config struct {
	Status    inquiry.FlightStatusProvider
	Analytics inquiry.FlightAnalyticsProvider

	// CollaboratorTimeout bounds each provider call.
	// Default: 10s
	CollaboratorTimeout time.Duration

	// Breaker configures the per-collaborator circuit breakers. IsFailure is
	// always set by the router.
	Breaker middleware.CircuitBreakerConfig

	Recorder *observability.Recorder
	Logger   *slog.Logger

	// Now stamps appended turns. Default: time.Now
	Now func() time.Time
}

// Router turns a classification into an AgentResult and records the turn.
type Router struct {
	status    inquiry.FlightStatusProvider
	analytics inquiry.FlightAnalyticsProvider

	statusTimeout    *middleware.Timeout
	analyticsTimeout *middleware.Timeout
	statusBreaker    *middleware.CircuitBreaker
	analyticsBreaker *middleware.CircuitBreaker

	recorder *observability.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Router. Both providers are required.
func New(cfg Config) (*Router, error) {
	if cfg.Status == nil {
		return nil, errors.New("router: flight status provider is required")
	}
	if cfg.Analytics == nil {
		return nil, errors.New("router: flight analytics provider is required")
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = DefaultCollaboratorTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	breaker := cfg.Breaker
	breaker.IsFailure = countsAgainstBreaker
	timeout := middleware.TimeoutConfig{Timeout: cfg.CollaboratorTimeout}

	return &Router{
		status:           cfg.Status,
		analytics:        cfg.Analytics,
		statusTimeout:    middleware.NewTimeout(CollaboratorStatus, timeout),
		analyticsTimeout: middleware.NewTimeout(CollaboratorAnalytics, timeout),
		statusBreaker:    middleware.NewCircuitBreaker(CollaboratorStatus, breaker),
		analyticsBreaker: middleware.NewCircuitBreaker(CollaboratorAnalytics, breaker),
		recorder:         cfg.Recorder,
		logger:           cfg.Logger.With("component", "router"),
		now:              cfg.Now,
	}, nil
}

// Breakers returns the status and analytics circuit breakers.
func (r *Router) Breakers() (status, analytics *middleware.CircuitBreaker) {
	return r.statusBreaker, r.analyticsBreaker
}

// Handle resolves, validates and dispatches cls, then appends the turn with
// the classification actually used. Collaborator problems come back as
// AgentResult variants. The error is non-nil only when ctx is done, in which
// case nothing is appended, or when the memory write fails.
//
// Resolve and validation rejections are answered with a clarification and
// are not appended, so they never become inheritable context.
func (r *Router) Handle(ctx context.Context, utterance string, cls inquiry.Classification, mem Memory) (inquiry.AgentResult, inquiry.Classification, error) {
	if cls == nil {
		cls = inquiry.Unknown{}
	}
	ctx, span := r.recorder.StartSpan(ctx, observability.SpanDispatch,
		attribute.String("kind", string(cls.Kind())))
	defer span.End()

	var result inquiry.AgentResult
	used := cls

	switch c := cls.(type) {
	case inquiry.FlightStatus:
		if err := validate(c); err != nil {
			return clarifyInvalid(err), cls, nil
		}
		result = r.lookupStatus(ctx, c)

	case inquiry.FlightAnalytics:
		filled := r.resolve(ctx, c, mem)
		if !filled.Complete() {
			return inquiry.ClarificationResult{
				Reason: inquiry.ClarifyMissingEntity,
				Field:  filled.MissingField(),
			}, filled, nil
		}
		if filled.Modifier == "" {
			filled.Modifier = inquiry.ModifierCheapest
		}
		if err := validate(filled); err != nil {
			return clarifyInvalid(err), filled, nil
		}
		result, filled = r.queryAnalytics(ctx, filled)
		used = filled

	case inquiry.Unknown:
		result = inquiry.ClarificationResult{Reason: inquiry.ClarifyUnknownIntent}

	default:
		r.logger.ErrorContext(ctx, "unhandled classification", "type", fmt.Sprintf("%T", cls))
		result = inquiry.ClarificationResult{Reason: inquiry.ClarifyUnknownIntent}
	}

	if err := ctx.Err(); err != nil {
		return nil, used, err
	}

	turn := inquiry.Turn{
		ID:             uuid.NewString(),
		Utterance:      utterance,
		Classification: used,
		Timestamp:      r.now(),
	}
	if err := mem.Append(ctx, turn); err != nil {
		return result, used, fmt.Errorf("appending turn: %w", err)
	}
	return result, used, nil
}

func (r *Router) resolve(ctx context.Context, c inquiry.FlightAnalytics, mem Memory) inquiry.FlightAnalytics {
	if c.Complete() {
		return c
	}
	history, err := mem.Turns(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "reading memory failed, resolving without history", "error", err)
		return c
	}
	return Resolve(c, history)
}

func (r *Router) lookupStatus(ctx context.Context, c inquiry.FlightStatus) inquiry.AgentResult {
	record, err := middleware.WithBreaker(ctx, r.statusBreaker, func(ctx context.Context) (inquiry.StatusRecord, error) {
		return middleware.WithTimeout(ctx, r.statusTimeout, func(ctx context.Context) (inquiry.StatusRecord, error) {
			return r.status.Lookup(ctx, c.FlightNumber)
		})
	})
	if err != nil {
		return r.failure(ctx, CollaboratorStatus, err)
	}
	return inquiry.StatusResult{Record: record}
}

func (r *Router) queryAnalytics(ctx context.Context, c inquiry.FlightAnalytics) (inquiry.AgentResult, inquiry.FlightAnalytics) {
	q := inquiry.AnalyticsQuery{
		Origin:      c.Origin,
		Destination: c.Destination,
		Modifier:    c.Modifier,
		Year:        c.Year,
	}
	answer, err := middleware.WithBreaker(ctx, r.analyticsBreaker, func(ctx context.Context) (inquiry.AnalyticsAnswer, error) {
		return middleware.WithTimeout(ctx, r.analyticsTimeout, func(ctx context.Context) (inquiry.AnalyticsAnswer, error) {
			return r.analytics.Query(ctx, q)
		})
	})
	if err != nil {
		return r.failure(ctx, CollaboratorAnalytics, err), c
	}

	if answer.Year != 0 {
		q.Year = answer.Year
		c.Year = answer.Year
	}
	switch {
	case answer.Aggregate != nil:
		return inquiry.AggregateResult{Query: q, Aggregate: *answer.Aggregate}, c
	case len(answer.Days) > 0:
		return inquiry.DaysResult{Query: q, Days: answer.Days}, c
	case len(answer.Fares) > 0:
		return inquiry.FaresResult{Query: q, Fares: answer.Fares}, c
	default:
		return r.failure(ctx, CollaboratorAnalytics, inquiry.ErrNoData), c
	}
}

func (r *Router) failure(ctx context.Context, collaborator string, err error) inquiry.AgentResult {
	cf := classifyFailure(collaborator, err)
	if ctx.Err() == nil {
		r.recorder.CollaboratorFailure(ctx, collaborator, string(cf.Kind), cf.Cause)
		if r.recorder == nil {
			r.logger.WarnContext(ctx, "collaborator failed",
				"collaborator", collaborator, "kind", cf.Kind, "error", err)
		}
	}
	return inquiry.FailureResult{Err: cf}
}

// classifyFailure maps any provider or middleware error to a CollaboratorFailure.
func classifyFailure(collaborator string, err error) *inquiry.CollaboratorFailure {
	var cf *inquiry.CollaboratorFailure
	if errors.As(err, &cf) {
		return cf
	}

	kind := inquiry.FailureUnreachable
	var timeoutErr *middleware.TimeoutError
	switch {
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		kind = inquiry.FailureTimeout
	case errors.Is(err, inquiry.ErrNotFound):
		kind = inquiry.FailureNotFound
	case errors.Is(err, inquiry.ErrNoData):
		kind = inquiry.FailureNoData
	}
	return &inquiry.CollaboratorFailure{Collaborator: collaborator, Kind: kind, Cause: err}
}

// countsAgainstBreaker excludes answers about the data from breaker failures.
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, inquiry.ErrNotFound) || errors.Is(err, inquiry.ErrNoData) {
		return false
	}
	var cf *inquiry.CollaboratorFailure
	if errors.As(err, &cf) {
		switch cf.Kind {
		case inquiry.FailureNotFound, inquiry.FailureNoData, inquiry.FailureAmbiguous:
			return false
		}
	}
	return true
}

func clarifyInvalid(err error) inquiry.AgentResult {
	var invalid *inquiry.InvalidInputError
	if errors.As(err, &invalid) {
		return inquiry.ClarificationResult{
			Reason: inquiry.ClarifyInvalidInput,
			Field:  invalid.Field,
			Value:  invalid.Value,
		}
	}
	return inquiry.ClarificationResult{Reason: inquiry.ClarifyInvalidInput}
}
