package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/scttfrdmn/travelrouter/inquiry"
	"github.com/scttfrdmn/travelrouter/memory"
	"github.com/scttfrdmn/travelrouter/middleware"
)

type fakeStatusProvider struct {
	mu     sync.Mutex
	record inquiry.StatusRecord
	err    error
	delay  time.Duration
	calls  []string
}

func (f *fakeStatusProvider) Lookup(ctx context.Context, flightNumber string) (inquiry.StatusRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, flightNumber)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return inquiry.StatusRecord{}, ctx.Err()
		}
	}
	if f.err != nil {
		return inquiry.StatusRecord{}, f.err
	}
	return f.record, nil
}

func (f *fakeStatusProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAnalyticsProvider struct {
	mu      sync.Mutex
	answer  inquiry.AnalyticsAnswer
	err     error
	queries []inquiry.AnalyticsQuery
}

func (f *fakeAnalyticsProvider) Query(_ context.Context, q inquiry.AnalyticsQuery) (inquiry.AnalyticsAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return inquiry.AnalyticsAnswer{}, f.err
	}
	return f.answer, nil
}

func newTestRouter(t *testing.T, status *fakeStatusProvider, analytics *fakeAnalyticsProvider, opts ...func(*Config)) *Router {
	t.Helper()
	cfg := Config{Status: status, Analytics: analytics}
	for _, opt := range opts {
		opt(&cfg)
	}
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return r
}

func newConversation() *memory.Conversation {
	return memory.NewConversation(memory.NewInMemoryStore(0), "session-1")
}

func turnCount(t *testing.T, conv *memory.Conversation) int {
	t.Helper()
	turns, err := conv.Turns(context.Background())
	if err != nil {
		t.Fatalf("Turns() error: %v", err)
	}
	return len(turns)
}

func failureKind(t *testing.T, result inquiry.AgentResult) inquiry.FailureKind {
	t.Helper()
	fr, ok := result.(inquiry.FailureResult)
	if !ok {
		t.Fatalf("expected FailureResult, got %#v", result)
	}
	var cf *inquiry.CollaboratorFailure
	if !errors.As(fr.Err, &cf) {
		t.Fatalf("expected *CollaboratorFailure, got %T", fr.Err)
	}
	return cf.Kind
}

func TestNew_RequiresProviders(t *testing.T) {
	if _, err := New(Config{Analytics: &fakeAnalyticsProvider{}}); err == nil {
		t.Error("expected error without status provider")
	}
	if _, err := New(Config{Status: &fakeStatusProvider{}}); err == nil {
		t.Error("expected error without analytics provider")
	}
}

func TestRouter_FlightStatus(t *testing.T) {
	status := &fakeStatusProvider{record: inquiry.StatusRecord{FlightNumber: "AA123", Status: "active"}}
	r := newTestRouter(t, status, &fakeAnalyticsProvider{})
	conv := newConversation()

	cls := inquiry.FlightStatus{FlightNumber: "AA123"}
	result, used, err := r.Handle(context.Background(), "status of AA123", cls, conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sr, ok := result.(inquiry.StatusResult)
	if !ok {
		t.Fatalf("expected StatusResult, got %#v", result)
	}
	if sr.Record.FlightNumber != "AA123" {
		t.Errorf("unexpected record %#v", sr.Record)
	}
	if used != cls {
		t.Errorf("expected used classification %#v, got %#v", cls, used)
	}
	if status.calls[0] != "AA123" {
		t.Errorf("provider called with %q", status.calls[0])
	}

	turns, _ := conv.Turns(context.Background())
	if len(turns) != 1 || turns[0].Utterance != "status of AA123" || turns[0].ID == "" {
		t.Errorf("unexpected turns %#v", turns)
	}
}

func TestRouter_FollowUpInheritsDestination(t *testing.T) {
	analytics := &fakeAnalyticsProvider{answer: inquiry.AnalyticsAnswer{
		Year:  2023,
		Fares: []inquiry.FareRecord{{FlightNumber: "AA1", TotalFare: 199}},
	}}
	r := newTestRouter(t, &fakeStatusProvider{}, analytics)
	conv := newConversation()
	ctx := context.Background()

	first := inquiry.FlightAnalytics{Origin: "SFO", Destination: "JFK", Modifier: inquiry.ModifierCheapest}
	if _, _, err := r.Handle(ctx, "cheapest flights from SFO to JFK", first, conv); err != nil {
		t.Fatalf("first turn: %v", err)
	}

	result, used, err := r.Handle(ctx, "what about from LAX?", inquiry.FlightAnalytics{Origin: "LAX"}, conv)
	if err != nil {
		t.Fatalf("follow-up turn: %v", err)
	}

	want := inquiry.FlightAnalytics{Origin: "LAX", Destination: "JFK", Modifier: inquiry.ModifierCheapest, Year: 2023}
	if used != want {
		t.Errorf("used = %#v, want %#v", used, want)
	}
	q := analytics.queries[1]
	if q.Origin != "LAX" || q.Destination != "JFK" || q.Modifier != inquiry.ModifierCheapest {
		t.Errorf("unexpected query %#v", q)
	}
	if _, ok := result.(inquiry.FaresResult); !ok {
		t.Errorf("expected FaresResult, got %#v", result)
	}

	turns, _ := conv.Turns(ctx)
	if turns[1].Classification != want {
		t.Errorf("persisted %#v, want the filled classification", turns[1].Classification)
	}
}

// TestRouter_CompleteQueryIgnoresHistory tests that a query naming both
// airports is dispatched as asked, without the modifier or year of earlier
// turns.
func TestRouter_CompleteQueryIgnoresHistory(t *testing.T) {
	analytics := &fakeAnalyticsProvider{answer: inquiry.AnalyticsAnswer{
		Year:  2023,
		Fares: []inquiry.FareRecord{{FlightNumber: "UA1", TotalFare: 99}},
	}}
	r := newTestRouter(t, &fakeStatusProvider{}, analytics)
	conv := newConversation()
	ctx := context.Background()

	earlier := inquiry.FlightAnalytics{Origin: "JFK", Destination: "LAX", Modifier: inquiry.ModifierOnTime, Year: 2022}
	if _, _, err := r.Handle(ctx, "on-time rate from JFK to LAX in 2022", earlier, conv); err != nil {
		t.Fatalf("first turn: %v", err)
	}

	if _, _, err := r.Handle(ctx, "flights from SFO to DEN", inquiry.FlightAnalytics{Origin: "SFO", Destination: "DEN"}, conv); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	q := analytics.queries[1]
	want := inquiry.AnalyticsQuery{Origin: "SFO", Destination: "DEN", Modifier: inquiry.ModifierCheapest}
	if q != want {
		t.Errorf("query = %#v, want %#v", q, want)
	}
}

func TestRouter_MissingEntityAfterStatusTurn(t *testing.T) {
	status := &fakeStatusProvider{record: inquiry.StatusRecord{FlightNumber: "AA123"}}
	analytics := &fakeAnalyticsProvider{}
	r := newTestRouter(t, status, analytics)
	conv := newConversation()
	ctx := context.Background()

	if _, _, err := r.Handle(ctx, "status AA123", inquiry.FlightStatus{FlightNumber: "AA123"}, conv); err != nil {
		t.Fatalf("status turn: %v", err)
	}

	result, _, err := r.Handle(ctx, "and the cheapest?", inquiry.FlightAnalytics{Modifier: inquiry.ModifierCheapest}, conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := inquiry.ClarificationResult{Reason: inquiry.ClarifyMissingEntity, Field: "origin"}
	if result != want {
		t.Errorf("got %#v, want %#v", result, want)
	}
	if len(analytics.queries) != 0 {
		t.Error("analytics provider should not be called")
	}
	if n := turnCount(t, conv); n != 1 {
		t.Errorf("expected clarification not to be appended, have %d turns", n)
	}
}

func TestRouter_InvalidInputNotDispatched(t *testing.T) {
	status := &fakeStatusProvider{}
	analytics := &fakeAnalyticsProvider{}
	r := newTestRouter(t, status, analytics)
	conv := newConversation()

	tests := []struct {
		name  string
		cls   inquiry.Classification
		field string
	}{
		{"flight number", inquiry.FlightStatus{FlightNumber: "12345"}, "flight_number"},
		{"same airports", inquiry.FlightAnalytics{Origin: "JFK", Destination: "JFK"}, "destination"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := r.Handle(context.Background(), "x", tt.cls, conv)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			cr, ok := result.(inquiry.ClarificationResult)
			if !ok || cr.Reason != inquiry.ClarifyInvalidInput || cr.Field != tt.field {
				t.Errorf("unexpected result %#v", result)
			}
		})
	}

	if status.callCount() != 0 || len(analytics.queries) != 0 {
		t.Error("invalid input reached a collaborator")
	}
}

func TestRouter_UnknownIntent(t *testing.T) {
	r := newTestRouter(t, &fakeStatusProvider{}, &fakeAnalyticsProvider{})
	conv := newConversation()

	result, _, err := r.Handle(context.Background(), "tell me a joke", inquiry.Unknown{}, conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != (inquiry.ClarificationResult{Reason: inquiry.ClarifyUnknownIntent}) {
		t.Errorf("unexpected result %#v", result)
	}
	if n := turnCount(t, conv); n != 1 {
		t.Errorf("expected unknown turn to be recorded, have %d turns", n)
	}
}

func TestRouter_DefaultsModifierToCheapest(t *testing.T) {
	analytics := &fakeAnalyticsProvider{answer: inquiry.AnalyticsAnswer{
		Fares: []inquiry.FareRecord{{FlightNumber: "UA1", TotalFare: 99}},
	}}
	r := newTestRouter(t, &fakeStatusProvider{}, analytics)

	_, used, err := r.Handle(context.Background(), "JFK to LAX", inquiry.FlightAnalytics{Origin: "JFK", Destination: "LAX"}, newConversation())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analytics.queries[0].Modifier != inquiry.ModifierCheapest {
		t.Errorf("expected cheapest, got %q", analytics.queries[0].Modifier)
	}
	if used.(inquiry.FlightAnalytics).Modifier != inquiry.ModifierCheapest {
		t.Errorf("expected persisted modifier cheapest, got %#v", used)
	}
}

func TestRouter_AnalyticsAnswerShapes(t *testing.T) {
	cls := inquiry.FlightAnalytics{Origin: "JFK", Destination: "LAX", Modifier: inquiry.ModifierOnTime}

	tests := []struct {
		name   string
		answer inquiry.AnalyticsAnswer
		check  func(inquiry.AgentResult) bool
	}{
		{
			name:   "aggregate",
			answer: inquiry.AnalyticsAnswer{Aggregate: &inquiry.AggregateRecord{Metric: "on_time_rate", Value: 0.8}},
			check: func(r inquiry.AgentResult) bool {
				ar, ok := r.(inquiry.AggregateResult)
				return ok && ar.Aggregate.Value == 0.8
			},
		},
		{
			name:   "days",
			answer: inquiry.AnalyticsAnswer{Days: []inquiry.DayRecord{{DayOfWeek: 3, AvgFare: 120, NumFlights: 4}}},
			check: func(r inquiry.AgentResult) bool {
				dr, ok := r.(inquiry.DaysResult)
				return ok && len(dr.Days) == 1
			},
		},
		{
			name:   "empty answer is no data",
			answer: inquiry.AnalyticsAnswer{},
			check: func(r inquiry.AgentResult) bool {
				fr, ok := r.(inquiry.FailureResult)
				return ok && errors.Is(fr.Err, inquiry.ErrNoData)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &fakeStatusProvider{}, &fakeAnalyticsProvider{answer: tt.answer})
			result, _, err := r.Handle(context.Background(), "q", cls, newConversation())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(result) {
				t.Errorf("unexpected result %#v", result)
			}
		})
	}
}

func TestRouter_NotFoundDoesNotTripBreaker(t *testing.T) {
	status := &fakeStatusProvider{err: inquiry.ErrNotFound}
	r := newTestRouter(t, status, &fakeAnalyticsProvider{}, func(c *Config) {
		c.Breaker = middleware.CircuitBreakerConfig{FailureThreshold: 2}
	})
	conv := newConversation()

	for i := 0; i < 5; i++ {
		result, _, err := r.Handle(context.Background(), "q", inquiry.FlightStatus{FlightNumber: "ZZ999"}, conv)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if kind := failureKind(t, result); kind != inquiry.FailureNotFound {
			t.Errorf("expected not_found, got %s", kind)
		}
	}

	breaker, _ := r.Breakers()
	if breaker.State() != middleware.StateClosed {
		t.Errorf("expected closed breaker, got %s", breaker.State())
	}
	if status.callCount() != 5 {
		t.Errorf("expected 5 provider calls, got %d", status.callCount())
	}
}

func TestRouter_BreakerOpensOnOutage(t *testing.T) {
	status := &fakeStatusProvider{err: errors.New("connection refused")}
	r := newTestRouter(t, status, &fakeAnalyticsProvider{}, func(c *Config) {
		c.Breaker = middleware.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour}
	})
	conv := newConversation()
	cls := inquiry.FlightStatus{FlightNumber: "AA123"}

	for i := 0; i < 3; i++ {
		result, _, err := r.Handle(context.Background(), "q", cls, conv)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if kind := failureKind(t, result); kind != inquiry.FailureUnreachable {
			t.Errorf("call %d: expected unreachable, got %s", i, kind)
		}
	}

	if status.callCount() != 2 {
		t.Errorf("expected breaker to stop the third call, provider saw %d", status.callCount())
	}
	breaker, _ := r.Breakers()
	if breaker.State() != middleware.StateOpen {
		t.Errorf("expected open breaker, got %s", breaker.State())
	}
	if n := turnCount(t, conv); n != 3 {
		t.Errorf("failed turns should still be recorded, have %d", n)
	}
}

func TestRouter_CollaboratorTimeout(t *testing.T) {
	status := &fakeStatusProvider{delay: time.Second}
	r := newTestRouter(t, status, &fakeAnalyticsProvider{}, func(c *Config) {
		c.CollaboratorTimeout = 50 * time.Millisecond
	})

	start := time.Now()
	result, _, err := r.Handle(context.Background(), "q", inquiry.FlightStatus{FlightNumber: "AA123"}, newConversation())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind := failureKind(t, result); kind != inquiry.FailureTimeout {
		t.Errorf("expected timeout, got %s", kind)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Handle took %v", elapsed)
	}
}

func TestRouter_CancelledTurnNotAppended(t *testing.T) {
	status := &fakeStatusProvider{delay: time.Second}
	r := newTestRouter(t, status, &fakeAnalyticsProvider{})
	conv := newConversation()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, _, err := r.Handle(ctx, "q", inquiry.FlightStatus{FlightNumber: "AA123"}, conv)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result != nil {
		t.Errorf("expected no result, got %#v", result)
	}
	if n := turnCount(t, conv); n != 0 {
		t.Errorf("cancelled turn was appended: %d turns", n)
	}
	breaker, _ := r.Breakers()
	if breaker.State() != middleware.StateClosed {
		t.Error("cancellation should not count against the breaker")
	}
}

func TestClassifyFailure(t *testing.T) {
	existing := &inquiry.CollaboratorFailure{Collaborator: CollaboratorStatus, Kind: inquiry.FailureUpstream}

	tests := []struct {
		name string
		err  error
		want inquiry.FailureKind
	}{
		{"existing", existing, inquiry.FailureUpstream},
		{"timeout", &middleware.TimeoutError{Operation: "x", Timeout: time.Second}, inquiry.FailureTimeout},
		{"deadline", context.DeadlineExceeded, inquiry.FailureTimeout},
		{"not found", inquiry.ErrNotFound, inquiry.FailureNotFound},
		{"no data", inquiry.ErrNoData, inquiry.FailureNoData},
		{"open breaker", &middleware.CircuitBreakerError{Name: "x"}, inquiry.FailureUnreachable},
		{"other", errors.New("boom"), inquiry.FailureUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyFailure(CollaboratorStatus, tt.err).Kind; got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
