package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scttfrdmn/travelrouter/classifier"
	"github.com/scttfrdmn/travelrouter/formatter"
	"github.com/scttfrdmn/travelrouter/inquiry"
	"github.com/scttfrdmn/travelrouter/observability"
	"github.com/scttfrdmn/travelrouter/router"
)

// EmptyQueryReply answers a blank utterance.
const EmptyQueryReply = "Please enter a valid query."

// Outcome is the result of one turn.
type Outcome struct {
	SessionID string
	Reply     string

	// Decision is how the utterance was classified. It is zero for blank input.
	Decision classifier.Decision

	// Resolved is the classification after follow-up resolution.
	Resolved inquiry.Classification

	Result inquiry.AgentResult
}

// Config configures an Assistant.
type Config struct {
	Classifier *classifier.QueryClassifier
	Router     *router.Router
	Sessions   *Manager
	Recorder   *observability.Recorder
	Logger     *slog.Logger
}

// Assistant answers travel questions: classify, route, format.
type Assistant struct {
	classifier *classifier.QueryClassifier
	router     *router.Router
	sessions   *Manager
	recorder   *observability.Recorder
	logger     *slog.Logger
}

// NewAssistant creates an Assistant.
func NewAssistant(cfg Config) (*Assistant, error) {
	if cfg.Router == nil {
		return nil, errors.New("session: router is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session: session manager is required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classifier.NewQueryClassifier(classifier.Config{
			Recorder: cfg.Recorder,
			Logger:   cfg.Logger,
		})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assistant{
		classifier: cfg.Classifier,
		router:     cfg.Router,
		sessions:   cfg.Sessions,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger.With("component", "assistant"),
	}, nil
}

// Sessions returns the session manager.
func (a *Assistant) Sessions() *Manager {
	return a.sessions
}

// Ask runs one turn for sessionID. An empty sessionID starts a new session.
// Turns for the same session run one at a time; a cancelled turn returns
// ctx.Err() and leaves memory untouched.
func (a *Assistant) Ask(ctx context.Context, sessionID, utterance string) (Outcome, error) {
	if sessionID == "" {
		sessionID = a.sessions.Create().ID
	}

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Outcome{SessionID: sessionID, Reply: EmptyQueryReply}, nil
	}

	sess, err := a.sessions.acquire(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	defer a.sessions.release(sess)

	start := time.Now()
	ctx, span := a.recorder.StartSpan(ctx, observability.SpanTurn,
		attribute.String("session_id", sessionID))
	defer span.End()

	decision, err := a.classifier.Classify(ctx, utterance, sess.conv)
	if err != nil {
		return Outcome{}, err
	}

	result, resolved, err := a.router.Handle(ctx, utterance, decision.Classification, sess.conv)
	if result == nil {
		return Outcome{}, err
	}
	if err != nil {
		a.logger.WarnContext(ctx, "failed to record turn", "session_id", sessionID, "error", err)
	}

	reply := formatter.Format(result)
	a.recorder.TurnLatency(ctx, time.Since(start), string(resolved.Kind()))

	return Outcome{
		SessionID: sessionID,
		Reply:     reply,
		Decision:  decision,
		Resolved:  resolved,
		Result:    result,
	}, nil
}

// End finishes a session and clears its memory.
func (a *Assistant) End(ctx context.Context, sessionID string) error {
	return a.sessions.End(ctx, sessionID)
}
