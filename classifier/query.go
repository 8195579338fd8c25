package classifier

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scttfrdmn/travelrouter/inquiry"
	"github.com/scttfrdmn/travelrouter/observability"
)

// Classification paths.
const (
	PathLLM   = "llm"
	PathRules = "rules"
)

// DefaultWindow is the number of recent turns shown to the LLM.
const DefaultWindow = 3

// History is the read side of a conversation the classifier needs.
type History interface {
	Recent(ctx context.Context, n int) ([]inquiry.Turn, error)
}

// Decision is a classification plus how it was reached.
type Decision struct {
	Classification inquiry.Classification
	Path           string
	Rule           string
	// FailureReason is set when the LLM path failed and rules were used.
	FailureReason inquiry.FailureReason
}

// Config configures a QueryClassifier. A nil LLM means rules only.
type Config struct {
	LLM      *LLMClassifier
	Rules    *RuleBasedClassifier
	Window   int
	Recorder *observability.Recorder
	Logger   *slog.Logger
}

// QueryClassifier tries the LLM first and falls back to rules on any
// ClassifierFailure.
type QueryClassifier struct {
	llm      *LLMClassifier
	rules    *RuleBasedClassifier
	window   int
	recorder *observability.Recorder
	logger   *slog.Logger
}

// NewQueryClassifier creates a QueryClassifier from cfg.
func NewQueryClassifier(cfg Config) *QueryClassifier {
	if cfg.Rules == nil {
		cfg.Rules = NewRuleBasedClassifier()
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &QueryClassifier{
		llm:      cfg.LLM,
		rules:    cfg.Rules,
		window:   cfg.Window,
		recorder: cfg.Recorder,
		logger:   cfg.Logger.With("component", "query-classifier"),
	}
}

// LLMEnabled reports whether an LLM backend is configured.
func (q *QueryClassifier) LLMEnabled() bool {
	return q.llm != nil
}

// Classify picks a Classification for utterance. hist may be nil. The only
// error returned is ctx's, when the caller cancelled the turn.
func (q *QueryClassifier) Classify(ctx context.Context, utterance string, hist History) (Decision, error) {
	ctx, span := q.recorder.StartSpan(ctx, observability.SpanClassify,
		attribute.Bool("llm_enabled", q.llm != nil))
	defer span.End()

	var reason inquiry.FailureReason
	if q.llm != nil {
		var recent []inquiry.Turn
		if hist != nil {
			turns, err := hist.Recent(ctx, q.window)
			if err != nil {
				q.logger.WarnContext(ctx, "reading recent turns failed, classifying without context", "error", err)
			} else {
				recent = turns
			}
		}

		cls, err := q.llm.Classify(ctx, utterance, recent)
		if err == nil {
			d := Decision{Classification: cls, Path: PathLLM}
			q.recorder.Classification(ctx, d.Path, "", string(cls.Kind()), "")
			return d, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Decision{}, ctxErr
		}

		var failure *inquiry.ClassifierFailure
		if errors.As(err, &failure) {
			reason = failure.Reason
		} else {
			reason = inquiry.ReasonUnreachable
		}
		q.logger.DebugContext(ctx, "llm classification failed", "reason", reason, "error", err)
	}

	m := q.rules.Classify(utterance)
	d := Decision{
		Classification: m.Classification,
		Path:           PathRules,
		Rule:           m.Rule,
		FailureReason:  reason,
	}
	q.recorder.Classification(ctx, d.Path, d.Rule, string(d.Classification.Kind()), string(reason))
	return d, nil
}
