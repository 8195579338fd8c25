package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/scttfrdmn/travelrouter/adapter/llm"
	"github.com/scttfrdmn/travelrouter/inquiry"
	"github.com/scttfrdmn/travelrouter/middleware"
)

var codeFenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

const systemPrompt = `You classify travel questions for a flight assistant.

Reply with a single JSON object and nothing else:
{
  "intent": "flight_status" | "flight_analytics" | "unknown",
  "flight_number": string or null,
  "origin": string or null,
  "destination": string or null,
  "intent_modifier": "cheapest" | "day_of_week" | "on_time" | "delay_trend" | null,
  "year": integer or null
}

Rules:
- flight_status: the user asks about one specific flight. flight_number is the IATA designator, e.g. "AA123".
- flight_analytics: the user asks about prices, best days, punctuality or delays on a route.
  origin and destination are three-letter IATA airport codes. Leave a field null if the user did not state it;
  do not copy it from earlier turns.
- intent_modifier: "day_of_week" for which day or when to fly, "on_time" for punctuality,
  "delay_trend" for typical delays, otherwise "cheapest".
- unknown: anything else.`

// LLMConfig configures an LLMClassifier.
type LLMConfig struct {
	// Timeout bounds a single classification call.
	// Default: 5s
	Timeout time.Duration

	// RateLimit is the number of LLM calls allowed per second. Zero disables limiting.
	RateLimit float64

	// Burst is the rate limiter bucket size.
	// Default: 1 when RateLimit is set
	Burst int
}

// LLMClassifier asks an LLM for a structured classification and rejects any
// answer that does not fit the schema.
type LLMClassifier struct {
	model   llm.LLM
	timeout *middleware.Timeout
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// NewLLMClassifier wraps model with the timeout and rate limit from cfg.
func NewLLMClassifier(model llm.LLM, cfg LLMConfig, logger *slog.Logger) *LLMClassifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &LLMClassifier{
		model:   model,
		timeout: middleware.NewTimeout("llm-classifier", middleware.TimeoutConfig{Timeout: cfg.Timeout}),
		logger:  logger.With("component", "llm-classifier", "model", model.Model()),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = middleware.NewRateLimiter("llm-classifier", middleware.RateLimiterConfig{
			Rate:  cfg.RateLimit,
			Burst: burst,
		})
	}
	return c
}

// Classify returns a validated Classification or a *inquiry.ClassifierFailure.
// recent is context only; it is never modified.
func (c *LLMClassifier) Classify(ctx context.Context, utterance string, recent []inquiry.Turn) (inquiry.Classification, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, false); err != nil {
			return nil, &inquiry.ClassifierFailure{Reason: inquiry.ReasonRateLimited, Cause: err}
		}
	}

	messages := []llm.Message{
		llm.System(systemPrompt),
		llm.User(buildUserPrompt(utterance, recent)),
	}

	resp, err := middleware.WithTimeout(ctx, c.timeout, func(ctx context.Context) (*llm.Response, error) {
		return c.model.Complete(ctx, messages, llm.WithTemperature(0), llm.WithJSONResponse())
	})
	if err != nil {
		var timeoutErr *middleware.TimeoutError
		if errors.As(err, &timeoutErr) {
			return nil, &inquiry.ClassifierFailure{Reason: inquiry.ReasonTimeout, Cause: err}
		}
		return nil, &inquiry.ClassifierFailure{Reason: inquiry.ReasonUnreachable, Cause: err}
	}
	if resp == nil {
		return nil, &inquiry.ClassifierFailure{Reason: inquiry.ReasonEmptyOutput}
	}

	cls, err := ParseClassification(resp.Content)
	if err != nil {
		c.logger.DebugContext(ctx, "rejected llm output", "content", resp.Content, "error", err)
		return nil, err
	}
	return cls, nil
}

func buildUserPrompt(utterance string, recent []inquiry.Turn) string {
	var b strings.Builder
	if len(recent) > 0 {
		b.WriteString("Earlier turns, oldest first:\n")
		for _, turn := range recent {
			fmt.Fprintf(&b, "- %q -> %s\n", turn.Utterance, describe(turn.Classification))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Classify this question: %q", utterance)
	return b.String()
}

func describe(cls inquiry.Classification) string {
	switch c := cls.(type) {
	case inquiry.FlightStatus:
		return fmt.Sprintf("flight_status %s", c.FlightNumber)
	case inquiry.FlightAnalytics:
		return fmt.Sprintf("flight_analytics origin=%s destination=%s modifier=%s",
			orDash(c.Origin), orDash(c.Destination), orDash(string(c.Modifier)))
	default:
		return "unknown"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// llmOutput mirrors the JSON schema. Pointers distinguish absent from empty.
type llmOutput struct {
	Intent       *string `json:"intent"`
	FlightNumber *string `json:"flight_number"`
	Origin       *string `json:"origin"`
	Destination  *string `json:"destination"`
	Modifier     *string `json:"intent_modifier"`
	Year         *int    `json:"year"`
}

// ParseClassification strips Markdown fences and decodes the LLM's JSON into a
// Classification. Anything that does not fit the schema is a schema_violation.
func ParseClassification(content string) (inquiry.Classification, error) {
	text := strings.TrimSpace(content)
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if text == "" {
		return nil, &inquiry.ClassifierFailure{Reason: inquiry.ReasonEmptyOutput}
	}

	var out llmOutput
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := dec.Decode(&out); err != nil {
		return nil, schemaViolation("invalid json", err)
	}
	if dec.More() {
		return nil, schemaViolation("trailing content after json object", nil)
	}
	if out.Intent == nil {
		return nil, schemaViolation("missing intent", nil)
	}

	statusFields := value(out.FlightNumber) != ""
	analyticsFields := value(out.Origin) != "" || value(out.Destination) != "" ||
		value(out.Modifier) != "" || out.Year != nil

	var cls inquiry.Classification
	switch inquiry.Kind(strings.ToLower(strings.TrimSpace(*out.Intent))) {
	case inquiry.KindFlightStatus:
		if analyticsFields {
			return nil, schemaViolation("flight_status with route fields", nil)
		}
		number := inquiry.NormalizeFlightNumber(value(out.FlightNumber))
		if number == "" {
			return nil, schemaViolation("flight_status without flight_number", nil)
		}
		cls = inquiry.FlightStatus{FlightNumber: number}

	case inquiry.KindFlightAnalytics:
		if statusFields {
			return nil, schemaViolation("flight_analytics with flight_number", nil)
		}
		a := inquiry.FlightAnalytics{
			Origin:      strings.ToUpper(value(out.Origin)),
			Destination: strings.ToUpper(value(out.Destination)),
			Modifier:    normalizeModifier(value(out.Modifier)),
		}
		if out.Year != nil {
			a.Year = *out.Year
		}
		if a.Origin != "" && a.Origin == a.Destination {
			return nil, schemaViolation("origin equals destination", nil)
		}
		cls = a

	case inquiry.KindUnknown:
		if statusFields || analyticsFields {
			return nil, schemaViolation("unknown with payload fields", nil)
		}
		cls = inquiry.Unknown{}

	default:
		return nil, schemaViolation(fmt.Sprintf("unknown intent %q", *out.Intent), nil)
	}

	if err := cls.Validate(); err != nil {
		return nil, schemaViolation("invalid field", err)
	}
	return cls, nil
}

// value treats JSON null, "" and the string "null" alike.
func value(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if strings.EqualFold(v, "null") {
		return ""
	}
	return v
}

func normalizeModifier(s string) inquiry.IntentModifier {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return inquiry.IntentModifier(s)
}

func schemaViolation(detail string, cause error) *inquiry.ClassifierFailure {
	return &inquiry.ClassifierFailure{
		Reason: inquiry.ReasonSchemaViolation,
		Detail: detail,
		Cause:  cause,
	}
}
