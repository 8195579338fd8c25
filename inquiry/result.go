package inquiry

import (
	"context"
	"time"
)

// StatusRecord is a single flight's live status.
type StatusRecord struct {
	FlightNumber       string
	Airline            string
	DepartureAirport   string
	DepartureIATA      string
	ArrivalAirport     string
	ArrivalIATA        string
	Status             string
	ScheduledDeparture string
	ScheduledArrival   string
	DepartureDelay     int // minutes
	ArrivalDelay       int // minutes
	DepartureTerminal  string
	DepartureGate      string
	ArrivalTerminal    string
	ArrivalGate        string
}

// FareRecord is one historical flight with its fare.
type FareRecord struct {
	Carrier       string
	FlightNumber  string
	Origin        string
	Destination   string
	TotalFare     float64
	DepartureDate time.Time
}

// DayRecord aggregates one day of the week (1=Sunday .. 7=Saturday). AvgDelay
// is the mean departure delay in minutes and is only set for delay trends.
type DayRecord struct {
	DayOfWeek  int
	AvgFare    float64
	AvgDelay   float64
	NumFlights int
}

// AggregateRecord is a single route statistic such as on-time rate.
type AggregateRecord struct {
	Metric        string
	Value         float64
	MeanDelay     float64 // minutes
	SampleFlights int
}

// AnalyticsQuery is a fully resolved analytics request.
type AnalyticsQuery struct {
	Origin      string
	Destination string
	Modifier    IntentModifier
	Year        int
}

// AnalyticsAnswer carries exactly one of Fares, Days or Aggregate, chosen by
// the query's modifier.
type AnalyticsAnswer struct {
	Year      int
	Fares     []FareRecord
	Days      []DayRecord
	Aggregate *AggregateRecord
}

// Collaborator names carried by CollaboratorFailure.
const (
	CollaboratorStatus    = "flight-status"
	CollaboratorAnalytics = "flight-analytics"
)

// FlightStatusProvider looks up a flight's live status. It returns ErrNotFound
// when nothing matches.
type FlightStatusProvider interface {
	Lookup(ctx context.Context, flightNumber string) (StatusRecord, error)
}

// FlightAnalyticsProvider answers historical route questions. It returns
// ErrNoData when the route has no rows.
type FlightAnalyticsProvider interface {
	Query(ctx context.Context, q AnalyticsQuery) (AnalyticsAnswer, error)
}

// AgentResult is what the router hands to the formatter. Failures below the
// router are always folded into one of these variants.
type AgentResult interface {
	isAgentResult()
}

// StatusResult is a successful status lookup.
type StatusResult struct {
	Record StatusRecord
}

// FaresResult is a ranked list of fares.
type FaresResult struct {
	Query AnalyticsQuery
	Fares []FareRecord
}

// DaysResult is a per-day-of-week fare aggregate.
type DaysResult struct {
	Query AnalyticsQuery
	Days  []DayRecord
}

// AggregateResult is a single route statistic.
type AggregateResult struct {
	Query     AnalyticsQuery
	Aggregate AggregateRecord
}

// ClarificationReason says why the router needs the user to rephrase.
type ClarificationReason string

const (
	ClarifyUnknownIntent ClarificationReason = "unknown_intent"
	ClarifyMissingEntity ClarificationReason = "missing_entity"
	ClarifyInvalidInput  ClarificationReason = "invalid_input"
)

// ClarificationResult asks the user for more information. It is not an error.
type ClarificationResult struct {
	Reason ClarificationReason
	Field  string
	Value  string
}

// FailureResult is a collaborator failure. Err is for logs only.
type FailureResult struct {
	Err error
}

func (StatusResult) isAgentResult()        {}
func (FaresResult) isAgentResult()         {}
func (DaysResult) isAgentResult()          {}
func (AggregateResult) isAgentResult()     {}
func (ClarificationResult) isAgentResult() {}
func (FailureResult) isAgentResult()       {}
