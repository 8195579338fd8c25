// Package inquiry provides the core types shared by the travel inquiry router:
// classifications, conversation turns, collaborator contracts and agent results.
package inquiry

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind identifies a Classification variant.
type Kind string

const (
	KindFlightStatus    Kind = "flight_status"
	KindFlightAnalytics Kind = "flight_analytics"
	KindUnknown         Kind = "unknown"
)

// IntentModifier selects the analytics sub-query for a FlightAnalytics turn.
//
// The set is open: the LLM may return free text, which providers treat as
// ModifierCheapest when they do not recognise it.
type IntentModifier string

const (
	ModifierCheapest   IntentModifier = "cheapest"
	ModifierDayOfWeek  IntentModifier = "day_of_week"
	ModifierOnTime     IntentModifier = "on_time"
	ModifierDelayTrend IntentModifier = "delay_trend"
)

var (
	flightNumberRe = regexp.MustCompile(`^([A-Z]{2}|[A-Z][0-9]|[0-9][A-Z])[0-9]{1,4}$`)
	airportCodeRe  = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Classification is the closed set of routing decisions for an utterance.
//
// Only FlightStatus, FlightAnalytics and Unknown implement it; the unexported
// marker method keeps the set closed so the router's type switch stays exhaustive.
type Classification interface {
	// Kind returns the variant tag.
	Kind() Kind

	// Validate checks that the payload matches the tag's invariants.
	Validate() error

	isClassification()
}

// FlightStatus asks for the live status of a single flight.
type FlightStatus struct {
	FlightNumber string `json:"flight_number"`
}

// FlightAnalytics asks a historical question about a route. Origin and
// Destination may be empty when the utterance only names one side.
type FlightAnalytics struct {
	Origin      string         `json:"origin,omitempty"`
	Destination string         `json:"destination,omitempty"`
	Modifier    IntentModifier `json:"intent_modifier,omitempty"`
	Year        int            `json:"year,omitempty"`
}

// Unknown means the utterance matched no intent. The user is asked to rephrase.
type Unknown struct{}

func (FlightStatus) isClassification()    {}
func (FlightAnalytics) isClassification() {}
func (Unknown) isClassification()         {}

// Kind returns KindFlightStatus.
func (FlightStatus) Kind() Kind { return KindFlightStatus }

// Kind returns KindFlightAnalytics.
func (FlightAnalytics) Kind() Kind { return KindFlightAnalytics }

// Kind returns KindUnknown.
func (Unknown) Kind() Kind { return KindUnknown }

// Validate checks the flight number format.
func (f FlightStatus) Validate() error {
	if !ValidFlightNumber(f.FlightNumber) {
		return &InvalidInputError{Field: "flight_number", Value: f.FlightNumber}
	}
	return nil
}

// Validate checks any airport codes that are set. Unset fields are allowed;
// Complete reports whether both are present.
func (f FlightAnalytics) Validate() error {
	if f.Origin != "" && !ValidAirportCode(f.Origin) {
		return &InvalidInputError{Field: "origin", Value: f.Origin}
	}
	if f.Destination != "" && !ValidAirportCode(f.Destination) {
		return &InvalidInputError{Field: "destination", Value: f.Destination}
	}
	if f.Year != 0 && (f.Year < 1900 || f.Year > 2999) {
		return &InvalidInputError{Field: "year", Value: fmt.Sprint(f.Year)}
	}
	return nil
}

// Validate always succeeds.
func (Unknown) Validate() error { return nil }

// Complete reports whether both route endpoints are known.
func (f FlightAnalytics) Complete() bool {
	return f.Origin != "" && f.Destination != ""
}

// MissingField names the first unset endpoint, or "" when complete.
func (f FlightAnalytics) MissingField() string {
	switch {
	case f.Origin == "":
		return "origin"
	case f.Destination == "":
		return "destination"
	default:
		return ""
	}
}

// NormalizeFlightNumber uppercases a flight number and strips whitespace.
func NormalizeFlightNumber(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// ValidFlightNumber reports whether s is a normalized IATA flight designator.
func ValidFlightNumber(s string) bool {
	return flightNumberRe.MatchString(s)
}

// ValidAirportCode reports whether s is a three-letter uppercase code.
func ValidAirportCode(s string) bool {
	return airportCodeRe.MatchString(s)
}

// Turn is one resolved exchange in a session. Turns are immutable once
// appended to memory.
type Turn struct {
	ID             string
	Utterance      string
	Classification Classification
	Timestamp      time.Time
}
