package router

import (
	"github.com/scttfrdmn/travelrouter/inquiry"
)

// Resolve fills unset fields of a follow-up from history, newest turn first.
// A classification that already names both airports is returned unchanged.
// Only FlightAnalytics turns are consulted and explicit values are never
// replaced. Each field comes from the most recent analytics turn that has it.
func Resolve(current inquiry.FlightAnalytics, history []inquiry.Turn) inquiry.FlightAnalytics {
	if current.Complete() {
		return current
	}
	for i := len(history) - 1; i >= 0; i-- {
		if resolved(current) {
			break
		}
		prev, ok := history[i].Classification.(inquiry.FlightAnalytics)
		if !ok {
			continue
		}
		if current.Origin == "" {
			current.Origin = prev.Origin
		}
		if current.Destination == "" {
			current.Destination = prev.Destination
		}
		if current.Modifier == "" {
			current.Modifier = prev.Modifier
		}
		if current.Year == 0 {
			current.Year = prev.Year
		}
	}
	return current
}

func resolved(f inquiry.FlightAnalytics) bool {
	return f.Complete() && f.Modifier != "" && f.Year != 0
}

// validate rejects parameters that must not reach a collaborator.
func validate(cls inquiry.Classification) error {
	if err := cls.Validate(); err != nil {
		return err
	}
	if fa, ok := cls.(inquiry.FlightAnalytics); ok && fa.Complete() && fa.Origin == fa.Destination {
		return &inquiry.InvalidInputError{Field: "destination", Value: fa.Destination}
	}
	return nil
}
