package router

import (
	"testing"

	"github.com/scttfrdmn/travelrouter/inquiry"
)

func analyticsTurn(origin, destination string, modifier inquiry.IntentModifier) inquiry.Turn {
	return inquiry.Turn{Classification: inquiry.FlightAnalytics{
		Origin:      origin,
		Destination: destination,
		Modifier:    modifier,
	}}
}

func TestResolve(t *testing.T) {
	status := inquiry.Turn{Classification: inquiry.FlightStatus{FlightNumber: "AA1"}}
	unknown := inquiry.Turn{Classification: inquiry.Unknown{}}

	tests := []struct {
		name    string
		history []inquiry.Turn
		current inquiry.FlightAnalytics
		want    inquiry.FlightAnalytics
	}{
		{
			name:    "explicit destination kept",
			history: []inquiry.Turn{analyticsTurn("SFO", "JFK", "")},
			current: inquiry.FlightAnalytics{Destination: "DEN"},
			want:    inquiry.FlightAnalytics{Origin: "SFO", Destination: "DEN"},
		},
		{
			name:    "explicit origin kept",
			history: []inquiry.Turn{analyticsTurn("SFO", "JFK", inquiry.ModifierCheapest)},
			current: inquiry.FlightAnalytics{Origin: "LAX"},
			want:    inquiry.FlightAnalytics{Origin: "LAX", Destination: "JFK", Modifier: inquiry.ModifierCheapest},
		},
		{
			name:    "status turns never supply airports",
			history: []inquiry.Turn{status},
			current: inquiry.FlightAnalytics{Modifier: inquiry.ModifierOnTime},
			want:    inquiry.FlightAnalytics{Modifier: inquiry.ModifierOnTime},
		},
		{
			name:    "intervening turns do not reset the scan",
			history: []inquiry.Turn{analyticsTurn("SFO", "JFK", inquiry.ModifierDayOfWeek), status, unknown},
			current: inquiry.FlightAnalytics{Origin: "LAX"},
			want:    inquiry.FlightAnalytics{Origin: "LAX", Destination: "JFK", Modifier: inquiry.ModifierDayOfWeek},
		},
		{
			name:    "most recent analytics turn wins",
			history: []inquiry.Turn{analyticsTurn("SFO", "JFK", ""), analyticsTurn("BOS", "MIA", "")},
			current: inquiry.FlightAnalytics{},
			want:    inquiry.FlightAnalytics{Origin: "BOS", Destination: "MIA"},
		},
		{
			name:    "explicit modifier kept",
			history: []inquiry.Turn{analyticsTurn("SFO", "JFK", inquiry.ModifierCheapest)},
			current: inquiry.FlightAnalytics{Modifier: inquiry.ModifierDelayTrend},
			want:    inquiry.FlightAnalytics{Origin: "SFO", Destination: "JFK", Modifier: inquiry.ModifierDelayTrend},
		},
		{
			name:    "empty history",
			current: inquiry.FlightAnalytics{Origin: "LAX"},
			want:    inquiry.FlightAnalytics{Origin: "LAX"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.current, tt.history)
			if got != tt.want {
				t.Errorf("Resolve() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestResolve_FollowUpInheritsYear(t *testing.T) {
	history := []inquiry.Turn{{Classification: inquiry.FlightAnalytics{
		Origin: "SFO", Destination: "JFK", Modifier: inquiry.ModifierCheapest, Year: 2022,
	}}}

	got := Resolve(inquiry.FlightAnalytics{Destination: "DEN"}, history)
	if got.Year != 2022 {
		t.Errorf("expected inherited year 2022, got %d", got.Year)
	}
}

// TestResolve_CompleteUnchanged tests that a query naming both airports
// ignores history entirely.
func TestResolve_CompleteUnchanged(t *testing.T) {
	history := []inquiry.Turn{
		{Classification: inquiry.FlightAnalytics{
			Origin: "JFK", Destination: "LAX", Modifier: inquiry.ModifierOnTime, Year: 2022,
		}},
		{Classification: inquiry.FlightStatus{FlightNumber: "AA123"}},
	}

	current := inquiry.FlightAnalytics{Origin: "SFO", Destination: "DEN"}
	if got := Resolve(current, history); got != current {
		t.Errorf("Resolve() = %#v, want %#v", got, current)
	}

	withModifier := inquiry.FlightAnalytics{Origin: "JFK", Destination: "LAX", Modifier: inquiry.ModifierCheapest}
	if got := Resolve(withModifier, history); got != withModifier {
		t.Errorf("Resolve() = %#v, want %#v", got, withModifier)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cls   inquiry.Classification
		field string
	}{
		{"valid status", inquiry.FlightStatus{FlightNumber: "AA123"}, ""},
		{"bad flight number", inquiry.FlightStatus{FlightNumber: "12345"}, "flight_number"},
		{"bad origin", inquiry.FlightAnalytics{Origin: "NYC1", Destination: "LAX"}, "origin"},
		{"same airports", inquiry.FlightAnalytics{Origin: "JFK", Destination: "JFK"}, "destination"},
		{"unknown", inquiry.Unknown{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(tt.cls)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			invalid, ok := err.(*inquiry.InvalidInputError)
			if !ok {
				t.Fatalf("expected *InvalidInputError, got %T: %v", err, err)
			}
			if invalid.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, invalid.Field)
			}
		})
	}
}
