// Package formatter renders agent results as plain-text replies.
//
// Format is pure: the same AgentResult always produces the same reply, and
// ranked lists are ordered with explicit tie-breakers so equal values never
// depend on the order a provider returned them in.
package formatter

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/scttfrdmn/travelrouter/inquiry"
)

const dateLayout = "2006-01-02"

// OnTimeThresholdMinutes is the arrival delay still counted as on time.
const OnTimeThresholdMinutes = 15

var dayNames = map[int]string{
	1: "Sunday", 2: "Monday", 3: "Tuesday", 4: "Wednesday",
	5: "Thursday", 6: "Friday", 7: "Saturday",
}

// Format renders result as the reply shown to the user.
func Format(result inquiry.AgentResult) string {
	switch r := result.(type) {
	case inquiry.StatusResult:
		return formatStatus(r.Record)
	case inquiry.FaresResult:
		return formatFares(r)
	case inquiry.DaysResult:
		return formatDays(r)
	case inquiry.AggregateResult:
		return formatAggregate(r)
	case inquiry.ClarificationResult:
		return formatClarification(r)
	case inquiry.FailureResult:
		return formatFailure(r)
	default:
		return "Sorry, something went wrong while answering. Please try again."
	}
}

// DayName returns the English name for a 1=Sunday day number.
func DayName(day int) string {
	if name, ok := dayNames[day]; ok {
		return name
	}
	return fmt.Sprintf("Day %d", day)
}

func formatStatus(rec inquiry.StatusRecord) string {
	var b strings.Builder

	b.WriteString("Flight " + rec.FlightNumber)
	if rec.Airline != "" {
		b.WriteString(" operated by " + rec.Airline)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Route: %s to %s\n",
		airport(rec.DepartureAirport, rec.DepartureIATA),
		airport(rec.ArrivalAirport, rec.ArrivalIATA))
	fmt.Fprintf(&b, "Status: %s\n", capitalize(orUnknown(rec.Status)))
	fmt.Fprintf(&b, "Scheduled departure: %s\n", orUnknown(rec.ScheduledDeparture))
	fmt.Fprintf(&b, "Scheduled arrival: %s\n", orUnknown(rec.ScheduledArrival))

	if rec.DepartureDelay > 0 {
		fmt.Fprintf(&b, "Departure delay: %d minutes\n", rec.DepartureDelay)
	}
	if rec.ArrivalDelay > 0 {
		fmt.Fprintf(&b, "Arrival delay: %d minutes\n", rec.ArrivalDelay)
	}
	if s := terminalGate(rec.DepartureTerminal, rec.DepartureGate); s != "" {
		fmt.Fprintf(&b, "Departure: %s\n", s)
	}
	if s := terminalGate(rec.ArrivalTerminal, rec.ArrivalGate); s != "" {
		fmt.Fprintf(&b, "Arrival: %s\n", s)
	}
	return strings.TrimRight(b.String(), "\n")
}

const noData = "Sorry, I don't have any flight data for that route. Please try a different route or year."

func formatFares(r inquiry.FaresResult) string {
	if len(r.Fares) == 0 {
		return noData
	}
	fares := make([]inquiry.FareRecord, len(r.Fares))
	copy(fares, r.Fares)
	sort.SliceStable(fares, func(i, j int) bool {
		a, b := fares[i], fares[j]
		if a.TotalFare != b.TotalFare {
			return a.TotalFare < b.TotalFare
		}
		if a.FlightNumber != b.FlightNumber {
			return a.FlightNumber < b.FlightNumber
		}
		return a.DepartureDate.Before(b.DepartureDate)
	})

	amounts := make([]float64, len(fares))
	carriers := make(map[string]bool)
	for i, f := range fares {
		amounts[i] = f.TotalFare
		if f.Carrier != "" {
			carriers[f.Carrier] = true
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on historical data for flights %s:\n", routePhrase(r.Query))
	fmt.Fprintf(&b, "The cheapest fare found was $%.2f.\n", fares[0].TotalFare)
	fmt.Fprintf(&b, "The average fare was $%.2f.\n", stat.Mean(amounts, nil))
	if len(carriers) > 0 {
		fmt.Fprintf(&b, "The main carriers were: %s.\n", strings.Join(sortedKeys(carriers), ", "))
	}
	fmt.Fprintf(&b, "\nTop %d cheapest flights:\n", len(fares))
	for i, f := range fares {
		fmt.Fprintf(&b, "%d. $%.2f - %s on %s\n",
			i+1, f.TotalFare, strings.TrimSpace(f.Carrier+" "+f.FlightNumber), f.DepartureDate.Format(dateLayout))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDays(r inquiry.DaysResult) string {
	if len(r.Days) == 0 {
		return noData
	}
	if r.Query.Modifier == inquiry.ModifierDelayTrend {
		return formatDelayDays(r)
	}

	days := sortDays(r.Days, func(d inquiry.DayRecord) float64 { return d.AvgFare })
	first, last := days[0], days[len(days)-1]

	var b strings.Builder
	fmt.Fprintf(&b, "Analysis of flight prices %s by day of week:\n\n", routePhrase(r.Query))
	fmt.Fprintf(&b, "The cheapest day to fly is %s with an average fare of $%.2f.\n", DayName(first.DayOfWeek), first.AvgFare)
	fmt.Fprintf(&b, "The most expensive day to fly is %s with an average fare of $%.2f.\n\n", DayName(last.DayOfWeek), last.AvgFare)
	b.WriteString("Average fares by day of week (from cheapest to most expensive):\n")
	for _, d := range days {
		fmt.Fprintf(&b, "%s: $%.2f (based on %s)\n", DayName(d.DayOfWeek), d.AvgFare, flights(d.NumFlights))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDelayDays(r inquiry.DaysResult) string {
	days := sortDays(r.Days, func(d inquiry.DayRecord) float64 { return d.AvgDelay })
	first, last := days[0], days[len(days)-1]

	var b strings.Builder
	fmt.Fprintf(&b, "Departure delay trend %s by day of week:\n\n", routePhrase(r.Query))
	fmt.Fprintf(&b, "%s has the shortest delays, averaging %.1f minutes.\n", DayName(first.DayOfWeek), first.AvgDelay)
	fmt.Fprintf(&b, "%s has the longest delays, averaging %.1f minutes.\n\n", DayName(last.DayOfWeek), last.AvgDelay)
	b.WriteString("Average departure delay by day of week (shortest first):\n")
	for _, d := range days {
		fmt.Fprintf(&b, "%s: %.1f minutes (based on %s)\n", DayName(d.DayOfWeek), d.AvgDelay, flights(d.NumFlights))
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortDays(in []inquiry.DayRecord, key func(inquiry.DayRecord) float64) []inquiry.DayRecord {
	days := make([]inquiry.DayRecord, len(in))
	copy(days, in)
	sort.SliceStable(days, func(i, j int) bool {
		ki, kj := key(days[i]), key(days[j])
		if ki != kj {
			return ki < kj
		}
		return days[i].DayOfWeek < days[j].DayOfWeek
	})
	return days
}

func formatAggregate(r inquiry.AggregateResult) string {
	a := r.Aggregate
	route := routePhrase(r.Query)

	switch r.Query.Modifier {
	case inquiry.ModifierOnTime:
		return fmt.Sprintf("For flights %s, %.1f%% of %s arrived within %d minutes of schedule, with an average arrival delay of %.1f minutes.",
			route, a.Value*100, flights(a.SampleFlights), OnTimeThresholdMinutes, a.MeanDelay)
	case inquiry.ModifierDelayTrend:
		return fmt.Sprintf("For flights %s, the average departure delay was %.1f minutes across %s.",
			route, a.MeanDelay, flights(a.SampleFlights))
	default:
		return fmt.Sprintf("For flights %s, %s was %.2f across %s.",
			route, strings.ReplaceAll(a.Metric, "_", " "), a.Value, flights(a.SampleFlights))
	}
}

func formatClarification(r inquiry.ClarificationResult) string {
	switch r.Reason {
	case inquiry.ClarifyMissingEntity:
		switch r.Field {
		case "origin":
			return "Which airport are you flying from? Please include the origin airport (for example SFO) and ask again."
		case "destination":
			return "Which airport are you flying to? Please include the destination airport (for example JFK) and ask again."
		default:
			return fmt.Sprintf("I need the %s to answer that. Please rephrase your question with it included.", r.Field)
		}

	case inquiry.ClarifyInvalidInput:
		switch r.Field {
		case "flight_number":
			return fmt.Sprintf("%q doesn't look like a flight number. Please use the airline code and number, for example AA123.", r.Value)
		case "origin", "destination":
			if inquiry.ValidAirportCode(r.Value) {
				return fmt.Sprintf("The origin and destination are both %s. Please choose two different airports.", r.Value)
			}
			return fmt.Sprintf("%q isn't a valid airport code. Please use a three-letter code such as JFK.", r.Value)
		case "year":
			return fmt.Sprintf("I don't have data for the year %s. Please ask about a different year.", r.Value)
		default:
			return "Some of the details in your question don't look right. Please rephrase it."
		}

	default:
		return "I'm not sure what you're asking. Try something like \"What is the status of flight AA123?\" " +
			"or \"What are the cheapest flights from JFK to LAX?\""
	}
}

func formatFailure(r inquiry.FailureResult) string {
	var cf *inquiry.CollaboratorFailure
	if !errors.As(r.Err, &cf) {
		return "Sorry, I couldn't get an answer right now. Please try again later."
	}

	service := "the flight data service"
	switch cf.Collaborator {
	case inquiry.CollaboratorStatus:
		service = "the flight status service"
	case inquiry.CollaboratorAnalytics:
		service = "the flight history service"
	}

	switch cf.Kind {
	case inquiry.FailureNotFound:
		return "Sorry, I couldn't find that flight. Please check the flight number and try again."
	case inquiry.FailureAmbiguous:
		return "That flight number matches more than one flight. Please add the airline or travel date."
	case inquiry.FailureNoData:
		return noData
	case inquiry.FailureTimeout:
		return fmt.Sprintf("Sorry, %s is taking too long to respond. Please try again in a moment.", service)
	default:
		return fmt.Sprintf("Sorry, I couldn't reach %s right now. Please try again later.", service)
	}
}

func routePhrase(q inquiry.AnalyticsQuery) string {
	phrase := fmt.Sprintf("from %s to %s", q.Origin, q.Destination)
	if q.Year != 0 {
		phrase += fmt.Sprintf(" in %d", q.Year)
	}
	return phrase
}

func airport(name, iata string) string {
	switch {
	case name != "" && iata != "":
		return fmt.Sprintf("%s (%s)", name, iata)
	case name != "":
		return name
	case iata != "":
		return iata
	default:
		return "Unknown"
	}
}

func terminalGate(terminal, gate string) string {
	var parts []string
	if terminal != "" {
		parts = append(parts, "Terminal "+terminal)
	}
	if gate != "" {
		parts = append(parts, "Gate "+gate)
	}
	return strings.Join(parts, ", ")
}

func flights(n int) string {
	if n == 1 {
		return "1 flight"
	}
	return fmt.Sprintf("%d flights", n)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
