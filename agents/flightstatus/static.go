package flightstatus

import (
	"context"
	"fmt"
	"sync"

	"github.com/scttfrdmn/travelrouter/inquiry"
)

// StaticProvider serves status records from a fixed table. It backs offline
// runs when no AviationStack key is configured.
type StaticProvider struct {
	mu      sync.RWMutex
	records map[string]inquiry.StatusRecord
}

// NewStaticProvider creates a provider over records, keyed by flight number.
func NewStaticProvider(records ...inquiry.StatusRecord) *StaticProvider {
	p := &StaticProvider{records: make(map[string]inquiry.StatusRecord, len(records))}
	for _, r := range records {
		p.Put(r)
	}
	return p
}

// Put adds or replaces a record.
func (p *StaticProvider) Put(r inquiry.StatusRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[inquiry.NormalizeFlightNumber(r.FlightNumber)] = r
}

// Lookup returns the record for flightNumber or ErrNotFound.
func (p *StaticProvider) Lookup(ctx context.Context, flightNumber string) (inquiry.StatusRecord, error) {
	if err := ctx.Err(); err != nil {
		return inquiry.StatusRecord{}, err
	}
	key := inquiry.NormalizeFlightNumber(flightNumber)

	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.records[key]
	if !ok {
		return inquiry.StatusRecord{}, fmt.Errorf("flight %s: %w", key, inquiry.ErrNotFound)
	}
	return r, nil
}

// SampleRecords are the flights served by the offline provider.
func SampleRecords() []inquiry.StatusRecord {
	return []inquiry.StatusRecord{
		{
			FlightNumber:       "AA123",
			Airline:            "American Airlines",
			DepartureAirport:   "John F Kennedy International",
			DepartureIATA:      "JFK",
			ArrivalAirport:     "Los Angeles International",
			ArrivalIATA:        "LAX",
			Status:             "active",
			ScheduledDeparture: "2024-05-01T08:00:00+00:00",
			ScheduledArrival:   "2024-05-01T11:25:00+00:00",
			DepartureDelay:     14,
			DepartureTerminal:  "8",
			DepartureGate:      "B12",
			ArrivalTerminal:    "4",
		},
		{
			FlightNumber:       "UA456",
			Airline:            "United Airlines",
			DepartureAirport:   "San Francisco International",
			DepartureIATA:      "SFO",
			ArrivalAirport:     "Denver International",
			ArrivalIATA:        "DEN",
			Status:             "scheduled",
			ScheduledDeparture: "2024-05-01T13:10:00+00:00",
			ScheduledArrival:   "2024-05-01T16:35:00+00:00",
			DepartureTerminal:  "3",
			DepartureGate:      "F7",
		},
		{
			FlightNumber:       "DL88",
			Airline:            "Delta Air Lines",
			DepartureAirport:   "Hartsfield-Jackson Atlanta International",
			DepartureIATA:      "ATL",
			ArrivalAirport:     "Charles de Gaulle",
			ArrivalIATA:        "CDG",
			Status:             "landed",
			ScheduledDeparture: "2024-04-30T22:05:00+00:00",
			ScheduledArrival:   "2024-05-01T12:20:00+00:00",
			ArrivalDelay:       32,
			ArrivalTerminal:    "2E",
			ArrivalGate:        "K41",
		},
	}
}
