package flightanalytics

import (
	"context"
	"fmt"
	"time"
)

type sampleRoute struct {
	origin, destination string
	baseFare            float64
	carriers            []string
}

var sampleRoutes = []sampleRoute{
	{"JFK", "LAX", 240, []string{"AA", "DL", "B6"}},
	{"LAX", "JFK", 250, []string{"AA", "DL", "B6"}},
	{"SFO", "JFK", 260, []string{"UA", "B6"}},
	{"JFK", "SFO", 255, []string{"UA", "B6"}},
	{"LAX", "ORD", 190, []string{"AA", "UA"}},
	{"ORD", "LAX", 185, []string{"AA", "UA"}},
	{"BOS", "MIA", 150, []string{"AA", "B6"}},
	{"ORD", "ATL", 140, []string{"DL", "WN"}},
	{"SFO", "DEN", 130, []string{"UA", "WN"}},
	{"ATL", "CDG", 720, []string{"DL", "AF"}},
}

var sampleYears = []int{2022, 2023}

// weekday fare adjustment, Sunday first
var dayPremium = [7]float64{35, 10, -20, -25, 5, 45, -10}

// SampleFlights generates the deterministic sample dataset.
func SampleFlights() []Flight {
	var flights []Flight
	for ri, r := range sampleRoutes {
		for _, year := range sampleYears {
			start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			for ci, carrier := range r.carriers {
				number := fmt.Sprintf("%s%d", carrier, 100+ri*10+ci)
				for day := ci; day < 365; day += 5 {
					date := start.AddDate(0, 0, day)
					spread := float64((day*37+ci*53+ri*11)%90) - 30
					dep := (day*13+ci*7+ri*3)%45 - 5
					arr := dep + (day*11)%15 - 7
					flights = append(flights, Flight{
						Carrier:       carrier,
						FlightNumber:  number,
						Origin:        r.origin,
						Destination:   r.destination,
						TotalFare:     r.baseFare + dayPremium[date.Weekday()] + spread + float64(year-2022)*12,
						DepartureDate: date,
						DepDelay:      dep,
						ArrDelay:      arr,
					})
				}
			}
		}
	}
	return flights
}

// Seed loads the sample dataset into an empty table. It returns the number of
// rows inserted, which is zero when the table already has data.
func (p *SQLiteProvider) Seed(ctx context.Context) (int, error) {
	n, err := p.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting flights: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	flights := SampleFlights()
	if err := p.Insert(ctx, flights...); err != nil {
		return 0, err
	}
	p.logger.Info("seeded sample flights", "rows", len(flights))
	return len(flights), nil
}
