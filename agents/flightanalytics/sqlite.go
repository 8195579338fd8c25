// Package flightanalytics answers historical route questions from a local
// flight dataset.
package flightanalytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/scttfrdmn/travelrouter/inquiry"
)

const (
	// CheapestLimit is the number of fares returned for a cheapest query.
	CheapestLimit = 5

	// OnTimeThresholdMinutes is the arrival delay still counted as on time.
	OnTimeThresholdMinutes = 15

	dateLayout = "2006-01-02"
)

// Flight is one row of the dataset.
type Flight struct {
	Carrier       string
	FlightNumber  string
	Origin        string
	Destination   string
	TotalFare     float64
	DepartureDate time.Time
	DepDelay      int // minutes
	ArrDelay      int // minutes
}

// SQLiteProvider serves analytics queries from a SQLite flights table.
type SQLiteProvider struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteProvider opens (or creates) the dataset at path.
func NewSQLiteProvider(path string, logger *slog.Logger) (*SQLiteProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "flightanalytics.sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	p := &SQLiteProvider{db: db, logger: logger}
	if err := p.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("flight dataset opened", "path", path)
	return p, nil
}

func (p *SQLiteProvider) createSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS flights (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			carrier TEXT NOT NULL,
			flight_number TEXT NOT NULL,
			origin TEXT NOT NULL,
			destination TEXT NOT NULL,
			total_fare REAL NOT NULL,
			departure_date TEXT NOT NULL,
			year INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			dep_delay_minutes INTEGER NOT NULL DEFAULT 0,
			arr_delay_minutes INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_flights_route ON flights(origin, destination, year);
	`)
	return err
}

// Insert adds flights in a single transaction.
func (p *SQLiteProvider) Insert(ctx context.Context, flights ...Flight) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flights (carrier, flight_number, origin, destination, total_fare,
			departure_date, year, day_of_week, dep_delay_minutes, arr_delay_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range flights {
		d := f.DepartureDate.UTC()
		// 1=Sunday .. 7=Saturday
		dow := int(d.Weekday()) + 1
		if _, err := stmt.ExecContext(ctx, f.Carrier, f.FlightNumber, f.Origin, f.Destination,
			f.TotalFare, d.Format(dateLayout), d.Year(), dow, f.DepDelay, f.ArrDelay); err != nil {
			return fmt.Errorf("inserting flight %s: %w", f.FlightNumber, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of rows in the dataset.
func (p *SQLiteProvider) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flights`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Query answers q. A zero year selects the latest year on record for the
// route. Unrecognised modifiers are answered as cheapest.
func (p *SQLiteProvider) Query(ctx context.Context, q inquiry.AnalyticsQuery) (inquiry.AnalyticsAnswer, error) {
	year := q.Year
	if year == 0 {
		latest, err := p.latestYear(ctx, q.Origin, q.Destination)
		if err != nil {
			return inquiry.AnalyticsAnswer{}, err
		}
		year = latest
	}

	var (
		answer inquiry.AnalyticsAnswer
		err    error
	)
	switch q.Modifier {
	case inquiry.ModifierDayOfWeek:
		answer.Days, err = p.dayOfWeek(ctx, q.Origin, q.Destination, year)
	case inquiry.ModifierDelayTrend:
		answer.Days, err = p.delayTrend(ctx, q.Origin, q.Destination, year)
	case inquiry.ModifierOnTime:
		answer.Aggregate, err = p.onTime(ctx, q.Origin, q.Destination, year)
	default:
		if q.Modifier != inquiry.ModifierCheapest && q.Modifier != "" {
			p.logger.DebugContext(ctx, "unrecognised modifier, answering as cheapest", "modifier", q.Modifier)
		}
		answer.Fares, err = p.cheapest(ctx, q.Origin, q.Destination, year)
	}
	if err != nil {
		return inquiry.AnalyticsAnswer{}, err
	}
	if len(answer.Fares) == 0 && len(answer.Days) == 0 && answer.Aggregate == nil {
		return inquiry.AnalyticsAnswer{}, fmt.Errorf("%s-%s in %d: %w", q.Origin, q.Destination, year, inquiry.ErrNoData)
	}
	answer.Year = year
	return answer, nil
}

func (p *SQLiteProvider) latestYear(ctx context.Context, origin, destination string) (int, error) {
	var year sql.NullInt64
	err := p.db.QueryRowContext(ctx,
		`SELECT MAX(year) FROM flights WHERE origin = ? AND destination = ?`,
		origin, destination).Scan(&year)
	if err != nil {
		return 0, fmt.Errorf("finding latest year: %w", err)
	}
	if !year.Valid {
		return 0, fmt.Errorf("%s-%s: %w", origin, destination, inquiry.ErrNoData)
	}
	return int(year.Int64), nil
}

func (p *SQLiteProvider) cheapest(ctx context.Context, origin, destination string, year int) ([]inquiry.FareRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT carrier, flight_number, origin, destination, total_fare, departure_date
		FROM flights
		WHERE origin = ? AND destination = ? AND year = ?
		ORDER BY total_fare ASC, flight_number ASC, departure_date ASC
		LIMIT ?`, origin, destination, year, CheapestLimit)
	if err != nil {
		return nil, fmt.Errorf("querying fares: %w", err)
	}
	defer rows.Close()

	var fares []inquiry.FareRecord
	for rows.Next() {
		var (
			f    inquiry.FareRecord
			date string
		)
		if err := rows.Scan(&f.Carrier, &f.FlightNumber, &f.Origin, &f.Destination, &f.TotalFare, &date); err != nil {
			return nil, fmt.Errorf("scanning fare: %w", err)
		}
		if f.DepartureDate, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parsing departure date %q: %w", date, err)
		}
		fares = append(fares, f)
	}
	return fares, rows.Err()
}

func (p *SQLiteProvider) dayOfWeek(ctx context.Context, origin, destination string, year int) ([]inquiry.DayRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT day_of_week, AVG(total_fare), COUNT(*)
		FROM flights
		WHERE origin = ? AND destination = ? AND year = ?
		GROUP BY day_of_week
		ORDER BY day_of_week`, origin, destination, year)
	if err != nil {
		return nil, fmt.Errorf("querying fares by day: %w", err)
	}
	defer rows.Close()

	var days []inquiry.DayRecord
	for rows.Next() {
		var d inquiry.DayRecord
		if err := rows.Scan(&d.DayOfWeek, &d.AvgFare, &d.NumFlights); err != nil {
			return nil, fmt.Errorf("scanning day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (p *SQLiteProvider) delayTrend(ctx context.Context, origin, destination string, year int) ([]inquiry.DayRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT day_of_week, AVG(dep_delay_minutes), AVG(total_fare), COUNT(*)
		FROM flights
		WHERE origin = ? AND destination = ? AND year = ?
		GROUP BY day_of_week
		ORDER BY day_of_week`, origin, destination, year)
	if err != nil {
		return nil, fmt.Errorf("querying delays by day: %w", err)
	}
	defer rows.Close()

	var days []inquiry.DayRecord
	for rows.Next() {
		var d inquiry.DayRecord
		if err := rows.Scan(&d.DayOfWeek, &d.AvgDelay, &d.AvgFare, &d.NumFlights); err != nil {
			return nil, fmt.Errorf("scanning day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (p *SQLiteProvider) onTime(ctx context.Context, origin, destination string, year int) (*inquiry.AggregateRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT arr_delay_minutes
		FROM flights
		WHERE origin = ? AND destination = ? AND year = ?`, origin, destination, year)
	if err != nil {
		return nil, fmt.Errorf("querying arrival delays: %w", err)
	}
	defer rows.Close()

	var delays []float64
	onTime := 0
	for rows.Next() {
		var delay int
		if err := rows.Scan(&delay); err != nil {
			return nil, fmt.Errorf("scanning delay: %w", err)
		}
		if delay <= OnTimeThresholdMinutes {
			onTime++
		}
		delays = append(delays, float64(delay))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(delays) == 0 {
		return nil, nil
	}

	return &inquiry.AggregateRecord{
		Metric:        "on_time_rate",
		Value:         float64(onTime) / float64(len(delays)),
		MeanDelay:     stat.Mean(delays, nil),
		SampleFlights: len(delays),
	}, nil
}

// Close closes the database.
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}
