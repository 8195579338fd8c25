// Package flightstatus provides live flight status lookups.
package flightstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	adaptererrors "github.com/scttfrdmn/travelrouter/adapter/errors"
	"github.com/scttfrdmn/travelrouter/inquiry"
	"github.com/scttfrdmn/travelrouter/middleware"
)

// DefaultBaseURL is the AviationStack v1 API root.
const DefaultBaseURL = "http://api.aviationstack.com/v1"

// Config configures an AviationStackClient.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Retry      middleware.RetryConfig
	Logger     *slog.Logger
}

// AviationStackClient looks up flights through the AviationStack REST API.
type AviationStackClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	retry   middleware.RetryConfig
	logger  *slog.Logger
}

// NewAviationStackClient creates a client. Transport failures and 5xx replies
// are retried per cfg.Retry; API error objects are not.
func NewAviationStackClient(cfg Config) *AviationStackClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Retry.ShouldRetry = adaptererrors.IsRetryable

	return &AviationStackClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.HTTPClient,
		retry:   cfg.Retry,
		logger:  cfg.Logger.With("component", "aviationstack"),
	}
}

type flightsResponse struct {
	Error *apiError    `json:"error"`
	Data  []flightData `json:"data"`
}

type apiError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

type flightData struct {
	FlightStatus string       `json:"flight_status"`
	Departure    flightPoint  `json:"departure"`
	Arrival      flightPoint  `json:"arrival"`
	Airline      airlineInfo  `json:"airline"`
	Flight       flightNumber `json:"flight"`
}

type flightPoint struct {
	Airport   string `json:"airport"`
	IATA      string `json:"iata"`
	Terminal  string `json:"terminal"`
	Gate      string `json:"gate"`
	Delay     *int   `json:"delay"`
	Scheduled string `json:"scheduled"`
}

type airlineInfo struct {
	Name string `json:"name"`
	IATA string `json:"iata"`
}

type flightNumber struct {
	Number string `json:"number"`
	IATA   string `json:"iata"`
}

// Lookup returns the first flight matching flightNumber, or ErrNotFound.
func (c *AviationStackClient) Lookup(ctx context.Context, flightNumber string) (inquiry.StatusRecord, error) {
	flightNumber = inquiry.NormalizeFlightNumber(flightNumber)
	if !inquiry.ValidFlightNumber(flightNumber) {
		return inquiry.StatusRecord{}, &inquiry.InvalidInputError{Field: "flight_number", Value: flightNumber}
	}
	airline, digits := flightNumber[:2], flightNumber[2:]

	params := url.Values{}
	params.Set("access_key", c.apiKey)
	params.Set("flight_number", digits)
	params.Set("airline_iata", airline)
	endpoint := c.baseURL + "/flights?" + params.Encode()

	resp, err := middleware.WithRetry(ctx, c.retry, func(ctx context.Context) (*flightsResponse, error) {
		return c.get(ctx, endpoint)
	})
	if err != nil {
		return inquiry.StatusRecord{}, err
	}

	if resp.Error != nil {
		code := strings.Trim(string(resp.Error.Code), `"`)
		return inquiry.StatusRecord{}, &inquiry.CollaboratorFailure{
			Collaborator: inquiry.CollaboratorStatus,
			Kind:         inquiry.FailureUpstream,
			Cause:        adaptererrors.NewProtocolError(code, resp.Error.Message, nil),
		}
	}
	if len(resp.Data) == 0 {
		return inquiry.StatusRecord{}, fmt.Errorf("flight %s: %w", flightNumber, inquiry.ErrNotFound)
	}
	if len(resp.Data) > 1 {
		c.logger.DebugContext(ctx, "multiple flights matched, using the first",
			"flight", flightNumber, "matches", len(resp.Data))
	}

	return toRecord(flightNumber, resp.Data[0]), nil
}

func (c *AviationStackClient) get(ctx context.Context, endpoint string) (*flightsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, adaptererrors.NewConnectionError("failed to reach aviationstack", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, adaptererrors.NewConnectionError("failed to read aviationstack response", err)
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, adaptererrors.NewConnectionError(fmt.Sprintf("HTTP error %d", httpResp.StatusCode), nil)
	}

	var out flightsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &inquiry.CollaboratorFailure{
			Collaborator: inquiry.CollaboratorStatus,
			Kind:         inquiry.FailureUpstream,
			Cause:        adaptererrors.NewProtocolError(fmt.Sprint(httpResp.StatusCode), "undecodable response", nil),
		}
	}
	if out.Error == nil && httpResp.StatusCode >= http.StatusBadRequest {
		out.Error = &apiError{
			Code:    json.RawMessage(fmt.Sprintf("%q", fmt.Sprint(httpResp.StatusCode))),
			Message: http.StatusText(httpResp.StatusCode),
		}
	}
	return &out, nil
}

func toRecord(requested string, f flightData) inquiry.StatusRecord {
	number := strings.ToUpper(f.Flight.IATA)
	if number == "" {
		number = requested
	}
	return inquiry.StatusRecord{
		FlightNumber:       number,
		Airline:            f.Airline.Name,
		DepartureAirport:   f.Departure.Airport,
		DepartureIATA:      f.Departure.IATA,
		ArrivalAirport:     f.Arrival.Airport,
		ArrivalIATA:        f.Arrival.IATA,
		Status:             f.FlightStatus,
		ScheduledDeparture: f.Departure.Scheduled,
		ScheduledArrival:   f.Arrival.Scheduled,
		DepartureDelay:     minutes(f.Departure.Delay),
		ArrivalDelay:       minutes(f.Arrival.Delay),
		DepartureTerminal:  f.Departure.Terminal,
		DepartureGate:      f.Departure.Gate,
		ArrivalTerminal:    f.Arrival.Terminal,
		ArrivalGate:        f.Arrival.Gate,
	}
}

func minutes(delay *int) int {
	if delay == nil {
		return 0
	}
	return *delay
}
