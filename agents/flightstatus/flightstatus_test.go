package flightstatus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adaptererrors "github.com/scttfrdmn/travelrouter/adapter/errors"
	"github.com/scttfrdmn/travelrouter/inquiry"
	"github.com/scttfrdmn/travelrouter/middleware"
)

const flightBody = `{
  "pagination": {"limit": 100, "offset": 0, "count": 1, "total": 1},
  "data": [{
    "flight_date": "2024-05-01",
    "flight_status": "active",
    "departure": {"airport": "John F Kennedy International", "iata": "JFK", "terminal": "8", "gate": "B12", "delay": 14, "scheduled": "2024-05-01T08:00:00+00:00"},
    "arrival": {"airport": "Los Angeles International", "iata": "LAX", "terminal": "4", "gate": null, "delay": null, "scheduled": "2024-05-01T11:25:00+00:00"},
    "airline": {"name": "American Airlines", "iata": "AA"},
    "flight": {"number": "123", "iata": "AA123"}
  }]
}`

func testRetry() middleware.RetryConfig {
	return middleware.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *AviationStackClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAviationStackClient(Config{APIKey: "test-key", BaseURL: srv.URL, Retry: testRetry()})
}

func TestAviationStackClient_Lookup(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/flights", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("access_key"))
		assert.Equal(t, "123", r.URL.Query().Get("flight_number"))
		assert.Equal(t, "AA", r.URL.Query().Get("airline_iata"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(flightBody))
	})

	rec, err := client.Lookup(context.Background(), "aa 123")
	require.NoError(t, err)

	assert.Equal(t, "AA123", rec.FlightNumber)
	assert.Equal(t, "American Airlines", rec.Airline)
	assert.Equal(t, "JFK", rec.DepartureIATA)
	assert.Equal(t, "LAX", rec.ArrivalIATA)
	assert.Equal(t, "active", rec.Status)
	assert.Equal(t, 14, rec.DepartureDelay)
	assert.Equal(t, 0, rec.ArrivalDelay)
	assert.Equal(t, "B12", rec.DepartureGate)
	assert.Empty(t, rec.ArrivalGate)
}

func TestAviationStackClient_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	})

	_, err := client.Lookup(context.Background(), "ZZ9999")
	assert.ErrorIs(t, err, inquiry.ErrNotFound)
}

func TestAviationStackClient_APIError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"error": {"code": "invalid_access_key", "message": "You have not supplied a valid API Access Key."}}`))
	})

	_, err := client.Lookup(context.Background(), "AA123")
	require.Error(t, err)

	var failure *inquiry.CollaboratorFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, inquiry.FailureUpstream, failure.Kind)

	var protoErr *adaptererrors.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "invalid_access_key", protoErr.Code)
	assert.Equal(t, int32(1), calls.Load(), "API errors are not retried")
}

func TestAviationStackClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(flightBody))
	})

	rec, err := client.Lookup(context.Background(), "AA123")
	require.NoError(t, err)
	assert.Equal(t, "AA123", rec.FlightNumber)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAviationStackClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Lookup(context.Background(), "AA123")
	require.Error(t, err)
	assert.True(t, adaptererrors.IsRetryable(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestAviationStackClient_ClientErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.Lookup(context.Background(), "AA123")
	var failure *inquiry.CollaboratorFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, inquiry.FailureUpstream, failure.Kind)
}

func TestAviationStackClient_RejectsInvalidFlightNumber(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	})

	_, err := client.Lookup(context.Background(), "12345")
	var invalid *inquiry.InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

type countingProvider struct {
	calls atomic.Int32
	rec   inquiry.StatusRecord
	err   error
}

func (p *countingProvider) Lookup(ctx context.Context, flightNumber string) (inquiry.StatusRecord, error) {
	p.calls.Add(1)
	if p.err != nil {
		return inquiry.StatusRecord{}, p.err
	}
	return p.rec, nil
}

func TestCachedProvider_Hit(t *testing.T) {
	next := &countingProvider{rec: inquiry.StatusRecord{FlightNumber: "AA123", Status: "active"}}
	cached := NewCachedProvider(next, 10, time.Minute)

	for i := 0; i < 3; i++ {
		rec, err := cached.Lookup(context.Background(), "aa123")
		require.NoError(t, err)
		assert.Equal(t, "active", rec.Status)
	}

	assert.Equal(t, int32(1), next.calls.Load())
	hits, misses := cached.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	next := &countingProvider{err: errors.Join(inquiry.ErrNotFound)}
	cached := NewCachedProvider(next, 10, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := cached.Lookup(context.Background(), "AA999")
		assert.ErrorIs(t, err, inquiry.ErrNotFound)
	}
	assert.Equal(t, int32(2), next.calls.Load())
	assert.Equal(t, 0, cached.Len())
}

func TestCachedProvider_Expires(t *testing.T) {
	next := &countingProvider{rec: inquiry.StatusRecord{FlightNumber: "AA123"}}
	cached := NewCachedProvider(next, 10, 20*time.Millisecond)

	_, err := cached.Lookup(context.Background(), "AA123")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = cached.Lookup(context.Background(), "AA123")
	require.NoError(t, err)

	assert.Equal(t, int32(2), next.calls.Load())
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(SampleRecords()...)

	rec, err := p.Lookup(context.Background(), "ua 456")
	require.NoError(t, err)
	assert.Equal(t, "United Airlines", rec.Airline)

	_, err = p.Lookup(context.Background(), "XX1")
	assert.ErrorIs(t, err, inquiry.ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Lookup(ctx, "UA456")
	assert.ErrorIs(t, err, context.Canceled)
}
