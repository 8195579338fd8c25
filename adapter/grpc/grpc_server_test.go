package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/scttfrdmn/travelrouter/classifier"
	"github.com/scttfrdmn/travelrouter/inquiry"
	"github.com/scttfrdmn/travelrouter/session"
)

type fakeAsker struct {
	err       error
	gotQuery  string
	gotSessID string
}

func (f *fakeAsker) Ask(ctx context.Context, sessionID, utterance string) (session.Outcome, error) {
	f.gotQuery, f.gotSessID = utterance, sessionID
	if f.err != nil {
		return session.Outcome{}, f.err
	}
	return session.Outcome{
		SessionID: "sess-1",
		Reply:     "Flight AA123 operated by American Airlines",
		Decision:  classifier.Decision{Path: classifier.PathRules, Rule: classifier.RuleFlightStatus},
		Resolved:  inquiry.FlightStatus{FlightNumber: "AA123"},
	}, nil
}

func startServer(t *testing.T, asker Asker) (*GRPCServer, *grpc.ClientConn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewGRPCServer(asker, nil)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(ln.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, conn
}

func waitServing(t *testing.T, client healthpb.HealthClient, service string) {
	t.Helper()
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 20*time.Millisecond)
}

func TestGRPCServer_Health(t *testing.T) {
	srv, conn := startServer(t, &fakeAsker{})
	client := healthpb.NewHealthClient(conn)

	waitServing(t, client, "")
	waitServing(t, client, ServiceName)

	srv.SetServing(false)
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestGRPCServer_Ask(t *testing.T) {
	asker := &fakeAsker{}
	_, conn := startServer(t, asker)
	waitServing(t, healthpb.NewHealthClient(conn), ServiceName)

	req, err := structpb.NewStruct(map[string]interface{}{
		"query":      "status of AA123",
		"session_id": "sess-1",
	})
	require.NoError(t, err)

	resp := new(structpb.Struct)
	require.NoError(t, conn.Invoke(context.Background(), AskMethod, req, resp))

	assert.Equal(t, "status of AA123", asker.gotQuery)
	assert.Equal(t, "sess-1", asker.gotSessID)

	fields := resp.AsMap()
	assert.Equal(t, "Flight AA123 operated by American Airlines", fields["response"])
	assert.Equal(t, "flight_status", fields["intent_type"])
	assert.Equal(t, "AA123", fields["flight_number"])
	assert.Nil(t, fields["origin"])
	assert.Equal(t, "rules", fields["path"])
	assert.Equal(t, "flight_status", fields["rule"])
}

func TestGRPCServer_AskErrors(t *testing.T) {
	tests := []struct {
		name string
		req  map[string]interface{}
		err  error
		want codes.Code
	}{
		{"missing query", map[string]interface{}{"session_id": "x"}, nil, codes.InvalidArgument},
		{"deadline", map[string]interface{}{"query": "q"}, context.DeadlineExceeded, codes.DeadlineExceeded},
		{"internal", map[string]interface{}{"query": "q"}, errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conn := startServer(t, &fakeAsker{err: tt.err})
			waitServing(t, healthpb.NewHealthClient(conn), ServiceName)

			req, err := structpb.NewStruct(tt.req)
			require.NoError(t, err)

			err = conn.Invoke(context.Background(), AskMethod, req, new(structpb.Struct))
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Code(err))
			assert.NotContains(t, err.Error(), "boom")
		})
	}
}
