// Package grpc serves the travel assistant and its health status over gRPC.
//
// The Ask method uses google.protobuf.Struct for request and reply so no
// generated stubs are needed:
//
//	request:  {"query": "...", "session_id": "..."}
//	reply:    the same fields as the HTTP /query response
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/scttfrdmn/travelrouter/adapter/codec"
	"github.com/scttfrdmn/travelrouter/session"
)

// ServiceName is the gRPC service carrying Ask.
const ServiceName = "travelrouter.v1.Assistant"

// AskMethod is the full method name of Ask.
const AskMethod = "/" + ServiceName + "/Ask"

// Asker is the conversational backend.
type Asker interface {
	Ask(ctx context.Context, sessionID, utterance string) (session.Outcome, error)
}

// AssistantServer handles Ask calls.
type AssistantServer interface {
	Ask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var assistantServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AssistantServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ask", Handler: askHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "travelrouter/v1/assistant.proto",
}

func askHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AssistantServer).Ask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AskMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AssistantServer).Ask(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer exposes an Asker and the standard health service.
type GRPCServer struct {
	asker  Asker
	server *grpc.Server
	health *health.Server
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewGRPCServer creates a server. It reports SERVING once Serve is called.
func NewGRPCServer(asker Asker, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GRPCServer{
		asker:  asker,
		health: health.NewServer(),
		logger: logger.With("component", "grpc"),
	}
	s.server = grpc.NewServer(grpc.UnaryInterceptor(s.logCalls))

	healthpb.RegisterHealthServer(s.server, s.health)
	s.server.RegisterService(&assistantServiceDesc, s)
	s.SetServing(false)
	return s
}

// Serve accepts connections on ln until Stop.
func (s *GRPCServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.SetServing(true)
	s.logger.Info("gRPC server listening", "addr", ln.Addr().String())

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// SetServing flips the health status of the server and the Ask service.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Stop marks the server unhealthy and drains in-flight calls.
func (s *GRPCServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.health.Shutdown()
	s.server.GracefulStop()
	s.running = false
	s.logger.Info("gRPC server stopped")
}

// Ask implements AssistantServer.
func (s *GRPCServer) Ask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	query := fields["query"].GetStringValue()
	sessionID := fields["session_id"].GetStringValue()
	if _, ok := fields["query"]; !ok {
		return nil, status.Error(codes.InvalidArgument, "query is required")
	}

	out, err := s.asker.Ask(ctx, sessionID, query)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, status.Error(codes.DeadlineExceeded, "request timed out")
		case errors.Is(err, context.Canceled):
			return nil, status.Error(codes.Canceled, "request cancelled")
		default:
			s.logger.WarnContext(ctx, "ask failed", "error", err)
			return nil, status.Error(codes.Internal, "failed to answer query")
		}
	}

	resp := codec.NewQueryResponse(out.Reply, out.Resolved, out.SessionID)
	resp.Path = out.Decision.Path
	resp.Rule = out.Decision.Rule
	return structpb.NewStruct(responseFields(resp))
}

func responseFields(resp codec.QueryResponse) map[string]interface{} {
	m := map[string]interface{}{
		"response":      resp.Response,
		"intent_type":   resp.IntentType,
		"session_id":    resp.SessionID,
		"path":          resp.Path,
		"rule":          resp.Rule,
		"flight_number": nil,
		"origin":        nil,
		"destination":   nil,
	}
	if resp.FlightNumber != nil {
		m["flight_number"] = *resp.FlightNumber
	}
	if resp.Origin != nil {
		m["origin"] = *resp.Origin
	}
	if resp.Destination != nil {
		m["destination"] = *resp.Destination
	}
	return m
}

func (s *GRPCServer) logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.DebugContext(ctx, "gRPC call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}
