package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	grpcadapter "github.com/scttfrdmn/travelrouter/adapter/grpc"
	httpadapter "github.com/scttfrdmn/travelrouter/adapter/http"
)

const shutdownTimeout = 10 * time.Second

var (
	serveHTTPAddr string
	serveGRPCAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant over HTTP, WebSocket and gRPC",
	Long: `Serve the assistant.

  POST   /query            {"query": "...", "session_id": "..."}
  DELETE /sessions/{id}    end a conversation
  GET    /ws               chat over WebSocket
  GET    /health           liveness
  GET    /metrics          Prometheus metrics (telemetry.metrics)

gRPC exposes travelrouter.v1.Assistant/Ask and grpc.health.v1.Health. An empty
address disables that listener.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "override server.http_addr")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc", "", "override server.grpc_addr")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("http") {
		cfg.Server.HTTPAddr = serveHTTPAddr
	}
	if cmd.Flags().Changed("grpc") {
		cfg.Server.GRPCAddr = serveGRPCAddr
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.sessions.Run(gctx, cfg.Session.SweepInterval)
		return nil
	})

	if cfg.Server.HTTPAddr != "" {
		var metrics http.Handler
		if cfg.Telemetry.Metrics {
			metrics = promhttp.Handler()
		}
		srv := httpadapter.NewServer(a.assistant, httpadapter.Config{
			Addr:    cfg.Server.HTTPAddr,
			Version: version,
			Metrics: metrics,
			Logger:  logger,
		})
		ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.HTTPAddr, err)
		}
		g.Go(func() error { return srv.Serve(ln) })
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Server.GRPCAddr != "" {
		srv := grpcadapter.NewGRPCServer(a.assistant, logger)
		ln, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
		}
		g.Go(func() error { return srv.Serve(ln) })
		g.Go(func() error {
			<-gctx.Done()
			srv.Stop()
			return nil
		})
	}

	logger.Info("travelrouter serving",
		"version", version,
		"http", cfg.Server.HTTPAddr,
		"grpc", cfg.Server.GRPCAddr,
	)

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("travelrouter stopped")
	return nil
}
