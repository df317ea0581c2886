package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/triage-ai/warden/internal/api"
	"github.com/triage-ai/warden/internal/auth"
	"github.com/triage-ai/warden/internal/config"
	"github.com/triage-ai/warden/internal/metrics"
	"github.com/triage-ai/warden/internal/server"
	"github.com/triage-ai/warden/internal/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC servers",
	Long: `Start the validation service.

HTTP (server.http_addr):
  POST /v1/validate   validate one input
  GET  /v1/events     a user's recent security events
  GET  /healthz       liveness and enabled modules
  GET  /metrics       Prometheus metrics

gRPC (server.grpc_addr, optional):
  warden.v1.Warden/Validate and grpc.health.v1.Health`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	}, logger)
	if err != nil {
		return err
	}

	rec := metrics.New(nil)
	a, err := buildApp(ctx, cfg, logger, appOptions{persist: true, tracer: tp, metrics: rec})
	if err != nil {
		return err
	}

	authenticator, err := newAuthenticator(cfg, a, logger)
	if err != nil {
		_ = a.close(context.Background())
		return err
	}

	logger.Info("starting warden",
		zap.String("version", Version),
		zap.Strings("modules", a.orch.Modules()),
		zap.Strings("backends", cfg.Storage.Backends),
		zap.Bool("auth", authenticator != nil),
	)

	httpServer := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: api.NewRouter(&api.Dependencies{
			Validator: a.orch,
			Auth:      authenticator,
			Events:    a.events,
			Metrics:   rec,
			Logger:    logger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var (
		grpcServer *grpc.Server
		grpcSvc    *server.Server
	)
	if cfg.Server.GRPCAddr != "" {
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(server.UnaryLogging(logger)))
		grpcSvc = server.New(a.orch, authenticator, logger)
		grpcSvc.Register(grpcServer)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			logger.Info("grpc server listening", zap.String("addr", cfg.Server.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.sweepOffenders(gctx, sweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if grpcSvc != nil {
			grpcSvc.Shutdown()
			grpcServer.GracefulStop()
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := a.close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("draining sinks: %w", err))
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	logger.Info("warden stopped", zap.Error(err))
	return err
}

// newAuthenticator returns nil when no API keys are configured.
func newAuthenticator(cfg *config.Config, a *app, logger *zap.Logger) (auth.Authenticator, error) {
	switch {
	case cfg.Server.PostgresAPIKeys:
		if a.pg == nil {
			return nil, errors.New("postgres_api_keys requires a postgres store")
		}
		return auth.NewStoreAuthenticator(a.pg.Keys(), auth.DefaultCacheTTL, logger), nil
	case len(cfg.Server.APIKeyHashes) > 0:
		return auth.NewHashAuthenticator(cfg.Server.APIKeyHashes, auth.DefaultCacheTTL, logger), nil
	default:
		return nil, nil
	}
}
