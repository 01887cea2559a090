package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/microproto/internal/core/api"
	"github.com/solatis/microproto/internal/core/auth"
	"github.com/solatis/microproto/internal/core/config"
	"github.com/solatis/microproto/internal/core/metrics"
	"github.com/solatis/microproto/internal/core/server"
	"github.com/solatis/microproto/internal/system"
	"github.com/solatis/microproto/internal/transport"
	"github.com/solatis/microproto/internal/web"
)

const grpcShutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the property system with its HTTP, WebSocket and gRPC surfaces",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "listen host")
	serveCmd.Flags().Int("http-port", 8080, "HTTP and WebSocket port")
	serveCmd.Flags().Int("grpc-port", 50051, "gRPC port")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("http-port") {
		cfg.Server.HTTPPort, _ = cmd.Flags().GetInt("http-port")
	}
	if cmd.Flags().Changed("grpc-port") {
		cfg.Server.GRPCPort, _ = cmd.Flags().GetInt("grpc-port")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	rt, err := openRuntime(ctx, cfg, log, system.WithMetrics(m))
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error().Err(err).Msg("close storage")
		}
	}()

	authenticator, err := newAuthenticator(rt)
	if err != nil {
		return err
	}
	if authenticator == nil {
		log.Warn().Msg("no HMAC secrets configured, API is unauthenticated")
	}

	hub := transport.NewHub(rt.sys,
		transport.WithLogger(log),
		transport.WithMetrics(m),
		transport.WithMaxClients(cfg.Server.MaxClients),
		transport.WithMaxPacket(cfg.Server.MaxPacketSize),
		transport.WithBroadcastInterval(cfg.Server.BroadcastInterval),
	)

	service, err := api.NewPropertyService(hub, log)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg.Server, service, authenticator)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	webOpts := []web.Option{
		web.WithLogger(log),
		web.WithGatherer(promReg),
		web.WithMaxPacket(cfg.Server.MaxPacketSize),
	}
	if authenticator != nil {
		webOpts = append(webOpts, web.WithAuth(authenticator.Middleware))
	}
	webServer := web.NewServer(rt.ctrl, hub, webOpts...)

	log.Info().
		Str("version", Version).
		Str("http", cfg.Server.HTTPAddr()).
		Str("grpc", cfg.Server.GRPCAddr()).
		Int("properties", rt.sys.Count()).
		Msg("starting microproto")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.sys.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return webServer.Serve(gctx, cfg.Server.HTTPAddr()) })
	g.Go(func() error { return grpcServer.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grpcShutdownTimeout)
		defer cancel()
		if err := grpcServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("grpc shutdown")
		}
		return nil
	})
	return g.Wait()
}

// newAuthenticator enables API keys when HMAC secrets are configured. Keys
// live in the SQL store.
func newAuthenticator(rt *runtime) (*auth.Authenticator, error) {
	secrets, err := config.HMACSecrets()
	if err != nil {
		return nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return nil, nil
	}
	if rt.backend.Queries == nil {
		return nil, fmt.Errorf("API keys need a SQL storage URL (unset %s_HMAC_SECRET to run without authentication)", config.EnvPrefix)
	}
	return auth.NewAuthenticator(secrets, rt.backend.Queries), nil
}
