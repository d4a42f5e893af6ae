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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	geoGrpc "github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/grpc"
	geoHttp "github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/http"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/importer"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/metrics"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

type serveOptions struct {
	httpHostPort string
	grpcHostPort string
}

// bind registers the host/port flags; flags win over the environment.
func (o *serveOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.httpHostPort, "http", "", "HTTP listen address (overrides "+common.EnvKeyHttpHostPort+")")
	cmd.Flags().StringVar(&o.grpcHostPort, "grpc", "", "gRPC listen address (overrides "+common.EnvKeyGrpcHostPort+", empty disables gRPC)")
}

func (o serveOptions) resolve() serveOptions {
	if o.httpHostPort == "" {
		o.httpHostPort = common.EnvString(common.EnvKeyHttpHostPort, defaultHttpHostPort)
	}
	if o.grpcHostPort == "" {
		o.grpcHostPort = common.EnvString(common.EnvKeyGrpcHostPort, "")
	}
	return o
}

func bootstrapAdmin(ctx context.Context, core *engine.Engine) error {
	email := common.EnvString(common.EnvKeyAdminEmail, "")
	password := common.EnvString(common.EnvKeyAdminPassword, "")
	if email == "" || password == "" {
		return nil
	}

	_, created, err := core.Auth.EnsureUser(ctx, email, password, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		common.GetLogger().Info("Bootstrap admin created", zap.String("email", email))
	}
	return nil
}

func pruneLimiters(ctx context.Context, stores ...*engine.RateLimiterStore) {
	ticker := time.NewTicker(limiterIdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, store := range stores {
				if removed := store.Prune(limiterIdleTimeout); removed > 0 {
					common.GetLogger().Debug("Pruned idle limiters", zap.Int("removed", removed))
				}
			}
		}
	}
}

func runServe(parent context.Context, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts = opts.resolve()
	logger := common.GetLogger()

	defaultRate, defaultBurst, err := loadLimiterDefaults()
	if err != nil {
		return err
	}

	core, closePublisher, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer closePublisher()

	if err := bootstrapAdmin(ctx, core); err != nil {
		return err
	}

	metrics.Register()

	httpLimiters := engine.NewRateLimiterStore(defaultRate, defaultBurst)
	grpcLimiters := engine.NewRateLimiterStore(defaultRate, defaultBurst)
	go pruneLimiters(ctx, httpLimiters, grpcLimiters)

	errCh := make(chan error, 2)

	if opts.grpcHostPort != "" {
		geoServer := &geoGrpc.GeoAlertServer{
			Engine:           core,
			RateLimiterStore: grpcLimiters,
		}
		s := geoServer.NewServer()
		logger.Info("gRPC server created with:",
			zap.String("default_limiter",
				fmt.Sprintf("{\"default_rate\": %v, \"default_burst\": %v}", defaultRate, defaultBurst)))

		listener, err := net.Listen("tcp", opts.grpcHostPort)
		if err != nil {
			return fmt.Errorf("grpc listen on %s: %w", opts.grpcHostPort, err)
		}

		go func() {
			logger.Info("Starting gRPC server on: " + opts.grpcHostPort)
			if err := s.Serve(listener); err != nil {
				errCh <- fmt.Errorf("grpc server failed to serve: %w", err)
			}
		}()
		defer s.GracefulStop()
	}

	rs := &geoHttp.RestfulServer{
		Server:           gin.Default(),
		Engine:           core,
		Importer:         importer.New(core.Geofence, core.Auth),
		RateLimiterStore: httpLimiters,
		AllowOrigins:     allowOrigins(),
	}
	rs.Setup()

	logger.Info("http server created with:",
		zap.String("default_limiter",
			fmt.Sprintf("{\"default_rate\": %v, \"default_burst\": %v}", defaultRate, defaultBurst)))

	httpServer := &http.Server{Addr: opts.httpHostPort, Handler: rs.Server}
	go func() {
		logger.Info("Starting HTTP server on: " + opts.httpHostPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed to serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
