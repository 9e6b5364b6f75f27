package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/arklim/accounts-iam/internal/infra/config"
	"github.com/arklim/accounts-iam/internal/infra/logger"
	"github.com/arklim/accounts-iam/internal/infra/telemetry"
	transportgrpc "github.com/arklim/accounts-iam/internal/transport/grpc"
	grpcinterceptors "github.com/arklim/accounts-iam/internal/transport/grpc/interceptors"
	"github.com/arklim/accounts-iam/internal/transport/http/middleware"
	"github.com/arklim/accounts-iam/internal/transport/http/routes"
)

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	container  *Container
	tracer     *telemetry.TracerProvider
	grpcServer *transportgrpc.Server
	grpcAddr   string
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	container, err := NewContainer(ctx, cfg, log)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, err
	}
	fail := func(err error) (*Application, error) {
		container.Close()
		_ = tracer.Shutdown(ctx)
		return nil, err
	}

	if cfg.Storage.Driver == "memory" || cfg.Bootstrap.AdminEmail != "" {
		result, err := container.Bootstrap(ctx)
		if err != nil {
			return fail(fmt.Errorf("bootstrap: %w", err))
		}
		if result.GeneratedPassword != "" {
			log.Warn("generated administrator password, change it after the first login",
				zap.String("admin_username", result.Admin.Username),
				zap.String("password", result.GeneratedPassword),
			)
		}
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: container.Registry})
	if err != nil {
		return fail(fmt.Errorf("init http metrics: %w", err))
	}
	grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: container.Registry})
	if err != nil {
		return fail(fmt.Errorf("init grpc metrics: %w", err))
	}

	var rateLimiter *middleware.RateLimiter
	if container.RateLimits != nil {
		rateLimiter = middleware.NewRateLimiter(container.RateLimits, log)
	}

	grpcSrv, err := transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Auth:       container.Auth,
		Authorizer: container.Authorizer,
		UserPolicy: container.UserPolicy,
		Guard:      cfg.RBAC.DefaultGuard,
		Metrics:    grpcMetrics,
		Logger:     log,
	})
	if err != nil {
		return fail(fmt.Errorf("init grpc server: %w", err))
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Gatherer:    container.Registry,
		JWTManager:  container.Tokens,
		Services: routes.ServiceSet{
			Auth:        container.Auth,
			Users:       container.Users,
			Roles:       container.Roles,
			Permissions: container.Permissions,
		},
		Policies: routes.PolicySet{
			Users:       container.UserPolicy,
			Roles:       container.RolePolicy,
			Permissions: container.PermissionPolicy,
		},
	}
	if container.Pool != nil {
		deps.Database = container.Pool
	}
	if container.Redis != nil {
		deps.Cache = container.Redis
	}

	return &Application{
		cfg:        cfg,
		engine:     routes.Register(deps),
		logger:     log,
		container:  container,
		tracer:     tracer,
		grpcServer: grpcSrv,
		grpcAddr:   fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port),
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()
	defer a.container.Close()

	grpcErrCh := make(chan error, 1)
	lis, err := net.Listen("tcp", a.grpcAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("gRPC server panicked", zap.Any("panic", r))
				grpcErrCh <- fmt.Errorf("grpc server panicked: %v", r)
			}
		}()
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
		}
	}()
	defer a.grpcServer.GracefulStop()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting IAM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.grpcServer.Health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-grpcErrCh:
		return err
	}
}
