package transportgrpc

import (
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/arklim/accounts-iam/internal/transport/grpc/interceptors"
	"github.com/arklim/accounts-iam/internal/usecase"
)

// publicMethods are served without an access token.
var publicMethods = []string{
	healthpb.Health_Check_FullMethodName,
	healthpb.Health_Watch_FullMethodName,
	"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo",
	"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo",
}

// ServerDependencies encapsulates services required by the gRPC server layer.
type ServerDependencies struct {
	Auth       grpcinterceptors.TokenAuthenticator
	Authorizer *usecase.Authorizer
	UserPolicy *usecase.UserPolicy
	Guard      string
	Metrics    *grpcinterceptors.GRPCMetrics
	Tracing    grpcinterceptors.TracingOptions
	Logger     *zap.Logger
}

// Server bundles the gRPC server with its health service so callers can flip serving status.
type Server struct {
	*grpc.Server
	Health *health.Server
}

// NewServer wires the authorization service, health checks and reflection behind the
// tracing, metrics and authentication interceptors.
func NewServer(deps ServerDependencies) (*Server, error) {
	if deps.Auth == nil || deps.Authorizer == nil {
		return nil, fmt.Errorf("auth service and authorizer are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	auth := grpcinterceptors.NewAuthInterceptor(deps.Auth, grpcinterceptors.AuthOptions{
		Logger:       logger,
		AllowMethods: publicMethods,
	})

	server := grpc.NewServer(
		grpcinterceptors.TracingServerOption(deps.Tracing),
		grpc.ChainUnaryInterceptor(deps.Metrics.UnaryServerInterceptor(), auth.Unary()),
		grpc.ChainStreamInterceptor(auth.Stream()),
	)

	RegisterAuthorizationServer(server, NewAuthorizationServer(deps.Authorizer, deps.UserPolicy, deps.Guard, logger))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(AuthorizationServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(server)

	return &Server{Server: server, Health: healthServer}, nil
}
