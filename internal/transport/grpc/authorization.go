package transportgrpc

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/arklim/accounts-iam/internal/core/domain"
	grpcinterceptors "github.com/arklim/accounts-iam/internal/transport/grpc/interceptors"
	"github.com/arklim/accounts-iam/internal/usecase"
)

// AuthorizationServiceName is the fully qualified gRPC service name.
const AuthorizationServiceName = "iam.v1.AuthorizationService"

// AuthorizationService answers permission questions for other services. Requests are
// google.protobuf.Struct values with the fields user_id, permission, role and guard;
// user_id defaults to the caller.
type AuthorizationService interface {
	Check(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
	HasRole(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
	Permissions(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error)
}

// AuthorizationServer implements AuthorizationService on top of the Authorizer.
type AuthorizationServer struct {
	authorizer *usecase.Authorizer
	users      *usecase.UserPolicy
	guard      string
	logger     *zap.Logger
}

// NewAuthorizationServer constructs an AuthorizationServer. Looking up another user requires
// the user view permission checked through users.
func NewAuthorizationServer(authorizer *usecase.Authorizer, users *usecase.UserPolicy, guard string, logger *zap.Logger) *AuthorizationServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationServer{authorizer: authorizer, users: users, guard: guard, logger: logger}
}

// Check reports whether the subject holds the permission through a role or a direct grant.
func (s *AuthorizationServer) Check(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	subject, err := s.subject(ctx, req)
	if err != nil {
		return nil, err
	}
	permission := field(req, "permission")
	if permission == "" {
		return nil, status.Error(codes.InvalidArgument, "permission is required")
	}
	allowed, err := s.authorizer.Can(ctx, subject, permission, s.guardOf(req))
	if err != nil {
		return nil, s.toStatus(err)
	}
	return wrapperspb.Bool(allowed), nil
}

// HasRole reports whether the subject holds the named role.
func (s *AuthorizationServer) HasRole(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	subject, err := s.subject(ctx, req)
	if err != nil {
		return nil, err
	}
	role := field(req, "role")
	if role == "" {
		return nil, status.Error(codes.InvalidArgument, "role is required")
	}
	held, err := s.authorizer.HasRole(ctx, subject, role, s.guardOf(req))
	if err != nil {
		return nil, s.toStatus(err)
	}
	return wrapperspb.Bool(held), nil
}

// Permissions lists the subject's effective permission names.
func (s *AuthorizationServer) Permissions(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	subject, err := s.subject(ctx, req)
	if err != nil {
		return nil, err
	}
	names, err := s.authorizer.PermissionNames(ctx, subject.HolderID(), s.guardOf(req))
	if err != nil {
		return nil, s.toStatus(err)
	}
	values := make([]*structpb.Value, 0, len(names))
	for _, name := range names {
		values = append(values, structpb.NewStringValue(name))
	}
	return &structpb.ListValue{Values: values}, nil
}

func (s *AuthorizationServer) subject(ctx context.Context, req *structpb.Struct) (domain.RoleHolder, error) {
	claims, ok := grpcinterceptors.ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	caller := domain.SubjectID(claims.UserID)

	userID := field(req, "user_id")
	if userID == "" || userID == claims.UserID {
		return caller, nil
	}
	if s.users == nil {
		return nil, status.Error(codes.PermissionDenied, "insufficient permissions")
	}
	if err := usecase.Authorize(s.users.View(ctx, caller, domain.SubjectID(userID))); err != nil {
		return nil, s.toStatus(err)
	}
	return domain.SubjectID(userID), nil
}

func (s *AuthorizationServer) guardOf(req *structpb.Struct) string {
	if guard := field(req, "guard"); guard != "" {
		return guard
	}
	return s.guard
}

func (s *AuthorizationServer) toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, "insufficient permissions")
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		s.logger.Error("authorization query failed", zap.Error(err))
		return status.Error(codes.Internal, "authorization query failed")
	}
}

func field(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

// RegisterAuthorizationServer registers srv under AuthorizationServiceName.
func RegisterAuthorizationServer(registrar grpc.ServiceRegistrar, srv AuthorizationService) {
	registrar.RegisterService(&authorizationServiceDesc, srv)
}

var authorizationServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthorizationServiceName,
	HandlerType: (*AuthorizationService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: unary("Check", func(s AuthorizationService, ctx context.Context, req *structpb.Struct) (any, error) {
			return s.Check(ctx, req)
		})},
		{MethodName: "HasRole", Handler: unary("HasRole", func(s AuthorizationService, ctx context.Context, req *structpb.Struct) (any, error) {
			return s.HasRole(ctx, req)
		})},
		{MethodName: "Permissions", Handler: unary("Permissions", func(s AuthorizationService, ctx context.Context, req *structpb.Struct) (any, error) {
			return s.Permissions(ctx, req)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "iam/v1/authorization.proto",
}

type structCall func(s AuthorizationService, ctx context.Context, req *structpb.Struct) (any, error)

func unary(method string, call structCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + AuthorizationServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		service := srv.(AuthorizationService)
		if interceptor == nil {
			return call(service, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(service, ctx, req.(*structpb.Struct))
		})
	}
}
