package transportgrpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/identity"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/infra/security"
	"github.com/arklim/accounts-iam/internal/repository/memory"
	transportgrpc "github.com/arklim/accounts-iam/internal/transport/grpc"
	grpcinterceptors "github.com/arklim/accounts-iam/internal/transport/grpc/interceptors"
	"github.com/arklim/accounts-iam/internal/usecase"
)

const (
	adminEmail    = "root@example.com"
	adminPassword = "Sup3r!SecurePass#7890"
	memberEmail   = "member@example.com"
	memberPass    = "Another!Strong#Pass42"
)

type fixture struct {
	conn     *grpc.ClientConn
	admin    string
	member   string
	memberID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store := memory.NewStore()
	keys := identity.NewKeyAssigner(domain.KeyModeSequential)
	generator, err := identity.NewUniqueValueGenerator(identity.ExistenceFunc(store.Users().ExistsByUsername), identity.GeneratorOptions{})
	if err != nil {
		t.Fatalf("NewUniqueValueGenerator returned error: %v", err)
	}
	hasher, err := security.NewArgon2Hasher(port.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	users, err := usecase.NewUserService(usecase.UserServiceDeps{
		Users: store.Users(), Roles: store.Roles(), Permissions: store.Permissions(),
		Keys: keys, Usernames: generator, Hasher: hasher, Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewUserService returned error: %v", err)
	}
	roles, err := usecase.NewRoleService(usecase.RoleServiceDeps{
		Roles: store.Roles(), Permissions: store.Permissions(), Keys: keys, Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewRoleService returned error: %v", err)
	}
	permissions := usecase.NewPermissionService(store.Permissions(), keys, nil, "", logger)
	authorizer := usecase.NewAuthorizer(store.Permissions(), store.Roles(), nil, "", logger)

	signingKeys, err := security.NewEphemeralKeyProvider(1024)
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider returned error: %v", err)
	}
	tokens, err := security.NewJWTManager(signingKeys, "accounts-iam", time.Minute)
	if err != nil {
		t.Fatalf("NewJWTManager returned error: %v", err)
	}
	auth := usecase.NewAuthService(users, store.Users(), store.Roles(), hasher, tokens, security.NewRevocationList(100), "", logger)

	if _, err := usecase.NewBootstrapper(users, roles, permissions, logger).Run(ctx, usecase.BootstrapInput{
		AdminEmail: adminEmail, AdminPassword: adminPassword,
	}); err != nil {
		t.Fatalf("bootstrap returned error: %v", err)
	}
	member, err := users.Create(ctx, usecase.CreateUserInput{Name: "Member", Email: memberEmail, Password: memberPass})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	metrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewGRPCMetrics returned error: %v", err)
	}
	server, err := transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Auth:       auth,
		Authorizer: authorizer,
		UserPolicy: usecase.NewUserPolicy(authorizer, ""),
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}

	listener := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	login := func(identifier, password string) string {
		result, err := auth.Login(ctx, identifier, password)
		if err != nil {
			t.Fatalf("login %s: %v", identifier, err)
		}
		return result.AccessToken
	}

	return &fixture{
		conn:     conn,
		admin:    login(adminEmail, adminPassword),
		member:   login(memberEmail, memberPass),
		memberID: member.ID,
	}
}

func (f *fixture) check(t *testing.T, token string, fields map[string]any) (bool, error) {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	ctx := context.Background()
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}
	out := new(wrapperspb.BoolValue)
	err = f.conn.Invoke(ctx, "/"+transportgrpc.AuthorizationServiceName+"/Check", req, out)
	return out.GetValue(), err
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)

	resp, err := healthpb.NewHealthClient(f.conn).Check(context.Background(), &healthpb.HealthCheckRequest{
		Service: transportgrpc.AuthorizationServiceName,
	})
	if err != nil {
		t.Fatalf("health check returned error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
}

func TestCheckRequiresToken(t *testing.T) {
	f := newFixture(t)

	if _, err := f.check(t, "", map[string]any{"permission": usecase.PermissionRoleView}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestCheckAnswersForCaller(t *testing.T) {
	f := newFixture(t)

	allowed, err := f.check(t, f.admin, map[string]any{"permission": usecase.PermissionRoleManage})
	if err != nil || !allowed {
		t.Fatalf("expected admin to hold role.manage, got %v (%v)", allowed, err)
	}

	allowed, err = f.check(t, f.member, map[string]any{"permission": usecase.PermissionRoleManage})
	if err != nil || allowed {
		t.Fatalf("expected member to lack role.manage, got %v (%v)", allowed, err)
	}

	if _, err := f.check(t, f.member, map[string]any{}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument without a permission, got %v", err)
	}
}

func TestCheckForAnotherUserNeedsViewPermission(t *testing.T) {
	f := newFixture(t)

	allowed, err := f.check(t, f.admin, map[string]any{"user_id": f.memberID, "permission": usecase.PermissionUserView})
	if err != nil || allowed {
		t.Fatalf("expected admin to see member lacks user.view, got %v (%v)", allowed, err)
	}

	_, err = f.check(t, f.member, map[string]any{"user_id": "1", "permission": usecase.PermissionUserView})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestPermissionsListsEffectiveNames(t *testing.T) {
	f := newFixture(t)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+f.admin)
	out := new(structpb.ListValue)
	if err := f.conn.Invoke(ctx, "/"+transportgrpc.AuthorizationServiceName+"/Permissions", &structpb.Struct{}, out); err != nil {
		t.Fatalf("Permissions returned error: %v", err)
	}
	if got, want := len(out.GetValues()), len(usecase.ManagedPermissions()); got != want {
		t.Fatalf("expected %d permissions, got %d", want, got)
	}
}
