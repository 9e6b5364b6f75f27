package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/identity"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/infra/config"
	"github.com/arklim/accounts-iam/internal/infra/database"
	kafkainfra "github.com/arklim/accounts-iam/internal/infra/kafka"
	redisinfra "github.com/arklim/accounts-iam/internal/infra/redis"
	"github.com/arklim/accounts-iam/internal/infra/security"
	"github.com/arklim/accounts-iam/internal/infra/telemetry"
	"github.com/arklim/accounts-iam/internal/repository/memory"
	postgresrepo "github.com/arklim/accounts-iam/internal/repository/postgres"
	redisrepo "github.com/arklim/accounts-iam/internal/repository/redis"
	"github.com/arklim/accounts-iam/internal/usecase"
)

// Container holds the storage backends and services shared by the API server and the CLI.
type Container struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Registry *prometheus.Registry

	Pool     *pgxpool.Pool
	Redis    *redisinfra.Client
	Producer *kafkainfra.Producer

	Users       *usecase.UserService
	Roles       *usecase.RoleService
	Permissions *usecase.PermissionService
	Authorizer  *usecase.Authorizer
	Auth        *usecase.AuthService
	Tokens      *security.JWTManager

	UserPolicy       *usecase.UserPolicy
	RolePolicy       *usecase.CatalogPolicy
	PermissionPolicy *usecase.CatalogPolicy

	// RateLimits is nil when Redis is disabled.
	RateLimits port.RateLimitStore
}

type repositories struct {
	users       port.UserRepository
	roles       port.RoleRepository
	permissions port.PermissionRepository
	existence   identity.ExistenceFunc
}

// NewContainer connects the configured backends and builds every service. Close releases them.
func NewContainer(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (_ *Container, err error) {
	modes, err := cfg.Identity.KeyModes()
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, Logger: log, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	domainMetrics := telemetry.NewDomainMetrics(c.Registry)

	repos, err := c.openStore(ctx, modes)
	if err != nil {
		return nil, err
	}

	var (
		cache       port.PermissionCache
		revocations port.TokenRevocationStore
	)
	if cfg.Redis.Enabled {
		c.Redis, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		if err := c.Redis.RegisterMetrics(c.Registry); err != nil {
			return nil, err
		}
		cache = redisrepo.NewPermissionCache(c.Redis.Client(), cfg.Redis.PermissionCachePrefix, cfg.Redis.PermissionCacheTTL)
		revocations = redisrepo.NewTokenRevocationStore(c.Redis.Client(), cfg.Redis.RevocationPrefix)

		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		c.RateLimits = redisrepo.NewAttemptWindowStore(c.Redis.Client(), cfg.Redis.RateLimitPrefix, 2*window)
	} else {
		log.Info("redis disabled, using in-process token revocation without permission cache or rate limits")
		revocations = security.NewRevocationList(cfg.Revocation.MaxEntries)
	}
	cache = telemetry.InstrumentPermissionCache(cache, domainMetrics)

	events := c.eventPublisher()

	generator, err := identity.NewUniqueValueGenerator(repos.existence, identity.GeneratorOptions{
		Prefix:      cfg.Username.Prefix,
		Digits:      cfg.Username.Digits,
		DigitsSet:   true,
		MaxAttempts: cfg.Username.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("init username generator: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(argon2Params(cfg.Argon2))
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	keys, err := security.NewKeyProvider(cfg.JWT.KeyDirectory, cfg.JWT.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	if c.Tokens, err = security.NewJWTManager(keys, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL); err != nil {
		return nil, fmt.Errorf("init jwt manager: %w", err)
	}

	guard := cfg.RBAC.DefaultGuard

	c.Users, err = usecase.NewUserService(usecase.UserServiceDeps{
		Users:          repos.users,
		Roles:          repos.roles,
		Permissions:    repos.permissions,
		Keys:           identity.NewKeyAssigner(modes.User),
		Usernames:      telemetry.InstrumentUsernameGenerator(generator, domainMetrics),
		Hasher:         hasher,
		PasswordPolicy: security.NewPasswordPolicy(passwordPolicyOptions(cfg.PasswordPolicy)),
		Events:         events,
		Cache:          cache,
		Guard:          guard,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("init user service: %w", err)
	}

	c.Roles, err = usecase.NewRoleService(usecase.RoleServiceDeps{
		Roles:       repos.roles,
		Permissions: repos.permissions,
		Keys:        identity.NewKeyAssigner(modes.Role),
		Events:      events,
		Cache:       cache,
		Guard:       guard,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("init role service: %w", err)
	}

	c.Permissions = usecase.NewPermissionService(repos.permissions, identity.NewKeyAssigner(modes.Permission), cache, guard, log)
	c.Authorizer = usecase.NewAuthorizer(repos.permissions, repos.roles, cache, guard, log)
	c.Auth = usecase.NewAuthService(c.Users, repos.users, repos.roles, hasher, c.Tokens, revocations, guard, log)

	c.UserPolicy = usecase.NewUserPolicy(c.Authorizer, guard)
	c.RolePolicy = usecase.NewRolePolicy(c.Authorizer, guard)
	c.PermissionPolicy = usecase.NewPermissionPolicy(c.Authorizer, guard)

	return c, nil
}

func (c *Container) openStore(ctx context.Context, modes domain.KeyModes) (*repositories, error) {
	if c.Config.Storage.Driver == "memory" {
		c.Logger.Warn("using in-memory storage, records are lost on restart")
		store := memory.NewStore()
		return &repositories{
			users:       store.Users(),
			roles:       store.Roles(),
			permissions: store.Permissions(),
			existence:   store.Users().ExistsByUsername,
		}, nil
	}

	pool, err := database.NewPostgresPool(ctx, c.Config.Postgres, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	c.Pool = pool

	if c.Config.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, pool, modes, c.Logger); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	repos := postgresrepo.NewRepositories(pool)
	return &repositories{
		users:       repos.Users,
		roles:       repos.Roles,
		permissions: repos.Permissions,
		existence:   repos.Users.ExistsByUsername,
	}, nil
}

func (c *Container) eventPublisher() port.EventPublisher {
	producer, err := kafkainfra.NewProducer(c.Config.Kafka, c.Config.App.Name, c.Logger)
	switch {
	case errors.Is(err, kafkainfra.ErrNoBrokers):
		c.Logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(c.Logger)
	case err != nil:
		c.Logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(c.Logger)
	}
	c.Producer = producer
	return kafkainfra.NewEventPublisher(producer, c.Config.App, c.Logger)
}

// Bootstrap seeds the managed permissions, the admin role and the configured administrator.
func (c *Container) Bootstrap(ctx context.Context) (*usecase.BootstrapResult, error) {
	return usecase.NewBootstrapper(c.Users, c.Roles, c.Permissions, c.Logger).Run(ctx, usecase.BootstrapInput{
		RoleName:      c.Config.Bootstrap.RoleName,
		Guard:         c.Config.RBAC.DefaultGuard,
		AdminName:     c.Config.Bootstrap.AdminName,
		AdminEmail:    c.Config.Bootstrap.AdminEmail,
		AdminUsername: c.Config.Bootstrap.AdminUsername,
		AdminPassword: c.Config.Bootstrap.AdminPassword,
	})
}

// Close releases the backends in reverse order of acquisition.
func (c *Container) Close() {
	if c.Producer != nil {
		if err := c.Producer.Close(); err != nil {
			c.Logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// argon2Params falls back to the library defaults when the section is left empty.
func argon2Params(cfg config.Argon2Settings) port.Argon2Params {
	if cfg == (config.Argon2Settings{}) {
		return security.DefaultArgon2Params()
	}
	return port.Argon2Params{
		Memory:      cfg.Memory,
		Iterations:  cfg.Iterations,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	}
}

func passwordPolicyOptions(cfg config.PasswordPolicySettings) security.PasswordPolicyOptions {
	if cfg == (config.PasswordPolicySettings{}) {
		return security.DefaultPasswordPolicyOptions()
	}
	return security.PasswordPolicyOptions{
		MinLength:           cfg.MinLength,
		MaxLength:           cfg.MaxLength,
		MinCharacterClasses: cfg.MinCharacterClasses,
		MinStrengthScore:    cfg.MinStrengthScore,
	}
}
