package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

type AppConfig struct {
	App            AppSettings            `mapstructure:"app"`
	GRPC           GRPCSettings           `mapstructure:"grpc"`
	Storage        StorageSettings        `mapstructure:"storage"`
	Postgres       PostgresSettings       `mapstructure:"postgres"`
	Redis          RedisSettings          `mapstructure:"redis"`
	Kafka          KafkaSettings          `mapstructure:"kafka"`
	JWT            JWTSettings            `mapstructure:"jwt"`
	Telemetry      TelemetrySettings      `mapstructure:"telemetry"`
	RateLimit      RateLimitSettings      `mapstructure:"rate_limit"`
	Argon2         Argon2Settings         `mapstructure:"argon2"`
	PasswordPolicy PasswordPolicySettings `mapstructure:"password_policy"`
	Identity       IdentitySettings       `mapstructure:"identity"`
	Username       UsernameSettings       `mapstructure:"username"`
	RBAC           RBACSettings           `mapstructure:"rbac"`
	Revocation     RevocationSettings     `mapstructure:"revocation"`
	Bootstrap      BootstrapSettings      `mapstructure:"bootstrap"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// CORSAllowedOrigins lists browser origins allowed to call the API; "*" allows any.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

type GRPCSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StorageSettings selects the record store backing the services.
type StorageSettings struct {
	Driver string `mapstructure:"driver"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection, TLS and the key spaces used by the service.
type RedisSettings struct {
	Enabled               bool          `mapstructure:"enabled"`
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	DB                    int           `mapstructure:"db"`
	Password              string        `mapstructure:"password"`
	TLSEnabled            bool          `mapstructure:"tls_enabled"`
	PermissionCachePrefix string        `mapstructure:"permission_cache_prefix"`
	PermissionCacheTTL    time.Duration `mapstructure:"permission_cache_ttl"`
	RevocationPrefix      string        `mapstructure:"revocation_prefix"`
	RateLimitPrefix       string        `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts int           `mapstructure:"register_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type PasswordPolicySettings struct {
	MinLength           int `mapstructure:"min_length"`
	MaxLength           int `mapstructure:"max_length"`
	MinCharacterClasses int `mapstructure:"min_character_classes"`
	MinStrengthScore    int `mapstructure:"min_strength_score"`
}

type JWTSettings struct {
	Issuer         string        `mapstructure:"issuer"`
	KeyDirectory   string        `mapstructure:"key_directory"`
	KeyBits        int           `mapstructure:"key_bits"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// IdentitySettings holds the key mode of each entity table.
type IdentitySettings struct {
	UserKeyMode       string `mapstructure:"user_key_mode"`
	RoleKeyMode       string `mapstructure:"role_key_mode"`
	PermissionKeyMode string `mapstructure:"permission_key_mode"`
}

// UsernameSettings configures generated usernames.
type UsernameSettings struct {
	Prefix      string `mapstructure:"prefix"`
	Digits      int    `mapstructure:"digits"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type RBACSettings struct {
	DefaultGuard string `mapstructure:"default_guard"`
}

// RevocationSettings bounds the in-process revocation list used when Redis is disabled.
type RevocationSettings struct {
	MaxEntries int `mapstructure:"max_entries"`
}

type BootstrapSettings struct {
	RoleName      string `mapstructure:"role_name"`
	AdminName     string `mapstructure:"admin_name"`
	AdminEmail    string `mapstructure:"admin_email"`
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
}

// KeyModes parses the identity section.
func (c IdentitySettings) KeyModes() (domain.KeyModes, error) {
	users, err := domain.ParseKeyMode(c.UserKeyMode)
	if err != nil {
		return domain.KeyModes{}, fmt.Errorf("identity.user_key_mode: %w", err)
	}
	roles, err := domain.ParseKeyMode(c.RoleKeyMode)
	if err != nil {
		return domain.KeyModes{}, fmt.Errorf("identity.role_key_mode: %w", err)
	}
	permissions, err := domain.ParseKeyMode(c.PermissionKeyMode)
	if err != nil {
		return domain.KeyModes{}, fmt.Errorf("identity.permission_key_mode: %w", err)
	}
	return domain.KeyModes{User: users, Role: roles, Permission: permissions}, nil
}

var envKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.cors_allowed_origins",
	"grpc.host",
	"grpc.port",
	"storage.driver",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.auto_migrate",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"redis.enabled",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.permission_cache_prefix",
	"redis.permission_cache_ttl",
	"redis.revocation_prefix",
	"redis.rate_limit_prefix",
	"kafka.brokers",
	"kafka.topic_prefix",
	"kafka.async",
	"jwt.issuer",
	"jwt.key_directory",
	"jwt.key_bits",
	"jwt.access_token_ttl",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"rate_limit.window_duration",
	"rate_limit.login_max_attempts",
	"rate_limit.register_max_attempts",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"password_policy.min_length",
	"password_policy.max_length",
	"password_policy.min_character_classes",
	"password_policy.min_strength_score",
	"identity.user_key_mode",
	"identity.role_key_mode",
	"identity.permission_key_mode",
	"username.prefix",
	"username.digits",
	"username.max_attempts",
	"rbac.default_guard",
	"revocation.max_entries",
	"bootstrap.role_name",
	"bootstrap.admin_name",
	"bootstrap.admin_email",
	"bootstrap.admin_username",
	"bootstrap.admin_password",
}

// Load reads an optional .env file, then resolves every setting from IAM_-prefixed
// (or bare) environment variables over the defaults.
func Load(envFiles ...string) (*AppConfig, error) {
	_ = godotenv.Load(envFiles...)

	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IAM")

	setDefaults(v)

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the application cannot start with.
func (c *AppConfig) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	if _, err := c.Identity.KeyModes(); err != nil {
		return err
	}
	if strings.Contains(c.Username.Prefix, "@") {
		return fmt.Errorf("username.prefix must not contain @")
	}
	if c.Username.Digits < 0 {
		return fmt.Errorf("username.digits must not be negative")
	}
	if c.Username.MaxAttempts < 1 {
		return fmt.Errorf("username.max_attempts must be positive")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return fmt.Errorf("jwt.access_token_ttl must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "accounts-iam")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.cors_allowed_origins", []string{})

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "iam")
	v.SetDefault("postgres.password", "iam_password")
	v.SetDefault("postgres.database", "iam")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.auto_migrate", false)
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.permission_cache_prefix", "iam:permissions")
	v.SetDefault("redis.permission_cache_ttl", "10m")
	v.SetDefault("redis.revocation_prefix", "iam:revoked")
	v.SetDefault("redis.rate_limit_prefix", "iam:ratelimit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "iam")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.issuer", "accounts-iam")
	v.SetDefault("jwt.key_directory", "")
	v.SetDefault("jwt.key_bits", 2048)
	v.SetDefault("jwt.access_token_ttl", "15m")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "accounts-iam")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.register_max_attempts", 3)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("password_policy.min_length", 8)
	v.SetDefault("password_policy.max_length", 255)
	v.SetDefault("password_policy.min_character_classes", 2)
	v.SetDefault("password_policy.min_strength_score", 2)

	v.SetDefault("identity.user_key_mode", string(domain.KeyModeUUID))
	v.SetDefault("identity.role_key_mode", string(domain.KeyModeUUID))
	v.SetDefault("identity.permission_key_mode", string(domain.KeyModeUUID))

	v.SetDefault("username.prefix", "u")
	v.SetDefault("username.digits", 8)
	v.SetDefault("username.max_attempts", 100)

	v.SetDefault("rbac.default_guard", domain.DefaultGuard)

	v.SetDefault("revocation.max_entries", 100000)

	v.SetDefault("bootstrap.role_name", "admin")
	v.SetDefault("bootstrap.admin_name", "Administrator")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "IAM_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
