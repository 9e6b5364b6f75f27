package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/arklim/accounts-iam/internal/infra/app"
	"github.com/arklim/accounts-iam/internal/infra/config"
	"github.com/arklim/accounts-iam/internal/infra/database"
	"github.com/arklim/accounts-iam/internal/infra/logger"
	"github.com/arklim/accounts-iam/internal/infra/security"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the iam schema and tables in PostgreSQL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := load()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		modes, err := cfg.Identity.KeyModes()
		if err != nil {
			return err
		}
		pool, err := database.NewPostgresPool(cmd.Context(), cfg.Postgres, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		return database.Migrate(cmd.Context(), pool, modes, log)
	},
}

var (
	adminEmail    string
	adminName     string
	adminUsername string
	roleName      string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Seed the managed permissions, the admin role and an administrator account",
	Long: `Seed the permissions the service's own endpoints check, a role holding all of them
and, when an email is given, an administrator holding that role. Running it again is safe.

The administrator password is read from IAM_BOOTSTRAP_ADMIN_PASSWORD; when it is unset a
password is generated and printed once.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := load()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if cmd.Flags().Changed("email") {
			cfg.Bootstrap.AdminEmail = adminEmail
		}
		if cmd.Flags().Changed("name") {
			cfg.Bootstrap.AdminName = adminName
		}
		if cmd.Flags().Changed("username") {
			cfg.Bootstrap.AdminUsername = adminUsername
		}
		if cmd.Flags().Changed("role") {
			cfg.Bootstrap.RoleName = roleName
		}
		if cfg.Storage.Driver == "memory" {
			return fmt.Errorf("bootstrap needs persistent storage, storage.driver is memory")
		}

		container, err := app.NewContainer(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()

		result, err := container.Bootstrap(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "permissions created: %d\n", len(result.CreatedPermissions))
		fmt.Fprintf(out, "role %q (id %s, created %t)\n", result.Role.Name, result.Role.ID, result.RoleCreated)
		if result.Admin != nil {
			fmt.Fprintf(out, "admin %s <%s> (id %s, created %t)\n", result.Admin.Username, result.Admin.Email, result.Admin.ID, result.AdminCreated)
		}
		if result.GeneratedPassword != "" {
			fmt.Fprintf(out, "generated password: %s\n", result.GeneratedPassword)
		}
		return nil
	},
}

var healthAddr string

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Query the gRPC health service, exiting non-zero unless it is serving",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		conn, err := grpc.NewClient(healthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dial %s: %w", healthAddr, err)
		}
		defer conn.Close()

		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("service status %s", resp.GetStatus())
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.GetStatus())
		return nil
	},
}

var jwksCmd = &cobra.Command{
	Use:   "jwks",
	Short: "Print the JSON Web Key Set for the configured key directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(envFiles()...)
		if err != nil {
			return err
		}
		if cfg.JWT.KeyDirectory == "" {
			return fmt.Errorf("jwt.key_directory is empty, keys would be ephemeral")
		}
		keys, err := security.NewDirectoryKeyProvider(cfg.JWT.KeyDirectory)
		if err != nil {
			return err
		}
		tokens, err := security.NewJWTManager(keys, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
		if err != nil {
			return err
		}
		raw, err := tokens.JWKS()
		if err != nil {
			return err
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err != nil {
			return err
		}
		pretty.WriteByte('\n')
		_, err = pretty.WriteTo(cmd.OutOrStdout())
		return err
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&adminEmail, "email", "", "Administrator email (overrides IAM_BOOTSTRAP_ADMIN_EMAIL)")
	bootstrapCmd.Flags().StringVar(&adminName, "name", "", "Administrator display name")
	bootstrapCmd.Flags().StringVar(&adminUsername, "username", "", "Administrator username, generated when empty")
	bootstrapCmd.Flags().StringVar(&roleName, "role", "", "Name of the administrator role")

	healthcheckCmd.Flags().StringVar(&healthAddr, "addr", "localhost:50051", "gRPC address to check")
}

func envFiles() []string {
	if envFile == "" {
		return nil
	}
	return []string{envFile}
}

func load() (*config.AppConfig, *zap.Logger, error) {
	cfg, err := config.Load(envFiles()...)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
