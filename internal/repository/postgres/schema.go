package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

func keyColumn(mode domain.KeyMode) (definition string, reference string) {
	if mode == domain.KeyModeSequential {
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY", "BIGINT"
	}
	return "UUID PRIMARY KEY", "UUID"
}

// SchemaStatements returns the DDL for the iam schema with key columns typed per entity key mode.
func SchemaStatements(modes domain.KeyModes) []string {
	userKey, userRef := keyColumn(modes.User)
	roleKey, roleRef := keyColumn(modes.Role)
	permissionKey, permissionRef := keyColumn(modes.Permission)

	return []string{
		`CREATE SCHEMA IF NOT EXISTS iam`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS iam.users (
	id %s,
	name TEXT NOT NULL,
	username TEXT NOT NULL,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	avatar_url TEXT,
	email_verified_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT users_username_key UNIQUE (username),
	CONSTRAINT users_email_key UNIQUE (email)
)`, userKey),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS iam.roles (
	id %s,
	name TEXT NOT NULL,
	guard_name TEXT NOT NULL,
	module TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT roles_name_guard_name_key UNIQUE (name, guard_name)
)`, roleKey),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS iam.permissions (
	id %s,
	name TEXT NOT NULL,
	guard_name TEXT NOT NULL,
	module TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT permissions_name_guard_name_key UNIQUE (name, guard_name)
)`, permissionKey),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS iam.user_has_roles (
	user_id %s NOT NULL REFERENCES iam.users (id) ON DELETE CASCADE,
	role_id %s NOT NULL REFERENCES iam.roles (id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, role_id)
)`, userRef, roleRef),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS iam.role_has_permissions (
	role_id %s NOT NULL REFERENCES iam.roles (id) ON DELETE CASCADE,
	permission_id %s NOT NULL REFERENCES iam.permissions (id) ON DELETE CASCADE,
	PRIMARY KEY (role_id, permission_id)
)`, roleRef, permissionRef),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS iam.user_has_permissions (
	user_id %s NOT NULL REFERENCES iam.users (id) ON DELETE CASCADE,
	permission_id %s NOT NULL REFERENCES iam.permissions (id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, permission_id)
)`, userRef, permissionRef),
		`CREATE INDEX IF NOT EXISTS roles_module_idx ON iam.roles (module)`,
		`CREATE INDEX IF NOT EXISTS permissions_module_idx ON iam.permissions (module)`,
	}
}

// ApplySchema creates any missing tables. Existing tables are left untouched.
func ApplySchema(ctx context.Context, exec pgExecutor, modes domain.KeyModes) error {
	return withTx(ctx, exec, func(tx pgx.Tx) error {
		for _, stmt := range SchemaStatements(modes) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
}
