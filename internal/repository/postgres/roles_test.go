package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository"
)

var guardedRowColumns = []string{"id", "name", "guard_name", "module", "created_at", "updated_at"}

func TestRoleRepository_CreateDuplicateNameGuard(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock)

	mock.ExpectQuery(`INSERT INTO iam\.roles`).
		WithArgs("admin", "web", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: repository.ConstraintRolesName})

	_, err := repo.Create(context.Background(), domain.Role{Name: "admin", GuardName: "web"})
	if !repository.IsConstraint(err, repository.ConstraintRolesName) {
		t.Fatalf("expected roles name constraint, got %v", err)
	}
}

func TestRoleRepository_GetByName(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .*FROM iam\.roles WHERE guard_name = \$1 AND name = \$2`).
		WithArgs("api", "editor").
		WillReturnRows(pgxmock.NewRows(guardedRowColumns).AddRow("3", "editor", "api", "content", now, now))

	role, err := repo.GetByName(context.Background(), "editor", "api")
	if err != nil {
		t.Fatalf("GetByName returned error: %v", err)
	}
	if role.GuardName != "api" || role.Module == nil || *role.Module != "content" {
		t.Fatalf("unexpected role %+v", role)
	}
}

func TestRoleRepository_SyncPermissionsRollsBackOnFailure(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM iam\.role_has_permissions WHERE role_id = \$1`).
		WithArgs("r-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`INSERT INTO iam\.role_has_permissions`).
		WithArgs("r-1", "p-gone").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	err := repo.SyncPermissions(context.Background(), "r-1", []string{"p-gone"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict from foreign key violation, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_SyncPermissionsToEmptySet(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM iam\.role_has_permissions WHERE role_id = \$1`).
		WithArgs("r-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	if err := repo.SyncPermissions(context.Background(), "r-1", nil); err != nil {
		t.Fatalf("SyncPermissions returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_CreateWithPermissionsRollsBackRole(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO iam\.roles`).
		WithArgs("editor", "web", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("7", now, now))
	mock.ExpectExec(`INSERT INTO iam\.role_has_permissions`).
		WithArgs("7", "p-gone").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	_, err := repo.CreateWithPermissions(context.Background(), domain.Role{Name: "editor", GuardName: "web"}, []string{"p-gone"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict from foreign key violation, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_UpdateWithPermissionsCommitsBoth(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE iam\.roles SET`).
		WithArgs("editor", "api", pgxmock.AnyArg(), pgxmock.AnyArg(), "7").
		WillReturnRows(pgxmock.NewRows(guardedRowColumns).AddRow("7", "editor", "api", nil, now, now))
	mock.ExpectExec(`DELETE FROM iam\.role_has_permissions WHERE role_id = \$1`).
		WithArgs("7").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO iam\.role_has_permissions`).
		WithArgs("7", "p-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	updated, err := repo.UpdateWithPermissions(context.Background(), domain.Role{ID: "7", Name: "editor", GuardName: "api"}, []string{"p-1"})
	if err != nil {
		t.Fatalf("UpdateWithPermissions returned error: %v", err)
	}
	if updated.GuardName != "api" {
		t.Fatalf("unexpected role %+v", updated)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_ListFiltersByModule(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM iam\.roles WHERE module = \$1`).
		WithArgs("billing").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT .*FROM iam\.roles WHERE module = \$1 ORDER BY roles\.created_at DESC, roles\.id DESC LIMIT 10`).
		WithArgs("billing").
		WillReturnRows(pgxmock.NewRows(guardedRowColumns).AddRow("1", "accountant", "web", "billing", now, now))

	roles, total, err := repo.List(context.Background(), port.ListFilter{Module: "billing", Limit: 10})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 1 || len(roles) != 1 || roles[0].Name != "accountant" {
		t.Fatalf("unexpected listing %d %+v", total, roles)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_DeleteMissing(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock)

	mock.ExpectExec(`DELETE FROM iam\.roles`).
		WithArgs("5").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "5"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPermissionRepository_ListByUserCombinesGrants(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPermissionRepository(mock)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT p\.id::text.* FROM iam\.permissions p WHERE p\.guard_name = \$1 AND \(p\.id IN \(SELECT rp\.permission_id .*ur\.user_id = \$2\) OR p\.id IN \(SELECT up\.permission_id .*up\.user_id = \$3\)\)`).
		WithArgs("web", "u-1", "u-1").
		WillReturnRows(pgxmock.NewRows(guardedRowColumns).
			AddRow("1", "user.view", "web", nil, now, now).
			AddRow("2", "user.update", "web", nil, now, now))

	permissions, err := repo.ListByUser(context.Background(), "u-1", "web")
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(permissions) != 2 || permissions[0].Name != "user.view" {
		t.Fatalf("unexpected permissions %+v", permissions)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPermissionRepository_FindByNamesEmpty(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPermissionRepository(mock)

	permissions, err := repo.FindByNames(context.Background(), nil, "web")
	if err != nil {
		t.Fatalf("FindByNames returned error: %v", err)
	}
	if len(permissions) != 0 {
		t.Fatalf("expected no permissions")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSchemaStatementsFollowKeyModes(t *testing.T) {
	statements := SchemaStatements(domain.KeyModes{
		User:       domain.KeyModeUUID,
		Role:       domain.KeyModeSequential,
		Permission: domain.KeyModeSequential,
	})

	var users, roles, links string
	for _, stmt := range statements {
		switch {
		case strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS iam.users ("):
			users = stmt
		case strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS iam.roles ("):
			roles = stmt
		case strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS iam.user_has_roles ("):
			links = stmt
		}
	}

	if !containsAll(users, "id UUID PRIMARY KEY") {
		t.Fatalf("expected uuid user key, got %s", users)
	}
	if !containsAll(roles, "GENERATED BY DEFAULT AS IDENTITY") {
		t.Fatalf("expected identity role key, got %s", roles)
	}
	if !containsAll(links, "user_id UUID", "role_id BIGINT") {
		t.Fatalf("expected link columns typed per mode, got %s", links)
	}
}

func containsAll(s string, parts ...string) bool {
	for _, part := range parts {
		if !strings.Contains(s, part) {
			return false
		}
	}
	return true
}
