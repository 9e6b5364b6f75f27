package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository"
)

var userRowColumns = []string{"id", "name", "username", "email", "password_hash", "avatar_url", "email_verified_at", "created_at", "updated_at"}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestUserRepository_CreateWithSuppliedKey(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	now := time.Now().UTC()
	user := domain.User{
		ID:           "0b6f1d2e-5f0a-4f7e-9a55-1c2b3d4e5f60",
		Name:         "Ada Lovelace",
		Username:     "u12345678",
		Email:        "ada@example.com",
		PasswordHash: "argon2id$hash",
	}

	mock.ExpectQuery(`INSERT INTO iam\.users \(id,name,username,email,password_hash,avatar_url,email_verified_at,created_at,updated_at\).*RETURNING id::text`).
		WithArgs(user.ID, user.Name, user.Username, user.Email, user.PasswordHash, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(user.ID, now, now))

	created, err := repo.Create(context.Background(), user)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID != user.ID {
		t.Fatalf("expected id %s, got %s", user.ID, created.ID)
	}
	if !created.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at from store")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CreateLetsStoreAssignKey(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO iam\.users \(name,username,email,password_hash`).
		WithArgs("Grace", "u00000001", "grace@example.com", "hash", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("42", now, now))

	created, err := repo.Create(context.Background(), domain.User{
		Name:         "Grace",
		Username:     "u00000001",
		Email:        "grace@example.com",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID != "42" {
		t.Fatalf("expected store assigned id 42, got %q", created.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CreateUniqueViolation(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`INSERT INTO iam\.users`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: repository.ConstraintUsersUsername})

	_, err := repo.Create(context.Background(), domain.User{Name: "x", Username: "taken", Email: "x@example.com", PasswordHash: "h"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !repository.IsConstraint(err, repository.ConstraintUsersUsername) {
		t.Fatalf("expected username constraint, got %v", err)
	}
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM iam\.users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserRepository_GetByIDMalformedKey(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM iam\.users`).
		WithArgs("not-a-uuid").
		WillReturnError(&pgconn.PgError{Code: "22P02"})

	if _, err := repo.GetByID(context.Background(), "not-a-uuid"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for malformed key, got %v", err)
	}
}

func TestUserRepository_GetByUsername(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	now := time.Now().UTC()
	avatar := "https://cdn.example.com/a.png"
	rows := pgxmock.NewRows(userRowColumns).
		AddRow("7", "Ada", "u11112222", "ada@example.com", "hash", avatar, nil, now, now)

	mock.ExpectQuery(`SELECT .*FROM iam\.users WHERE username = \$1`).
		WithArgs("u11112222").
		WillReturnRows(rows)

	user, err := repo.GetByUsername(context.Background(), "u11112222")
	if err != nil {
		t.Fatalf("GetByUsername returned error: %v", err)
	}
	if user.ID != "7" || user.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.AvatarURL == nil || *user.AvatarURL != avatar {
		t.Fatalf("expected avatar to be populated")
	}
	if user.EmailVerifiedAt != nil {
		t.Fatalf("expected nil email_verified_at")
	}
}

func TestUserRepository_ExistsByUsername(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM iam\.users WHERE username = \$1 \)`).
		WithArgs("u00000000").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByUsername(context.Background(), "u00000000")
	if err != nil {
		t.Fatalf("ExistsByUsername returned error: %v", err)
	}
	if !exists {
		t.Fatalf("expected username to exist")
	}
}

func TestUserRepository_DeleteMissing(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec(`DELETE FROM iam\.users WHERE id = \$1`).
		WithArgs("99").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "99"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserRepository_UpdateMissing(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`UPDATE iam\.users SET`).
		WithArgs("n", "u", "e", "h", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "404").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Update(context.Background(), domain.User{ID: "404", Name: "n", Username: "u", Email: "e", PasswordHash: "h"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserRepository_ListSearchEscapesWildcards(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	pattern := `%50\%%`
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM iam\.users WHERE \(name ILIKE \$1 OR email ILIKE \$2 OR username ILIKE \$3\)`).
		WithArgs(pattern, pattern, pattern).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(11)))

	mock.ExpectQuery(`SELECT .*FROM iam\.users WHERE .* ORDER BY users\.name DESC, users\.id DESC LIMIT 10 OFFSET 10`).
		WithArgs(pattern, pattern, pattern).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow("11", "50% off", "u1", "a@example.com", "h", nil, nil, now, now))

	users, total, err := repo.List(context.Background(), port.ListFilter{
		Search:    "50%",
		SortField: "name",
		SortDesc:  true,
		Limit:     10,
		Offset:    10,
	})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 11 || len(users) != 1 {
		t.Fatalf("expected total 11 and one row, got %d/%d", total, len(users))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_SyncRolesIsTransactional(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM iam\.user_has_roles WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO iam\.user_has_roles \(user_id,role_id\) VALUES \(\$1,\$2\),\(\$3,\$4\) ON CONFLICT DO NOTHING`).
		WithArgs("u-1", "r-1", "u-1", "r-2").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	if err := repo.SyncRoles(context.Background(), "u-1", []string{"r-1", "r-2"}); err != nil {
		t.Fatalf("SyncRoles returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
