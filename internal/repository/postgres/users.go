package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository"
)

var userColumns = []string{
	"id::text",
	"name",
	"username",
	"email",
	"password_hash",
	"avatar_url",
	"email_verified_at",
	"created_at",
	"updated_at",
}

var userSortable = map[string]struct{}{
	"name":       {},
	"email":      {},
	"username":   {},
	"created_at": {},
	"updated_at": {},
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new user row and returns it with the stored key and timestamps.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (*domain.User, error) {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	columns := []string{"name", "username", "email", "password_hash", "avatar_url", "email_verified_at", "created_at", "updated_at"}
	values := []any{user.Name, user.Username, user.Email, user.PasswordHash, user.AvatarURL, user.EmailVerifiedAt, user.CreatedAt, user.UpdatedAt}
	if user.ID != "" {
		columns = append([]string{"id"}, columns...)
		values = append([]any{user.ID}, values...)
	}

	stmt, args, err := r.builder.Insert("iam.users").
		Columns(columns...).
		Values(values...).
		Suffix("RETURNING id::text, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user sql: %w", err)
	}

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert user: %w", mapWriteError(err))
	}

	return &user, nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id}, "id")
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email}, "email")
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"username": username}, "username")
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Sqlizer, label string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("iam.users").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by %s sql: %w", label, err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, readError(err, "scan user by "+label)
	}
	return user, nil
}

// ExistsByUsername reports whether any user already holds the username.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		Prefix("SELECT EXISTS (").
		From("iam.users").
		Where(squirrel.Eq{"username": username}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build user exists sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check username exists: %w", err)
	}
	return exists, nil
}

// Update writes every mutable column and returns the stored row.
func (r *UserRepository) Update(ctx context.Context, user domain.User) (*domain.User, error) {
	stmt, args, err := r.builder.Update("iam.users").
		Set("name", user.Name).
		Set("username", user.Username).
		Set("email", user.Email).
		Set("password_hash", user.PasswordHash).
		Set("avatar_url", user.AvatarURL).
		Set("email_verified_at", user.EmailVerifiedAt).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": user.ID}).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update user sql: %w", err)
	}

	updated, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if mapped := mapWriteError(err); mapped != err {
			return nil, fmt.Errorf("update user: %w", mapped)
		}
		return nil, readError(err, "update user")
	}
	return updated, nil
}

// Delete removes the user; role and permission links cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("iam.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return readError(err, "delete user")
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// List returns one page of users plus the total number of matches.
func (r *UserRepository) List(ctx context.Context, filter port.ListFilter) ([]domain.User, int, error) {
	searchColumns := []string{"name", "email", "username"}

	total, err := countRows(ctx, r.exec,
		applyFilter(r.builder.Select("COUNT(*)").From("iam.users"), filter, false, searchColumns...),
		"users")
	if err != nil {
		return nil, 0, err
	}

	query := applyFilter(r.builder.Select(userColumns...).From("iam.users"), filter, false, searchColumns...)
	stmt, args, err := applyOrderAndPage(query, "users", filter, userSortable).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}

	return users, total, nil
}

// AssignRoles links the user to the provided roles, keeping existing links.
func (r *UserRepository) AssignRoles(ctx context.Context, userID string, roleIDs []string) error {
	return insertLinks(ctx, r.exec, r.builder, "iam.user_has_roles", "user_id", "role_id", userID, roleIDs)
}

// SyncRoles replaces the user's roles in one transaction.
func (r *UserRepository) SyncRoles(ctx context.Context, userID string, roleIDs []string) error {
	return withTx(ctx, r.exec, func(tx pgx.Tx) error {
		return replaceLinks(ctx, tx, r.builder, "iam.user_has_roles", "user_id", "role_id", userID, roleIDs)
	})
}

// GivePermissions grants permissions directly to the user.
func (r *UserRepository) GivePermissions(ctx context.Context, userID string, permissionIDs []string) error {
	return insertLinks(ctx, r.exec, r.builder, "iam.user_has_permissions", "user_id", "permission_id", userID, permissionIDs)
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.EmailVerifiedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func insertLinks(ctx context.Context, exec pgExecutor, builder squirrel.StatementBuilderType, table, ownerColumn, targetColumn, ownerID string, targetIDs []string) error {
	if len(targetIDs) == 0 {
		return nil
	}

	query := builder.Insert(table).Columns(ownerColumn, targetColumn)
	for _, targetID := range targetIDs {
		query = query.Values(ownerID, targetID)
	}

	stmt, args, err := query.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build insert %s sql: %w", table, err)
	}

	if _, err := exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, mapWriteError(err))
	}
	return nil
}

func replaceLinks(ctx context.Context, exec pgExecutor, builder squirrel.StatementBuilderType, table, ownerColumn, targetColumn, ownerID string, targetIDs []string) error {
	stmt, args, err := builder.Delete(table).
		Where(squirrel.Eq{ownerColumn: ownerID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear %s sql: %w", table, err)
	}

	if _, err := exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}

	return insertLinks(ctx, exec, builder, table, ownerColumn, targetColumn, ownerID, targetIDs)
}

var _ port.UserRepository = (*UserRepository)(nil)
