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

// guardedColumns is shared by roles and permissions, which have the same shape.
var guardedColumns = []string{
	"id::text",
	"name",
	"guard_name",
	"module",
	"created_at",
	"updated_at",
}

var guardedSortable = map[string]struct{}{
	"name":       {},
	"module":     {},
	"guard_name": {},
	"created_at": {},
	"updated_at": {},
}

func qualified(alias string, columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, column := range columns {
		out = append(out, alias+"."+column)
	}
	return out
}

// RoleRepository implements role persistence operations.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new role.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) (*domain.Role, error) {
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	if role.UpdatedAt.IsZero() {
		role.UpdatedAt = role.CreatedAt
	}

	columns := []string{"name", "guard_name", "module", "created_at", "updated_at"}
	values := []any{role.Name, role.GuardName, role.Module, role.CreatedAt, role.UpdatedAt}
	if role.ID != "" {
		columns = append([]string{"id"}, columns...)
		values = append([]any{role.ID}, values...)
	}

	stmt, args, err := r.builder.Insert("iam.roles").
		Columns(columns...).
		Values(values...).
		Suffix("RETURNING id::text, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert role sql: %w", err)
	}

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert role: %w", mapWriteError(err))
	}

	return &role, nil
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select(guardedColumns...).
		From("iam.roles").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by id sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, readError(err, "scan role by id")
	}
	return role, nil
}

// GetByName retrieves a role by its name within a guard.
func (r *RoleRepository) GetByName(ctx context.Context, name string, guard string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select(guardedColumns...).
		From("iam.roles").
		Where(squirrel.Eq{"name": name, "guard_name": guard}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by name sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, readError(err, "scan role by name")
	}
	return role, nil
}

// FindByNames returns the roles that exist among names; missing names are simply absent.
func (r *RoleRepository) FindByNames(ctx context.Context, names []string, guard string) ([]domain.Role, error) {
	if len(names) == 0 {
		return []domain.Role{}, nil
	}

	stmt, args, err := r.builder.Select(guardedColumns...).
		From("iam.roles").
		Where(squirrel.Eq{"name": names, "guard_name": guard}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select roles by names sql: %w", err)
	}

	return r.queryRoles(ctx, stmt, args, "roles by names")
}

// Update modifies an existing role.
func (r *RoleRepository) Update(ctx context.Context, role domain.Role) (*domain.Role, error) {
	stmt, args, err := r.builder.Update("iam.roles").
		Set("name", role.Name).
		Set("guard_name", role.GuardName).
		Set("module", role.Module).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": role.ID}).
		Suffix("RETURNING " + strings.Join(guardedColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update role sql: %w", err)
	}

	updated, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if mapped := mapWriteError(err); mapped != err {
			return nil, fmt.Errorf("update role: %w", mapped)
		}
		return nil, readError(err, "update role")
	}
	return updated, nil
}

// Delete removes a role by ID (cascades to user_has_roles and role_has_permissions via FK).
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("iam.roles").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return readError(err, "delete role")
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// List returns one page of roles plus the total number of matches.
func (r *RoleRepository) List(ctx context.Context, filter port.ListFilter) ([]domain.Role, int, error) {
	total, err := countRows(ctx, r.exec,
		applyFilter(r.builder.Select("COUNT(*)").From("iam.roles"), filter, true, "name", "module"),
		"roles")
	if err != nil {
		return nil, 0, err
	}

	query := applyFilter(r.builder.Select(guardedColumns...).From("iam.roles"), filter, true, "name", "module")
	stmt, args, err := applyOrderAndPage(query, "roles", filter, guardedSortable).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list roles sql: %w", err)
	}

	roles, err := r.queryRoles(ctx, stmt, args, "roles")
	if err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

// CreateWithPermissions inserts the role and its permission links in one transaction.
func (r *RoleRepository) CreateWithPermissions(ctx context.Context, role domain.Role, permissionIDs []string) (*domain.Role, error) {
	var created *domain.Role
	err := withTx(ctx, r.exec, func(tx pgx.Tx) error {
		var err error
		if created, err = r.WithTx(tx).Create(ctx, role); err != nil {
			return err
		}
		if err := insertLinks(ctx, tx, r.builder, "iam.role_has_permissions", "role_id", "permission_id", created.ID, permissionIDs); err != nil {
			return fmt.Errorf("link role permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateWithPermissions updates the role and replaces its permission links in one transaction.
func (r *RoleRepository) UpdateWithPermissions(ctx context.Context, role domain.Role, permissionIDs []string) (*domain.Role, error) {
	var updated *domain.Role
	err := withTx(ctx, r.exec, func(tx pgx.Tx) error {
		var err error
		if updated, err = r.WithTx(tx).Update(ctx, role); err != nil {
			return err
		}
		if err := replaceLinks(ctx, tx, r.builder, "iam.role_has_permissions", "role_id", "permission_id", updated.ID, permissionIDs); err != nil {
			return fmt.Errorf("replace role permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SyncPermissions replaces the role's permission links in one transaction.
func (r *RoleRepository) SyncPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return withTx(ctx, r.exec, func(tx pgx.Tx) error {
		return replaceLinks(ctx, tx, r.builder, "iam.role_has_permissions", "role_id", "permission_id", roleID, permissionIDs)
	})
}

// AssignPermissions links the provided permissions to the role and returns the number of rows inserted.
func (r *RoleRepository) AssignPermissions(ctx context.Context, roleID string, permissionIDs []string) (int, error) {
	if len(permissionIDs) == 0 {
		return 0, nil
	}

	query := r.builder.Insert("iam.role_has_permissions").
		Columns("role_id", "permission_id")

	for _, permissionID := range permissionIDs {
		query = query.Values(roleID, permissionID)
	}

	stmt, args, err := query.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build assign role permissions sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("assign role permissions: %w", mapWriteError(err))
	}

	return int(res.RowsAffected()), nil
}

// RevokePermissions removes the provided permissions from the role and returns the number of rows deleted.
func (r *RoleRepository) RevokePermissions(ctx context.Context, roleID string, permissionIDs []string) (int, error) {
	if len(permissionIDs) == 0 {
		return 0, nil
	}

	stmt, args, err := r.builder.Delete("iam.role_has_permissions").
		Where(squirrel.Eq{"role_id": roleID}).
		Where(squirrel.Eq{"permission_id": permissionIDs}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke role permissions sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke role permissions: %w", err)
	}

	return int(res.RowsAffected()), nil
}

// ListByUser returns roles assigned to the specified user.
func (r *RoleRepository) ListByUser(ctx context.Context, userID string) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select(qualified("r", guardedColumns)...).
		From("iam.roles r").
		Join("iam.user_has_roles ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build roles by user sql: %w", err)
	}

	roles, err := r.queryRoles(ctx, stmt, args, "roles by user")
	if err != nil {
		if isMalformedKey(err) {
			return []domain.Role{}, nil
		}
		return nil, err
	}
	return roles, nil
}

func (r *RoleRepository) queryRoles(ctx context.Context, stmt string, args []any, label string) ([]domain.Role, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", label, err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", label, err)
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", label, err)
	}

	return roles, nil
}

func scanRole(row rowScanner) (*domain.Role, error) {
	var role domain.Role
	if err := row.Scan(
		&role.ID,
		&role.Name,
		&role.GuardName,
		&role.Module,
		&role.CreatedAt,
		&role.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &role, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
