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

// PermissionRepository implements port.PermissionRepository over PostgreSQL.
type PermissionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPermissionRepository constructs a permission repository instance.
func NewPermissionRepository(exec pgExecutor) *PermissionRepository {
	return &PermissionRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *PermissionRepository) WithTx(tx pgx.Tx) *PermissionRepository {
	if tx == nil {
		return r
	}
	return &PermissionRepository{
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new permission row.
func (r *PermissionRepository) Create(ctx context.Context, permission domain.Permission) (*domain.Permission, error) {
	if permission.CreatedAt.IsZero() {
		permission.CreatedAt = time.Now().UTC()
	}
	if permission.UpdatedAt.IsZero() {
		permission.UpdatedAt = permission.CreatedAt
	}

	columns := []string{"name", "guard_name", "module", "created_at", "updated_at"}
	values := []any{permission.Name, permission.GuardName, permission.Module, permission.CreatedAt, permission.UpdatedAt}
	if permission.ID != "" {
		columns = append([]string{"id"}, columns...)
		values = append([]any{permission.ID}, values...)
	}

	stmt, args, err := r.builder.Insert("iam.permissions").
		Columns(columns...).
		Values(values...).
		Suffix("RETURNING id::text, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert permission sql: %w", err)
	}

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&permission.ID, &permission.CreatedAt, &permission.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert permission: %w", mapWriteError(err))
	}

	return &permission, nil
}

// GetByID retrieves a permission by identifier.
func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	stmt, args, err := r.builder.Select(guardedColumns...).
		From("iam.permissions").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission by id sql: %w", err)
	}

	permission, err := scanPermission(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, readError(err, "scan permission by id")
	}
	return permission, nil
}

// GetByName retrieves a permission by its name within a guard.
func (r *PermissionRepository) GetByName(ctx context.Context, name string, guard string) (*domain.Permission, error) {
	stmt, args, err := r.builder.Select(guardedColumns...).
		From("iam.permissions").
		Where(squirrel.Eq{"name": name, "guard_name": guard}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission by name sql: %w", err)
	}

	permission, err := scanPermission(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, readError(err, "scan permission by name")
	}
	return permission, nil
}

// FindByNames returns the permissions that exist among names under guard.
func (r *PermissionRepository) FindByNames(ctx context.Context, names []string, guard string) ([]domain.Permission, error) {
	if len(names) == 0 {
		return []domain.Permission{}, nil
	}

	stmt, args, err := r.builder.Select(guardedColumns...).
		From("iam.permissions").
		Where(squirrel.Eq{"name": names, "guard_name": guard}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permissions by names sql: %w", err)
	}

	return r.queryPermissions(ctx, stmt, args, "permissions by names")
}

// Update modifies an existing permission.
func (r *PermissionRepository) Update(ctx context.Context, permission domain.Permission) (*domain.Permission, error) {
	stmt, args, err := r.builder.Update("iam.permissions").
		Set("name", permission.Name).
		Set("guard_name", permission.GuardName).
		Set("module", permission.Module).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": permission.ID}).
		Suffix("RETURNING " + strings.Join(guardedColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update permission sql: %w", err)
	}

	updated, err := scanPermission(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if mapped := mapWriteError(err); mapped != err {
			return nil, fmt.Errorf("update permission: %w", mapped)
		}
		return nil, readError(err, "update permission")
	}
	return updated, nil
}

// Delete removes a permission; role and user grants cascade.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("iam.permissions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete permission sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return readError(err, "delete permission")
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns one page of permissions plus the total number of matches.
func (r *PermissionRepository) List(ctx context.Context, filter port.ListFilter) ([]domain.Permission, int, error) {
	total, err := countRows(ctx, r.exec,
		applyFilter(r.builder.Select("COUNT(*)").From("iam.permissions"), filter, true, "name", "module"),
		"permissions")
	if err != nil {
		return nil, 0, err
	}

	query := applyFilter(r.builder.Select(guardedColumns...).From("iam.permissions"), filter, true, "name", "module")
	stmt, args, err := applyOrderAndPage(query, "permissions", filter, guardedSortable).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list permissions sql: %w", err)
	}

	permissions, err := r.queryPermissions(ctx, stmt, args, "permissions")
	if err != nil {
		return nil, 0, err
	}
	return permissions, total, nil
}

// ListByRole returns permissions mapped to a role via role_has_permissions.
func (r *PermissionRepository) ListByRole(ctx context.Context, roleID string) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select(qualified("p", guardedColumns)...).
		From("iam.permissions p").
		Join("iam.role_has_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": roleID}).
		OrderBy("p.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by role sql: %w", err)
	}

	return r.queryPermissions(ctx, stmt, args, "permissions by role")
}

// ListByUser returns distinct permissions held by the user under guard, directly or via roles.
func (r *PermissionRepository) ListByUser(ctx context.Context, userID string, guard string) ([]domain.Permission, error) {
	viaRoles := r.builder.Select("rp.permission_id").
		From("iam.role_has_permissions rp").
		Join("iam.user_has_roles ur ON ur.role_id = rp.role_id").
		Where(squirrel.Eq{"ur.user_id": userID})
	direct := r.builder.Select("up.permission_id").
		From("iam.user_has_permissions up").
		Where(squirrel.Eq{"up.user_id": userID})

	viaRolesSQL, viaRolesArgs, err := viaRoles.PlaceholderFormat(squirrel.Question).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build role grants sql: %w", err)
	}
	directSQL, directArgs, err := direct.PlaceholderFormat(squirrel.Question).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build direct grants sql: %w", err)
	}

	stmt, args, err := r.builder.Select(qualified("p", guardedColumns)...).
		From("iam.permissions p").
		Where(squirrel.Eq{"p.guard_name": guard}).
		Where(squirrel.Or{
			squirrel.Expr("p.id IN ("+viaRolesSQL+")", viaRolesArgs...),
			squirrel.Expr("p.id IN ("+directSQL+")", directArgs...),
		}).
		OrderBy("p.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by user sql: %w", err)
	}

	permissions, err := r.queryPermissions(ctx, stmt, args, "permissions by user")
	if err != nil {
		if isMalformedKey(err) {
			return []domain.Permission{}, nil
		}
		return nil, err
	}
	return permissions, nil
}

func (r *PermissionRepository) queryPermissions(ctx context.Context, stmt string, args []any, label string) ([]domain.Permission, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", label, err)
	}
	defer rows.Close()

	permissions := make([]domain.Permission, 0)
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", label, err)
		}
		permissions = append(permissions, *permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", label, err)
	}

	return permissions, nil
}

func scanPermission(row rowScanner) (*domain.Permission, error) {
	var permission domain.Permission
	if err := row.Scan(
		&permission.ID,
		&permission.Name,
		&permission.GuardName,
		&permission.Module,
		&permission.CreatedAt,
		&permission.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &permission, nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
