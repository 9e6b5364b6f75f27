package usecase

import (
	"context"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

const (
	PermissionUserView   = "user.view"
	PermissionUserCreate = "user.create"
	PermissionUserUpdate = "user.update"
	PermissionUserDelete = "user.delete"
	PermissionUserManage = "user.manage"

	PermissionRoleView   = "role.view"
	PermissionRoleManage = "role.manage"

	PermissionPermissionView   = "permission.view"
	PermissionPermissionManage = "permission.manage"
)

// ManagedPermissions lists every permission the service's own policies consult.
func ManagedPermissions() []string {
	return []string{
		PermissionUserView, PermissionUserCreate, PermissionUserUpdate, PermissionUserDelete, PermissionUserManage,
		PermissionRoleView, PermissionRoleManage,
		PermissionPermissionView, PermissionPermissionManage,
	}
}

// Authorize turns a policy decision into ErrPermissionDenied when it is negative.
func Authorize(allowed bool, err error) error {
	if err != nil {
		return err
	}
	if !allowed {
		return ErrPermissionDenied
	}
	return nil
}

// UserPolicy decides which user operations an actor may perform.
type UserPolicy struct {
	auth  *Authorizer
	guard string
}

// NewUserPolicy constructs a UserPolicy evaluated under guard.
func NewUserPolicy(auth *Authorizer, guard string) *UserPolicy {
	return &UserPolicy{auth: auth, guard: defaultGuard(guard)}
}

func (p *UserPolicy) ViewAny(ctx context.Context, actor domain.RoleHolder) (bool, error) {
	return p.auth.CanAny(ctx, actor, p.guard, PermissionUserView, PermissionUserManage)
}

// View allows users to see themselves.
func (p *UserPolicy) View(ctx context.Context, actor, target domain.RoleHolder) (bool, error) {
	if sameHolder(actor, target) {
		return true, nil
	}
	return p.auth.CanAny(ctx, actor, p.guard, PermissionUserView, PermissionUserManage)
}

func (p *UserPolicy) Create(ctx context.Context, actor domain.RoleHolder) (bool, error) {
	return p.auth.CanAny(ctx, actor, p.guard, PermissionUserCreate, PermissionUserManage)
}

// Update allows users to edit themselves.
func (p *UserPolicy) Update(ctx context.Context, actor, target domain.RoleHolder) (bool, error) {
	if sameHolder(actor, target) {
		return true, nil
	}
	return p.auth.CanAny(ctx, actor, p.guard, PermissionUserUpdate, PermissionUserManage)
}

// Delete never grants self-deletion on identity alone.
func (p *UserPolicy) Delete(ctx context.Context, actor, _ domain.RoleHolder) (bool, error) {
	return p.auth.CanAny(ctx, actor, p.guard, PermissionUserDelete, PermissionUserManage)
}

// CatalogPolicy guards roles or permissions: reads need the view or manage permission,
// writes need manage.
type CatalogPolicy struct {
	auth   *Authorizer
	guard  string
	view   string
	manage string
}

// NewRolePolicy guards role endpoints.
func NewRolePolicy(auth *Authorizer, guard string) *CatalogPolicy {
	return &CatalogPolicy{auth: auth, guard: defaultGuard(guard), view: PermissionRoleView, manage: PermissionRoleManage}
}

// NewPermissionPolicy guards permission endpoints.
func NewPermissionPolicy(auth *Authorizer, guard string) *CatalogPolicy {
	return &CatalogPolicy{auth: auth, guard: defaultGuard(guard), view: PermissionPermissionView, manage: PermissionPermissionManage}
}

func (p *CatalogPolicy) View(ctx context.Context, actor domain.RoleHolder) (bool, error) {
	return p.auth.CanAny(ctx, actor, p.guard, p.view, p.manage)
}

func (p *CatalogPolicy) Manage(ctx context.Context, actor domain.RoleHolder) (bool, error) {
	return p.auth.Can(ctx, actor, p.manage, p.guard)
}

func sameHolder(actor, target domain.RoleHolder) bool {
	if actor == nil || target == nil {
		return false
	}
	id := actor.HolderID()
	return id != "" && id == target.HolderID()
}
