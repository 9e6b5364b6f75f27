package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
)

func TestCanThroughRoleAndDirectGrant(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	f.mustCreatePermissions(t, "", "post.view", "post.edit", "post.delete")
	f.mustCreateRole(t, "editor", "post.view", "post.edit")
	user := f.mustCreateUser(t, "Jane")
	ctx := context.Background()

	if ok, err := f.authorizer.Can(ctx, user, "post.view", ""); err != nil || ok {
		t.Fatalf("expected no permission before assignment, got %v %v", ok, err)
	}

	if _, err := f.users.AssignRoles(ctx, user.ID, []string{"editor"}, ""); err != nil {
		t.Fatalf("AssignRoles returned error: %v", err)
	}
	if ok, _ := f.authorizer.Can(ctx, user, "post.edit", ""); !ok {
		t.Fatalf("expected post.edit through editor role")
	}
	if ok, _ := f.authorizer.Can(ctx, user, "post.delete", ""); ok {
		t.Fatalf("expected post.delete to be denied")
	}

	if _, err := f.users.GivePermissions(ctx, user.ID, []string{"post.delete"}, ""); err != nil {
		t.Fatalf("GivePermissions returned error: %v", err)
	}
	if ok, _ := f.authorizer.Can(ctx, domain.SubjectID(user.ID), "post.delete", ""); !ok {
		t.Fatalf("expected direct grant to be visible after cache invalidation")
	}
}

func TestCanKeepsGuardsApart(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	f.mustCreatePermissions(t, "api", "post.view")
	user := f.mustCreateUser(t, "Jane")
	ctx := context.Background()

	if _, err := f.users.GivePermissions(ctx, user.ID, []string{"post.view"}, "api"); err != nil {
		t.Fatalf("GivePermissions returned error: %v", err)
	}
	if ok, _ := f.authorizer.Can(ctx, user, "post.view", "api"); !ok {
		t.Fatalf("expected permission under api guard")
	}
	if ok, _ := f.authorizer.Can(ctx, user, "post.view", ""); ok {
		t.Fatalf("expected permission to be absent under default guard")
	}
}

func TestCanUsesCacheUntilInvalidated(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	f.mustCreatePermissions(t, "", "post.view")
	role := f.mustCreateRole(t, "viewer", "post.view")
	user := f.mustCreateUser(t, "Jane")
	ctx := context.Background()
	if _, err := f.users.AssignRoles(ctx, user.ID, []string{"viewer"}, ""); err != nil {
		t.Fatalf("AssignRoles returned error: %v", err)
	}

	f.authorizer.Can(ctx, user, "post.view", "")
	f.authorizer.Can(ctx, user, "post.view", "")
	if f.cache.hits != 1 {
		t.Fatalf("expected second check to hit the cache, got %d hits", f.cache.hits)
	}

	if _, err := f.roles.SyncPermissions(ctx, role.ID, nil); err != nil {
		t.Fatalf("SyncPermissions returned error: %v", err)
	}
	if ok, _ := f.authorizer.Can(ctx, user, "post.view", ""); ok {
		t.Fatalf("expected revoked permission to be denied after invalidation")
	}
}

func TestCanWithoutHolder(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)

	if ok, err := f.authorizer.Can(context.Background(), nil, "post.view", ""); ok || err != nil {
		t.Fatalf("expected nil holder to be denied, got %v %v", ok, err)
	}
	if ok, err := f.authorizer.Can(context.Background(), domain.SubjectID(""), "post.view", ""); ok || err != nil {
		t.Fatalf("expected blank holder to be denied, got %v %v", ok, err)
	}
}

func TestHasRole(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	f.mustCreateRole(t, "editor")
	user := f.mustCreateUser(t, "Jane")
	if _, err := f.users.AssignRoles(context.Background(), user.ID, []string{"editor"}, ""); err != nil {
		t.Fatalf("AssignRoles returned error: %v", err)
	}

	if ok, _ := f.authorizer.HasRole(context.Background(), user, "editor", ""); !ok {
		t.Fatalf("expected editor role")
	}
	if ok, _ := f.authorizer.HasRole(context.Background(), user, "editor", "api"); ok {
		t.Fatalf("expected role to be scoped to its guard")
	}
}

func TestUserPolicy(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	f.mustCreatePermissions(t, "", PermissionUserView, PermissionUserManage)
	f.mustCreateRole(t, "auditor", PermissionUserView)
	f.mustCreateRole(t, "admin", PermissionUserManage)
	auditor := f.mustCreateUser(t, "Auditor")
	admin := f.mustCreateUser(t, "Admin")
	plain := f.mustCreateUser(t, "Plain")
	ctx := context.Background()
	f.users.AssignRoles(ctx, auditor.ID, []string{"auditor"}, "")
	f.users.AssignRoles(ctx, admin.ID, []string{"admin"}, "")

	policy := NewUserPolicy(f.authorizer, "")

	if ok, _ := policy.View(ctx, plain, plain); !ok {
		t.Fatalf("expected users to view themselves")
	}
	if ok, _ := policy.View(ctx, plain, admin); ok {
		t.Fatalf("expected plain user not to view others")
	}
	if ok, _ := policy.ViewAny(ctx, auditor); !ok {
		t.Fatalf("expected auditor to list users")
	}
	if ok, _ := policy.Update(ctx, auditor, plain); ok {
		t.Fatalf("expected auditor not to update others")
	}
	if ok, _ := policy.Update(ctx, plain, plain); !ok {
		t.Fatalf("expected users to update themselves")
	}
	if ok, _ := policy.Delete(ctx, plain, plain); ok {
		t.Fatalf("expected self-deletion to need a permission")
	}
	if ok, _ := policy.Delete(ctx, admin, plain); !ok {
		t.Fatalf("expected manage permission to allow deletion")
	}
	if ok, _ := policy.Create(ctx, admin); !ok {
		t.Fatalf("expected manage permission to allow creation")
	}

	if err := Authorize(policy.Create(ctx, plain)); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCatalogPolicy(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	f.mustCreatePermissions(t, "", PermissionRoleView)
	f.mustCreateRole(t, "reader", PermissionRoleView)
	user := f.mustCreateUser(t, "Reader")
	ctx := context.Background()
	f.users.AssignRoles(ctx, user.ID, []string{"reader"}, "")

	roles := NewRolePolicy(f.authorizer, "")
	if ok, _ := roles.View(ctx, user); !ok {
		t.Fatalf("expected role.view to allow reads")
	}
	if ok, _ := roles.Manage(ctx, user); ok {
		t.Fatalf("expected role.view not to allow writes")
	}

	permissions := NewPermissionPolicy(f.authorizer, "")
	if ok, _ := permissions.View(ctx, user); ok {
		t.Fatalf("expected permission catalogue to stay hidden")
	}
}

type interleavedPermissions struct {
	port.PermissionRepository
	afterList func()
}

func (r *interleavedPermissions) ListByUser(ctx context.Context, userID string, guard string) ([]domain.Permission, error) {
	permissions, err := r.PermissionRepository.ListByUser(ctx, userID, guard)
	if r.afterList != nil {
		hook := r.afterList
		r.afterList = nil
		hook()
	}
	return permissions, err
}

func TestCanDoesNotCacheSetLoadedBeforeInvalidation(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	f.mustCreatePermissions(t, "", "post.view")
	user := f.mustCreateUser(t, "Jane")
	ctx := context.Background()
	if _, err := f.users.GivePermissions(ctx, user.ID, []string{"post.view"}, ""); err != nil {
		t.Fatalf("GivePermissions returned error: %v", err)
	}
	permission, err := f.permissions.FindByName(ctx, "post.view", "")
	if err != nil {
		t.Fatalf("FindByName returned error: %v", err)
	}

	repo := &interleavedPermissions{PermissionRepository: f.store.Permissions()}
	repo.afterList = func() {
		if _, err := f.permissions.Delete(ctx, permission.ID); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}
	}
	authorizer := NewAuthorizer(repo, f.store.Roles(), f.cache, "", nil)

	if ok, _ := authorizer.Can(ctx, user, "post.view", ""); !ok {
		t.Fatalf("expected the set read before the delete to grant post.view")
	}
	if ok, _ := authorizer.Can(ctx, user, "post.view", ""); ok {
		t.Fatalf("expected deleted permission to be denied on the next check")
	}
}
