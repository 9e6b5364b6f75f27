package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

type scriptedGenerator struct {
	values []string
	calls  int
	max    int
}

func (g *scriptedGenerator) MaxAttempts() int { return g.max }

func (g *scriptedGenerator) GenerateCounted(_ context.Context, _ int) (string, int, error) {
	idx := g.calls
	if idx >= len(g.values) {
		idx = len(g.values) - 1
	}
	g.calls++
	return g.values[idx], 1, nil
}

func (g *scriptedGenerator) Exhausted(attempts int) error {
	return &domain.GenerationExhaustedError{Prefix: "u", Digits: 8, Attempts: attempts}
}

var (
	generatedUsername = regexp.MustCompile(`^u\d{8}$`)
	uuidPattern       = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

func TestCreateUserGeneratesUsername(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)

	user, err := f.users.Create(context.Background(), CreateUserInput{
		Name:     "Jane Doe",
		Email:    "  Jane@Example.COM ",
		Password: strongPassword,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if !generatedUsername.MatchString(user.Username) {
		t.Fatalf("expected generated username, got %q", user.Username)
	}
	if user.Email != "jane@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash != "hashed:"+strongPassword {
		t.Fatalf("expected password to be hashed, got %q", user.PasswordHash)
	}
	if user.ID != "1" {
		t.Fatalf("expected store-assigned key 1, got %q", user.ID)
	}
	if len(f.events.created) != 1 || !f.events.created[0].UsernameGenerated {
		t.Fatalf("expected one created event flagged as generated, got %+v", f.events.created)
	}
}

func TestCreateUserUUIDKeyMode(t *testing.T) {
	f := newFixture(t, domain.KeyModeUUID)

	user := f.mustCreateUser(t, "Ada Lovelace")
	if !uuidPattern.MatchString(user.ID) {
		t.Fatalf("expected v4 uuid key, got %q", user.ID)
	}
}

func TestCreateUserKeepsSuppliedUsername(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)

	user, err := f.users.Create(context.Background(), CreateUserInput{
		Name: "John", Email: "john@example.com", Username: "johnny", Password: strongPassword,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if user.Username != "johnny" || f.events.created[0].UsernameGenerated {
		t.Fatalf("expected supplied username to be kept, got %q", user.Username)
	}
}

func TestCreateUserRetriesGeneratedUsernameOnInsertConflict(t *testing.T) {
	generator := &scriptedGenerator{values: []string{"u00000001", "u00000002"}, max: 5}
	f := newFixtureWithGenerator(t, domain.KeyModeSequential, generator)

	if _, err := f.users.Create(context.Background(), CreateUserInput{
		Name: "Seed", Email: "seed@example.com", Username: "u00000001", Password: strongPassword,
	}); err != nil {
		t.Fatalf("seed Create returned error: %v", err)
	}

	user, err := f.users.Create(context.Background(), CreateUserInput{
		Name: "Racer", Email: "racer@example.com", Password: strongPassword,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if user.Username != "u00000002" {
		t.Fatalf("expected retry to pick u00000002, got %q", user.Username)
	}
	if generator.calls != 2 {
		t.Fatalf("expected 2 generated candidates, got %d", generator.calls)
	}
}

func TestCreateUserExhaustsSharedBudget(t *testing.T) {
	generator := &scriptedGenerator{values: []string{"u00000001"}, max: 3}
	f := newFixtureWithGenerator(t, domain.KeyModeSequential, generator)

	if _, err := f.users.Create(context.Background(), CreateUserInput{
		Name: "Seed", Email: "seed@example.com", Username: "u00000001", Password: strongPassword,
	}); err != nil {
		t.Fatalf("seed Create returned error: %v", err)
	}

	_, err := f.users.Create(context.Background(), CreateUserInput{
		Name: "Unlucky", Email: "unlucky@example.com", Password: strongPassword,
	})
	if !errors.Is(err, domain.ErrGenerationExhausted) {
		t.Fatalf("expected ErrGenerationExhausted, got %v", err)
	}
	var exhausted *domain.GenerationExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("expected 3 attempts to be reported, got %+v", exhausted)
	}
	if generator.calls != 3 {
		t.Fatalf("expected generation to stop at the budget, got %d calls", generator.calls)
	}
}

func TestCreateUserDuplicateEmailIsConstraintViolation(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	f.mustCreateUser(t, "Jane")

	_, err := f.users.Create(context.Background(), CreateUserInput{
		Name: "Other Jane", Email: "JANE@example.com", Password: strongPassword,
	})
	if !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
	var violation *ConstraintViolationError
	if !errors.As(err, &violation) || violation.Field != "email" {
		t.Fatalf("expected email violation, got %+v", violation)
	}
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)

	cases := []CreateUserInput{
		{Email: "a@example.com", Password: strongPassword},
		{Name: "No Email", Password: strongPassword},
		{Name: "Bad Email", Email: "not-an-email", Password: strongPassword},
		{Name: "No Password", Email: "b@example.com"},
	}
	for _, input := range cases {
		if _, err := f.users.Create(context.Background(), input); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%+v: expected ErrInvalidInput, got %v", input, err)
		}
	}
	if len(f.events.created) != 0 {
		t.Fatalf("expected no events for rejected input")
	}
}

func TestUpdateUserIgnoresBlankPassword(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	user := f.mustCreateUser(t, "Jane")

	blank := "   "
	name := "Jane Updated"
	updated, err := f.users.Update(context.Background(), user.ID, UpdateUserInput{Name: &name, Password: &blank})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.PasswordHash != user.PasswordHash {
		t.Fatalf("expected password hash to be untouched")
	}
	if updated.Name != name || updated.Username != user.Username {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if f.events.updated[0].PasswordChanged {
		t.Fatalf("expected event without password change")
	}

	fresh := "An0ther!Password"
	updated, err = f.users.Update(context.Background(), user.ID, UpdateUserInput{Password: &fresh})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.PasswordHash != "hashed:"+fresh {
		t.Fatalf("expected new password hash, got %q", updated.PasswordHash)
	}
	if !f.events.updated[1].PasswordChanged {
		t.Fatalf("expected event to flag password change")
	}
}

func TestUpdateUserBlankUsernameKeepsExisting(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	user := f.mustCreateUser(t, "Jane")

	blank := ""
	updated, err := f.users.Update(context.Background(), user.ID, UpdateUserInput{Username: &blank})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Username != user.Username {
		t.Fatalf("expected username %q to survive, got %q", user.Username, updated.Username)
	}
}

func TestUsernameMustNotContainAt(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	victim := f.mustCreateUser(t, "Jane")
	ctx := context.Background()

	_, err := f.users.Create(ctx, CreateUserInput{
		Name: "Mallory", Email: "mallory@example.com", Username: victim.Email, Password: strongPassword,
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on create, got %v", err)
	}

	other := f.mustCreateUser(t, "Mallory")
	squat := victim.Email
	if _, err := f.users.Update(ctx, other.ID, UpdateUserInput{Username: &squat}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on update, got %v", err)
	}
	stored, err := f.users.FindByID(ctx, other.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if stored.Username != other.Username {
		t.Fatalf("expected username %q to be kept, got %q", other.Username, stored.Username)
	}
}

func TestUpdateAndDeleteMissingUser(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)

	name := "ghost"
	if _, err := f.users.Update(context.Background(), "404", UpdateUserInput{Name: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if ok, err := f.users.Delete(context.Background(), "404"); ok || !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found on delete, got %v %v", ok, err)
	}
}

func TestDeleteUserThenFind(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	user := f.mustCreateUser(t, "Jane")

	ok, err := f.users.Delete(context.Background(), user.ID)
	if err != nil || !ok {
		t.Fatalf("Delete returned %v %v", ok, err)
	}

	found, err := f.users.FindByID(context.Background(), user.ID)
	if err != nil || found != nil {
		t.Fatalf("expected nil, nil after delete, got %+v %v", found, err)
	}
	found, err = f.users.FindByUsername(context.Background(), user.Username)
	if err != nil || found != nil {
		t.Fatalf("expected username lookup to miss, got %+v %v", found, err)
	}
	if len(f.events.deleted) != 1 || f.events.deleted[0].Username != user.Username {
		t.Fatalf("expected deleted event, got %+v", f.events.deleted)
	}
}

func TestFindByEmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	user := f.mustCreateUser(t, "Jane")

	found, err := f.users.FindByEmail(context.Background(), "JANE@EXAMPLE.COM")
	if err != nil || found == nil || found.ID != user.ID {
		t.Fatalf("expected to find %s, got %+v %v", user.ID, found, err)
	}
}

func TestSyncRolesReplacesAndRejectsUnknown(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	user := f.mustCreateUser(t, "Jane")
	f.mustCreateRole(t, "editor")
	f.mustCreateRole(t, "viewer")

	roles, err := f.users.SyncRoles(context.Background(), user.ID, []string{"editor", "viewer"}, "")
	if err != nil {
		t.Fatalf("SyncRoles returned error: %v", err)
	}
	if got := strings.Join(domain.RoleNames(roles), ","); got != "editor,viewer" {
		t.Fatalf("expected editor,viewer got %s", got)
	}

	_, err = f.users.SyncRoles(context.Background(), user.ID, []string{"viewer", "ghost"}, "")
	if !errors.Is(err, ErrRoleNotFound) || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected role not found naming ghost, got %v", err)
	}

	roles, _ = f.users.RolesOf(context.Background(), user.ID)
	if got := strings.Join(domain.RoleNames(roles), ","); got != "editor,viewer" {
		t.Fatalf("expected roles to be untouched after failed sync, got %s", got)
	}

	roles, err = f.users.SyncRoles(context.Background(), user.ID, []string{"viewer"}, "")
	if err != nil {
		t.Fatalf("SyncRoles returned error: %v", err)
	}
	if got := strings.Join(domain.RoleNames(roles), ","); got != "viewer" {
		t.Fatalf("expected sync to replace, got %s", got)
	}
	if len(f.events.rolesSynced) != 2 || f.events.rolesSynced[1].Additive {
		t.Fatalf("expected two non-additive sync events, got %+v", f.events.rolesSynced)
	}
}

func TestAssignRolesIsAdditive(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	user := f.mustCreateUser(t, "Jane")
	f.mustCreateRole(t, "editor")
	f.mustCreateRole(t, "viewer")

	if _, err := f.users.AssignRoles(context.Background(), user.ID, []string{"editor"}, ""); err != nil {
		t.Fatalf("AssignRoles returned error: %v", err)
	}
	roles, err := f.users.AssignRoles(context.Background(), user.ID, []string{"viewer", "viewer"}, "")
	if err != nil {
		t.Fatalf("AssignRoles returned error: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected both roles, got %v", domain.RoleNames(roles))
	}
	if f.cache.invalidations < 2 {
		t.Fatalf("expected cache to be invalidated on each assignment")
	}
}

func TestListUsersPagesAndRejectsUnknownSort(t *testing.T) {
	f := newFixture(t, domain.KeyModeSequential)
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		f.mustCreateUser(t, name)
	}

	page, err := f.users.List(context.Background(), ListQuery{Sort: "name", PageSize: 2, Page: 2})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 1 || page.Items[0].Name != "Carol" || page.LastPage() != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}

	page, _ = f.users.List(context.Background(), ListQuery{Search: "BO"})
	if page.Total != 1 || page.Items[0].Name != "Bob" || page.PageSize != DefaultPageSize {
		t.Fatalf("unexpected search page: %+v", page)
	}

	page, _ = f.users.List(context.Background(), ListQuery{PageSize: 1000})
	if page.PageSize != MaxPageSize {
		t.Fatalf("expected page size to be capped, got %d", page.PageSize)
	}

	if _, err := f.users.List(context.Background(), ListQuery{Sort: "password_hash"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown sort, got %v", err)
	}
	if _, err := f.users.List(context.Background(), ListQuery{Sort: "name", Direction: "sideways"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad direction, got %v", err)
	}
}
