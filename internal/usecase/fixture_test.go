package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/identity"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository/memory"
)

const strongPassword = "Sup3r!SecurePass#7890"

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (fakeHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "hashed:"+password, nil
}

type recordingPublisher struct {
	mu          sync.Mutex
	created     []domain.UserCreatedEvent
	updated     []domain.UserUpdatedEvent
	deleted     []domain.UserDeletedEvent
	rolesSynced []domain.UserRolesSyncedEvent
	permsSynced []domain.RolePermissionsSyncedEvent
}

func (p *recordingPublisher) PublishUserCreated(_ context.Context, e domain.UserCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishUserUpdated(_ context.Context, e domain.UserUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, e)
	return nil
}

func (p *recordingPublisher) PublishUserDeleted(_ context.Context, e domain.UserDeletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, e)
	return nil
}

func (p *recordingPublisher) PublishUserRolesSynced(_ context.Context, e domain.UserRolesSyncedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rolesSynced = append(p.rolesSynced, e)
	return nil
}

func (p *recordingPublisher) PublishRolePermissionsSynced(_ context.Context, e domain.RolePermissionsSyncedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permsSynced = append(p.permsSynced, e)
	return nil
}

type mapCache struct {
	mu            sync.Mutex
	generation    int64
	entries       map[string][]string
	hits          int
	invalidations int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]string)}
}

func (c *mapCache) GetPermissions(_ context.Context, userID, guard string) (port.CachedPermissions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	names, ok := c.entries[userID+"|"+guard]
	if ok {
		c.hits++
	}
	return port.CachedPermissions{Names: names, Generation: c.generation, Hit: ok}, nil
}

func (c *mapCache) SetPermissions(_ context.Context, generation int64, userID, guard string, names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return nil
	}
	c.entries[userID+"|"+guard] = names
	return nil
}

func (c *mapCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries = make(map[string][]string)
	c.invalidations++
	return nil
}

type fixture struct {
	store       *memory.Store
	users       *UserService
	roles       *RoleService
	permissions *PermissionService
	authorizer  *Authorizer
	events      *recordingPublisher
	cache       *mapCache
}

func newFixture(t *testing.T, mode domain.KeyMode) *fixture {
	t.Helper()
	return newFixtureWithGenerator(t, mode, nil)
}

func newFixtureWithGenerator(t *testing.T, mode domain.KeyMode, usernames UsernameGenerator) *fixture {
	t.Helper()

	store := memory.NewStore()
	keys := identity.NewKeyAssigner(mode)
	events := &recordingPublisher{}
	cache := newMapCache()

	if usernames == nil {
		generator, err := identity.NewUniqueValueGenerator(identity.ExistenceFunc(store.Users().ExistsByUsername), identity.GeneratorOptions{})
		if err != nil {
			t.Fatalf("NewUniqueValueGenerator returned error: %v", err)
		}
		usernames = generator
	}

	users, err := NewUserService(UserServiceDeps{
		Users:       store.Users(),
		Roles:       store.Roles(),
		Permissions: store.Permissions(),
		Keys:        keys,
		Usernames:   usernames,
		Hasher:      fakeHasher{},
		Events:      events,
		Cache:       cache,
	})
	if err != nil {
		t.Fatalf("NewUserService returned error: %v", err)
	}
	roles, err := NewRoleService(RoleServiceDeps{
		Roles:       store.Roles(),
		Permissions: store.Permissions(),
		Keys:        keys,
		Events:      events,
		Cache:       cache,
	})
	if err != nil {
		t.Fatalf("NewRoleService returned error: %v", err)
	}

	return &fixture{
		store:       store,
		users:       users,
		roles:       roles,
		permissions: NewPermissionService(store.Permissions(), keys, cache, "", nil),
		authorizer:  NewAuthorizer(store.Permissions(), store.Roles(), cache, "", nil),
		events:      events,
		cache:       cache,
	}
}

func (f *fixture) mustCreateUser(t *testing.T, name string) *domain.User {
	t.Helper()
	user, err := f.users.Create(context.Background(), CreateUserInput{
		Name:     name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Password: strongPassword,
	})
	if err != nil {
		t.Fatalf("Create user %q returned error: %v", name, err)
	}
	return user
}

func (f *fixture) mustCreatePermissions(t *testing.T, guard string, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := f.permissions.Create(context.Background(), CreatePermissionInput{Name: name, GuardName: guard}); err != nil {
			t.Fatalf("Create permission %q returned error: %v", name, err)
		}
	}
}

func (f *fixture) mustCreateRole(t *testing.T, name string, permissions ...string) *domain.Role {
	t.Helper()
	role, err := f.roles.Create(context.Background(), CreateRoleInput{Name: name, Permissions: permissions})
	if err != nil {
		t.Fatalf("Create role %q returned error: %v", name, err)
	}
	return role
}
