package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users       *UserRepository
	Roles       *RoleRepository
	Permissions *PermissionRepository
}

// NewRepositories wires all repositories backed by the provided pool or transaction.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Users:       NewUserRepository(exec),
		Roles:       NewRoleRepository(exec),
		Permissions: NewPermissionRepository(exec),
	}
}
