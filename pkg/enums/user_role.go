package enums

// UserRole gates operator endpoints.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

var userRoles = closedSet[UserRole]{UserRoleUser, UserRoleAdmin}

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return userRoles.has(r) }

// ParseUserRole accepts a role in any case, as seeded by operators.
func ParseUserRole(value string) (UserRole, error) {
	return userRoles.parse("user role", value, true)
}
