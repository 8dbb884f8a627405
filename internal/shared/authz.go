package shared

// Authorities granted through roles.
const (
	AuthorityUser  = "ROLE_USER"
	AuthorityAdmin = "ROLE_ADMIN"
)

// DefaultRoles lists the roles assigned to a freshly registered account.
func DefaultRoles() []string {
	return []string{AuthorityUser}
}
