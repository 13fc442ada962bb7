package services

// Administrative roles. Identity is resolved by a trusted upstream
// component; every operation re-checks role and ownership itself
// instead of relying on an ambient security context.
const (
	RoleFinanceAdmin = "FINANCE_ADMIN"
	RoleSuperAdmin   = "SUPER_ADMIN"
)

// Identity is the resolved caller of an operation.
type Identity struct {
	ID       string
	Roles    []string
	SourceIP string
}

// HasRole reports whether the identity carries any of the given roles.
func (id Identity) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range id.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsAdmin reports whether the identity may use the privileged escrow
// surface.
func (id Identity) IsAdmin() bool {
	return id.HasRole(RoleFinanceAdmin, RoleSuperAdmin)
}
