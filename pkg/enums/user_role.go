package enums

import "fmt"

// UserRole partitions the API surface. Sponsors run the depot side
// (shipments out, kit imports, stock corrections); coordinators run the
// site side (acknowledgments, enrollment submissions).
type UserRole string

const (
	RoleSponsor     UserRole = "sponsor"
	RoleCoordinator UserRole = "coordinator"
	RoleMonitor     UserRole = "monitor"
)

var validUserRoles = []UserRole{
	RoleSponsor,
	RoleCoordinator,
	RoleMonitor,
}

func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
