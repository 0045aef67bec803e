package enums

import "fmt"

// ActorRole is the caller class carried in service tokens.
type ActorRole string

const (
	// ActorRoleService is the chat adapter relaying consumer and vendor commands.
	ActorRoleService ActorRole = "service"
	// ActorRoleAdmin is a platform operator.
	ActorRoleAdmin ActorRole = "admin"
	// ActorRoleVendor is a cook reading their own earnings; the token is
	// bound to one vendor id.
	ActorRoleVendor ActorRole = "vendor"
)

var validActorRoles = []ActorRole{ActorRoleService, ActorRoleAdmin, ActorRoleVendor}

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
