// Package access maps roles to capability sets. Policy is role→capability,
// not per-operation allow-lists: every mutation entry point asks the same
// yes/no question, which keeps the rule auditable in one place.
package access

import (
	"errors"

	"github.com/sluicedb/sluice/internal/model"
)

// Capability is a named permission granted wholesale per role.
type Capability string

const (
	Read  Capability = "read"
	Write Capability = "write"
	Admin Capability = "admin"
)

// ErrForbidden indicates the caller's role does not grant the capability.
var ErrForbidden = errors.New("forbidden")

// Capabilities returns the capability set for a role. Admin implies read
// and write.
func Capabilities(role model.Role) []Capability {
	switch role {
	case model.RoleAdmin:
		return []Capability{Read, Write, Admin}
	case model.RoleUser:
		return []Capability{Read}
	default:
		return nil
	}
}

// Can reports whether the role grants the capability.
func Can(role model.Role, c Capability) bool {
	for _, have := range Capabilities(role) {
		if have == c {
			return true
		}
	}
	return false
}

// Require checks the identity against the capability and returns
// ErrForbidden when it is missing or the caller is unauthenticated.
func Require(id *model.Identity, c Capability) error {
	if id == nil || !Can(id.Role, c) {
		return ErrForbidden
	}
	return nil
}

// CanRead reports whether the identity may perform read operations.
func CanRead(id *model.Identity) bool { return id != nil && Can(id.Role, Read) }

// CanWrite reports whether the identity may perform mutating operations.
func CanWrite(id *model.Identity) bool { return id != nil && Can(id.Role, Write) }

// IsAdmin reports whether the identity holds the admin capability.
func IsAdmin(id *model.Identity) bool { return id != nil && Can(id.Role, Admin) }
