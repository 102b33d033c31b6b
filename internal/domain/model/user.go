package model

import (
	"time"
)

type Role string

const (
	RoleAdministrator Role = "Administrator"
	RoleSupervisor    Role = "Supervisor"
	RoleUser          Role = "User"
)

// Role ids as stored in the roles table.
const (
	RoleIDAdministrator = 1
	RoleIDSupervisor    = 2
	RoleIDUser          = 3
)

var roleIDs = map[Role]int{
	RoleAdministrator: RoleIDAdministrator,
	RoleSupervisor:    RoleIDSupervisor,
	RoleUser:          RoleIDUser,
}

// Valid reports whether r is one of the known roles. Matching is exact.
func (r Role) Valid() bool {
	_, ok := roleIDs[r]
	return ok
}

// ID returns the role id paired with r, or 0 for an unknown role.
func (r Role) ID() int {
	return roleIDs[r]
}

// RoleFromID returns the role paired with id.
func RoleFromID(id int) (Role, bool) {
	for role, roleID := range roleIDs {
		if roleID == id {
			return role, true
		}
	}
	return "", false
}

type User struct {
	ID             int64     `json:"id" db:"id"`
	Username       string    `json:"username" db:"username"`
	HashedPassword string    `json:"-" db:"password_hash"` // Not exposed
	Role           Role      `json:"role" db:"role"`
	RoleID         int       `json:"roleId" db:"role_id"`
	CreatedAt      time.Time `json:"createdAt,omitempty" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

// EffectiveRole is the role used for permission checks. A role that is not
// recognized, or that disagrees with RoleID, degrades to RoleUser.
func (u *User) EffectiveRole() Role {
	if u == nil {
		return ""
	}
	if !u.Role.Valid() || u.Role.ID() != u.RoleID {
		return RoleUser
	}
	return u.Role
}
