// Package agent defines the fixed roster of worker roles.
package agent

import "fmt"

// Role identifies one specialized worker. The roster is static; roles have no
// persisted lifecycle of their own.
type Role string

const (
	RoleCommander   Role = "commander"   // strategist
	RoleScout       Role = "scout"       // researcher
	RoleSpy         Role = "spy"         // competitor and trend intel
	RoleWriter      Role = "writer"      // copy and long-form content
	RoleArtist      Role = "artist"      // visual creator
	RoleBroadcaster Role = "broadcaster" // publisher
	RoleAmbassador  Role = "ambassador"  // audience engagement
	RoleOracle      Role = "oracle"      // analyst
)

// CreatorHuman is the created_by value for tasks submitted by a person.
const CreatorHuman = "human"

// Roster lists every role in display order.
var Roster = []Role{
	RoleCommander,
	RoleScout,
	RoleSpy,
	RoleWriter,
	RoleArtist,
	RoleBroadcaster,
	RoleAmbassador,
	RoleOracle,
}

// Valid reports whether r is a member of the roster.
func (r Role) Valid() bool {
	switch r {
	case RoleCommander, RoleScout, RoleSpy, RoleWriter, RoleArtist,
		RoleBroadcaster, RoleAmbassador, RoleOracle:
		return true
	}
	return false
}

// ContentProducing reports whether work from this role must pass review
// before it can be published.
func (r Role) ContentProducing() bool {
	return r == RoleWriter || r == RoleArtist
}

// ParseRole converts s to a Role, rejecting anything outside the roster.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// ValidCreator reports whether s is an acceptable created_by value.
func ValidCreator(s string) bool {
	return s == CreatorHuman || Role(s).Valid()
}

// Status is the derived activity state of a role for one business.
type Status string

const (
	StatusActive  Status = "active"
	StatusWorking Status = "working"
	StatusIdle    Status = "idle"
	StatusError   Status = "error"
)
