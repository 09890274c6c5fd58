package domain

// Role is an actor's capability level within a community.
type Role string

const (
	RoleMember    Role = "member"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Actor identifies who is performing an operation and with what capability.
type Actor struct {
	UserID string
	Role   Role
}

// CanModerate reports whether the actor may approve or reject signups and
// mark attendance on behalf of other users.
func (a Actor) CanModerate() bool {
	return a.Role == RoleOrganizer || a.Role == RoleAdmin
}
