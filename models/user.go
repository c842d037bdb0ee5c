package models

type UserRole string

const (
	RoleWriter    UserRole = "writer"
	RoleEditor    UserRole = "editor"
	RoleModerator UserRole = "moderator"
	RoleAdmin     UserRole = "admin"
)

// Actor is the already-authenticated caller of an engine operation. ID is
// opaque to the engine.
type Actor struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

// CanModerate reports whether the actor may act on the moderation queue.
func (a Actor) CanModerate() bool {
	return a.Role == RoleModerator || a.Role == RoleAdmin
}
