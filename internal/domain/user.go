package domain

// Role is the authorization level the backend assigns to a user.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// Valid reports whether r is one of the roles the backend issues.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User represents the authenticated identity returned by the profile endpoint.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Session is a point-in-time view of the client's authentication state.
type Session struct {
	Token           string
	User            *User
	IsAuthenticated bool
	IsLoading       bool
}

// HasRole reports whether the session belongs to an authenticated user holding role.
func (s Session) HasRole(role Role) bool {
	return s.IsAuthenticated && s.User != nil && s.User.Role == role
}
