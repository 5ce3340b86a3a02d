package user

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Profile mirrors a row of the remote profiles table. ID is the auth user id.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the authenticated principal carried by a session.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"` // signup metadata, may be empty
	CreatedAt   time.Time `json:"createdAt"`
}

// RoleFor derives the role from the session e-mail. Nothing about roles is
// stored; the remote policy uses the same address comparison.
func RoleFor(email, adminEmail string) Role {
	if adminEmail != "" && email == adminEmail {
		return RoleAdmin
	}
	return RoleUser
}
