// internal/domain/user.go
package domain

import "strings"

// User is the read-only directory entry used by the fallback matcher.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
