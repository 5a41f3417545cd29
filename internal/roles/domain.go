package roles

import "time"

// Role is a named bundle of resources assignable to users.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Assignment reports the outcome of a bulk-assign operation: exactly the ids
// that resolved to real entities, so callers can detect partial application.
type Assignment struct {
	Assigned []string `json:"assigned"`
}
