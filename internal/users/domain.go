// Package users manages account records: CRUD for administrators plus the
// profile surface exposed to the authenticated user.
package users

import "time"

// User is an account. Password hashes never leave the package.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Phone          string     `json:"phone"`
	Identification string     `json:"identificacion"`
	Avatar         string     `json:"avatar"`
	IsActive       bool       `json:"is_active"`
	IsStaff        bool       `json:"is_staff"`
	IsSuperuser    bool       `json:"is_superuser"`
	VerifiedEmail  bool       `json:"verified_email"`
	GPSLatitude    *float64   `json:"gps_latitude"`
	GPSLongitude   *float64   `json:"gps_longitude"`
	IsActiveGPS    bool       `json:"is_active_gps"`
	LastConnection *time.Time `json:"last_connection"`
	DateJoined     time.Time  `json:"date_joined"`
	Roles          []RoleRef  `json:"roles"`
}

// RoleRef is the role summary embedded in user payloads.
type RoleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// FullName joins first and last name, trimming when either is empty.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
