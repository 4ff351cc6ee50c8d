package models

import (
	"time"
)

// UserDB represents a user record in the user store.
type UserDB struct {
	UserID    string    `json:"id" db:"id"`                 // Store-assigned identifier
	Username  string    `json:"username" db:"username"`     // Unique username
	Email     string    `json:"email" db:"email"`           // Unique, lower-cased email
	Password  string    `json:"-" db:"password"`            // Password digest, never plaintext
	FirstName string    `json:"first_name" db:"first_name"` // Optional
	LastName  string    `json:"last_name" db:"last_name"`   // Optional
	CreatedAt time.Time `json:"created_at" db:"created_at"` // Creation timestamp, UTC
	IsActive  bool      `json:"is_active" db:"is_active"`   // Active flag, true at creation
}
