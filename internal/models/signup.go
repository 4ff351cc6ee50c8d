package models

// SignupRequest represents the JSON body for user signup
// swagger:model SignupRequest
type SignupRequest struct {
	// Username
	// required: true
	// example: john_doe
	Username string `json:"username"`

	// Email
	// required: true
	// example: john@example.com
	Email string `json:"email"`

	// Password, at least 8 characters
	// required: true
	// example: securepassword123
	Password string `json:"password"`

	// First name
	// example: John
	FirstName string `json:"first_name"`

	// Last name
	// example: Doe
	LastName string `json:"last_name"`
}

// SignupResponse represents a successful signup response
// swagger:model SignupResponse
type SignupResponse struct {
	// Success message
	// example: User registered successfully! Please check your email for confirmation.
	Message string `json:"message"`

	// Identifier assigned by the user store
	// example: 652f1c8e9b1d4a0012345678
	UserID string `json:"user_id"`
}

// ErrorResponse represents an error response
// swagger:model ErrorResponse
type ErrorResponse struct {
	// Error message
	// example: User with this email or username already exists
	Error string `json:"error"`
}

// UserRegisteredEvent is published after a user record is inserted.
type UserRegisteredEvent struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}
