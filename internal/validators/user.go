// Package validators holds side-effect free checks applied to signup input.
package validators

import "regexp"

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail reports whether email looks like local@domain.tld.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePassword reports whether password is long enough.
// Length is counted in characters, not bytes.
func ValidatePassword(password string) bool {
	return len([]rune(password)) >= MinPasswordLength
}
