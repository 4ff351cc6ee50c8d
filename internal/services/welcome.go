package services

import (
	"fmt"

	"github.com/sbilibin2017/gw-user-signup/internal/models"
)

// WelcomeSubject is the subject line of the registration confirmation email.
const WelcomeSubject = "Welcome! Registration Successful"

// WelcomeBody renders the plain-text registration confirmation for user.
func WelcomeBody(user *models.UserDB) string {
	name := user.FirstName
	if name == "" {
		name = user.Username
	}

	return fmt.Sprintf(`Hello %s,

Thank you for registering with us!

Your account has been successfully created with the following details:
- Username: %s
- Email: %s

We're excited to have you on board!

Best regards,
The Team
`, name, user.Username, user.Email)
}
