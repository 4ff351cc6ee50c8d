package services

import (
	"testing"

	"github.com/sbilibin2017/gw-user-signup/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestWelcomeBody(t *testing.T) {
	body := WelcomeBody(&models.UserDB{Username: "alice", Email: "alice@example.com", FirstName: "Alice"})
	assert.Contains(t, body, "Hello Alice,")
	assert.Contains(t, body, "- Username: alice")
	assert.Contains(t, body, "- Email: alice@example.com")

	body = WelcomeBody(&models.UserDB{Username: "bob", Email: "bob@example.com"})
	assert.Contains(t, body, "Hello bob,")
}
