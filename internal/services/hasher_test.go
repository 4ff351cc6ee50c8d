package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSHA256Hasher(t *testing.T) {
	got, err := SHA256Hasher{}.Hash("password")
	require.NoError(t, err)
	assert.Equal(t, "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8", got)
}

func TestBcryptHasher(t *testing.T) {
	got, err := BcryptHasher{Cost: bcrypt.MinCost}.Hash("securepassword123")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(got), []byte("securepassword123")))
}

func TestNewPasswordHasher(t *testing.T) {
	h, err := NewPasswordHasher("")
	require.NoError(t, err)
	assert.IsType(t, SHA256Hasher{}, h)

	h, err = NewPasswordHasher(HasherBcrypt)
	require.NoError(t, err)
	assert.IsType(t, BcryptHasher{}, h)

	_, err = NewPasswordHasher("md5")
	assert.Error(t, err)
}
