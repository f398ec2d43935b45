package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilgate/aegis/internal/config"
	"github.com/veilgate/aegis/internal/models"
)

func TestAuthService_Register(t *testing.T) {
	db := setupTestDB(t)
	cfg := config.Config{JWTSecret: "test-secret"}
	service := NewAuthService(db, cfg)

	// First user should be admin
	admin, err := service.Register("admin@example.com", "password123", "Admin User")
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Role)
	assert.NotEmpty(t, admin.PasswordHash)
	assert.NotEqual(t, "password123", admin.PasswordHash)

	// Second user should be a viewer
	user, err := service.Register("user@example.com", "password123", "Regular User")
	require.NoError(t, err)
	assert.Equal(t, "viewer", user.Role)

	// Duplicate email rejected
	_, err = service.Register("user@example.com", "password123", "Copycat")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuthService_Login(t *testing.T) {
	db := setupTestDB(t)
	cfg := config.Config{JWTSecret: "test-secret"}
	service := NewAuthService(db, cfg)

	_, err := service.Register("test@example.com", "password123", "Test User")
	require.NoError(t, err)

	// Successful login
	token, err := service.Login("test@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Invalid password
	token, err = service.Login("test@example.com", "wrongpassword")
	assert.Error(t, err)
	assert.Empty(t, token)
	assert.Equal(t, "invalid credentials", err.Error())

	// Account locking after repeated failures
	for i := 0; i < 4; i++ {
		_, err = service.Login("test@example.com", "wrongpassword")
		assert.Error(t, err)
	}

	var user models.User
	db.Where("email = ?", "test@example.com").First(&user)
	assert.Equal(t, 5, user.FailedLoginAttempts)
	require.NotNil(t, user.LockedUntil)
	assert.True(t, user.LockedUntil.After(time.Now()))

	// Locked account rejects even the correct password
	_, err = service.Login("test@example.com", "password123")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestAuthService_ValidateToken(t *testing.T) {
	db := setupTestDB(t)
	cfg := config.Config{JWTSecret: "test-secret"}
	service := NewAuthService(db, cfg)

	_, err := service.Register("test@example.com", "password123", "Test User")
	require.NoError(t, err)

	token, err := service.Login("test@example.com", "password123")
	require.NoError(t, err)

	t.Run("valid token maps back to the account", func(t *testing.T) {
		user, err := service.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "test@example.com", user.Email)
		assert.Equal(t, "admin", user.Role)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		_, err := service.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("token signed with another secret rejected", func(t *testing.T) {
		other := NewAuthService(db, config.Config{JWTSecret: "other-secret"})
		_, err := other.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("disabled account rejected", func(t *testing.T) {
		require.NoError(t, db.Model(&models.User{}).Where("email = ?", "test@example.com").Update("enabled", false).Error)
		_, err := service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrUserDisabled)
	})
}
