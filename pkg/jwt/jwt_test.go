package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func TestNewService(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, time.Hour, service.accessTokenExpiry)
}

func TestGenerateAccessToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()
	email := "traveller@example.com"
	roles := []string{"customer"}

	token, err := service.GenerateAccessToken(userID, email, roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Validate the generated token
	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, email, claims.Email)
	assert.Equal(t, roles, claims.Roles)
}

func TestValidateAccessToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()
	email := "traveller@example.com"
	roles := []string{"customer", "admin"}

	token, err := service.GenerateAccessToken(userID, email, roles)
	require.NoError(t, err)

	// Test valid token
	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, email, claims.Email)
	assert.Equal(t, roles, claims.Roles)

	// Test invalid token
	_, err = service.ValidateAccessToken("invalid.token.here")
	assert.Error(t, err)

	// Test token with wrong secret
	wrongService := NewService("wrong-secret", time.Hour)
	_, err = wrongService.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	// Create service with very short expiry
	service := NewService(testSecret, time.Millisecond)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, "traveller@example.com", []string{"customer"})
	require.NoError(t, err)

	// Wait for token to expire
	time.Sleep(10 * time.Millisecond)

	_, err = service.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestExtractClaims(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()
	email := "traveller@example.com"
	roles := []string{"customer"}

	token, err := service.GenerateAccessToken(userID, email, roles)
	require.NoError(t, err)

	claims, err := service.ExtractClaims(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, email, claims.Email)
	assert.Equal(t, roles, claims.Roles)
}

func TestIsTokenExpired(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, "traveller@example.com", []string{"customer"})
	require.NoError(t, err)

	assert.False(t, service.IsTokenExpired(token))

	// Test expired token
	expiredService := NewService(testSecret, -time.Hour)
	expiredToken, err := expiredService.GenerateAccessToken(userID, "traveller@example.com", []string{"customer"})
	require.NoError(t, err)

	assert.True(t, service.IsTokenExpired(expiredToken))

	// Test invalid token
	assert.True(t, service.IsTokenExpired("invalid.token.here"))
}

func TestTokenSigningMethod(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()

	// Verify that our service generates HS256 tokens
	token, err := service.GenerateAccessToken(userID, "traveller@example.com", []string{"customer"})
	require.NoError(t, err)

	// Parse to check method
	parsedToken, err := jwt.ParseWithClaims(token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)

	_, ok := parsedToken.Method.(*jwt.SigningMethodHMAC)
	assert.True(t, ok, "Token should use HMAC signing method")
}

func TestTokenIssuerAndSubject(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, "traveller@example.com", []string{"customer"})
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "islandtours-booking", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestMultipleRoles(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()
	roles := []string{"customer", "admin", "super_admin"}

	token, err := service.GenerateAccessToken(userID, "traveller@example.com", roles)
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, roles, claims.Roles)
	assert.Len(t, claims.Roles, 3)
}

func TestEmptyRoles(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, "traveller@example.com", []string{})
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Empty(t, claims.Roles)
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	done := make(chan bool)
	errors := make(chan error, 100)

	// Generate 100 tokens concurrently
	for i := 0; i < 100; i++ {
		go func() {
			userID := uuid.New()

			token, err := service.GenerateAccessToken(userID, "traveller@example.com", []string{"customer"})
			if err != nil {
				errors <- err
				done <- true
				return
			}

			_, err = service.ValidateAccessToken(token)
			if err != nil {
				errors <- err
			}
			done <- true
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 100; i++ {
		<-done
	}

	close(errors)
	assert.Empty(t, errors)
}
