package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/islandtours/tour-booking-backend/pkg/jwt"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Roles  []string  `json:"roles"`
}

// AuthMiddleware creates a middleware that validates JWT bearer tokens
func AuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
				"code":    "MISSING_AUTH_HEADER",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid authorization header format. Expected: Bearer <token>",
				"code":    "INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Token cannot be empty",
				"code":    "INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			if jwtService.IsTokenExpired(tokenString) {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "token_expired",
					"message": "Access token has expired. Please refresh your token.",
					"code":    "TOKEN_EXPIRED",
				})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthorized",
					"message": "Invalid access token",
					"code":    "INVALID_TOKEN",
				})
			}
			c.Abort()
			return
		}

		c.Set(UserContextKey, &UserContext{
			UserID: claims.UserID,
			Email:  claims.Email,
			Roles:  claims.Roles,
		})

		c.Next()
	}
}

// GetUserContext retrieves the authenticated user from the Gin context
func GetUserContext(c *gin.Context) (*UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return nil, false
	}
	userCtx, ok := value.(*UserContext)
	return userCtx, ok
}
