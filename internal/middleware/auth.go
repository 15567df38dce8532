package middleware

import (
	"fmt"
	"strings"

	"biogy.com/biogyapi/internal/authz"
	userRepo "biogy.com/biogyapi/internal/modules/user/repository"
	"biogy.com/biogyapi/pkg/apperror"
	"biogy.com/biogyapi/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthMiddleware validates bearer tokens issued for a user id (the "sub"
// claim) and resolves the current role from the user store.
type AuthMiddleware struct {
	userRepo userRepo.UserRepository
	secret   []byte
}

func NewAuthMiddleware(userRepo userRepo.UserRepository, secret string) *AuthMiddleware {
	return &AuthMiddleware{
		userRepo: userRepo,
		secret:   []byte(secret),
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			response.ResponseError(c, fmt.Errorf("authorization required: %w", apperror.ErrUnauthorized))
			c.Abort()
			return
		}

		if err := m.authenticate(c, tokenString); err != nil {
			response.ResponseError(c, err)
			c.Abort()
			return
		}

		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and
// lets anonymous requests through otherwise.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := extractToken(c); tokenString != "" {
			_ = m.authenticate(c, tokenString)
		}
		c.Next()
	}
}

func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(response.ContextUserID); !exists {
			response.ResponseError(c, fmt.Errorf("user not authenticated: %w", apperror.ErrUnauthorized))
			c.Abort()
			return
		}

		if c.GetString(response.ContextUserRole) != authz.RoleAdmin {
			response.ResponseError(c, fmt.Errorf("admin access required: %w", apperror.ErrForbidden))
			c.Abort()
			return
		}

		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context, tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid or expired token: %w", apperror.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return fmt.Errorf("invalid token claims: %w", apperror.ErrUnauthorized)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return fmt.Errorf("invalid token subject: %w", apperror.ErrUnauthorized)
	}

	// Deleted users keep valid tokens until expiry; the lookup rejects them.
	user, err := m.userRepo.FindByID(c.Request.Context(), userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", apperror.ErrUnauthorized)
	}

	c.Set(response.ContextUserID, user.ID.String())
	c.Set(response.ContextUserRole, user.Role)
	return nil
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// Browsers cannot set headers on websocket upgrades.
	return c.Query("token")
}
