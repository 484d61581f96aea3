package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/festpass/registration-backend/internal/models"
	"github.com/festpass/registration-backend/pkg/jwt"
)

// AdminContextKey is the key used to store the admin identity in the gin context
const AdminContextKey = "admin"

// AdminContext represents the authenticated admin's identity
type AdminContext struct {
	AdminID uuid.UUID `json:"admin_id"`
	Email   string    `json:"email"`
	Roles   []string  `json:"roles"`
}

// HasRole reports whether the admin holds role
func (a AdminContext) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthMiddleware validates a Bearer access token and stores the admin identity
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{
			"path":       c.Request.URL.Path,
			"ip":         c.ClientIP(),
			"request_id": GetRequestID(c),
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.WithFields(fields).Warn("AUTH FAILED: missing authorization header")
			abortWithError(c, models.AuthenticationError("Authorization header is required"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			logger.WithFields(fields).Warn("AUTH FAILED: invalid authorization format")
			abortWithError(c, models.AuthenticationError("Invalid authorization header format. Expected: Bearer <token>"))
			return
		}

		claims, err := jwtService.ValidateAccessToken(strings.TrimSpace(parts[1]))
		if err != nil {
			logger.WithFields(fields).WithError(err).Warn("AUTH FAILED: invalid token")
			if errors.Is(err, jwtlib.ErrTokenExpired) {
				abortWithError(c, models.AuthenticationError("Access token has expired. Please refresh your token."))
				return
			}
			abortWithError(c, models.AuthenticationError("Invalid access token"))
			return
		}

		c.Set(AdminContextKey, AdminContext{
			AdminID: claims.AdminID,
			Email:   claims.Email,
			Roles:   claims.Roles,
		})

		c.Next()
	}
}

// RequireRole rejects requests whose admin holds none of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminCtx, exists := GetAdminContext(c)
		if !exists {
			abortWithError(c, models.AuthenticationError("Authentication required"))
			return
		}

		for _, role := range roles {
			if adminCtx.HasRole(role) {
				c.Next()
				return
			}
		}

		abortWithError(c, models.NewAppError(models.KindForbidden, "You don't have permission to access this resource", nil))
	}
}

// GetAdminContext retrieves the admin identity from the gin context
func GetAdminContext(c *gin.Context) (AdminContext, bool) {
	value, exists := c.Get(AdminContextKey)
	if !exists {
		return AdminContext{}, false
	}

	adminCtx, ok := value.(AdminContext)
	return adminCtx, ok
}

func abortWithError(c *gin.Context, err *models.AppError) {
	c.AbortWithStatusJSON(err.Status, models.NewErrorResponse(err, GetRequestID(c)))
}
