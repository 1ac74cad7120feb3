package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/utils"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "user_role"

	RoleAdmin   = "admin"
	RoleService = "service"

	authCookie = "jwt_token"
)

// AuthRequired accepts either the shared service key in X-API-KEY or a JWT
// from the jwt_token cookie or the Authorization header. Service callers act
// on behalf of the user named in X-User-ID, if any.
func AuthRequired(secret []byte, apiKey string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-API-KEY"); apiKey != "" && key != "" &&
			subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			c.Set(ContextRole, RoleService)
			if id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64); err == nil && id > 0 {
				c.Set(ContextUserID, id)
			}
			c.Next()
			return
		}

		tokenString := bearerToken(c)
		if tokenString == "" {
			logger.Debug("no token on protected route", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
			return
		}
		claims, err := utils.ValidateJWT(secret, tokenString)
		if err != nil {
			logger.Info("rejected invalid token", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// OptionalAuth attaches the caller's identity when a valid token is present
// and never rejects the request.
func OptionalAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := bearerToken(c); tokenString != "" {
			if claims, err := utils.ValidateJWT(secret, tokenString); err == nil {
				c.Set(ContextUserID, claims.UserID)
				c.Set(ContextRole, claims.Role)
			}
		}
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.GetString(ContextRole) {
		case RoleAdmin, RoleService:
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: admin access required"})
		}
	}
}

// UserID returns the authenticated user id, if one is known.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func bearerToken(c *gin.Context) string {
	if token, err := c.Cookie(authCookie); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(header)
}
