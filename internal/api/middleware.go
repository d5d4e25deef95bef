package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clubpoint-backend/internal/model"
)

// RequireAuth validates the bearer token and stashes the user in the
// request context.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		user, err := h.auth.UserFromToken(c.Request.Context(), token)
		if err != nil {
			log.Printf("token rejected: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// RequireStaff allows only operator and admin roles through. Must run after
// RequireAuth.
func (h *Handler) RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		if u == nil || !u.Role.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

// RequireAdmin allows only the admin role through. Must run after RequireAuth.
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		if u == nil || u.Role != model.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}
