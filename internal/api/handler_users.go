package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clubpoint-backend/internal/model"
)

// Me handles GET /api/users/me.
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// ListUsers handles GET /api/users (staff only).
func (h *Handler) ListUsers(c *gin.Context) {
	var users []model.User
	if err := h.db.WithContext(c.Request.Context()).Order("id").Find(&users).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

type setRoleRequest struct {
	Role model.Role `json:"role" binding:"required"`
}

// SetUserRole handles PATCH /api/users/:id/role (admin only).
func (h *Handler) SetUserRole(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Role {
	case model.RoleUser, model.RoleOperator, model.RoleAdmin:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	var u model.User
	if err := h.db.WithContext(c.Request.Context()).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Model(&u).Update("role", req.Role).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}

	h.record(c, "SET_USER_ROLE", "user", &u.ID, string(req.Role))
	c.JSON(http.StatusOK, u)
}

// ListAuditLogs handles GET /api/audit (admin only).
func (h *Handler) ListAuditLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = v
	}

	logs, err := h.audit.List(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve audit logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}
