package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type startSessionRequest struct {
	MachineID int64 `json:"machine_id" binding:"required"`
	PaidHours int   `json:"paid_hours" binding:"required,min=1"`
	// Staff may start a session on behalf of another user.
	UserID int64 `json:"user_id"`
}

// StartSession handles POST /api/sessions/start.
func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := currentUser(c)
	userID := user.ID
	if req.UserID != 0 && req.UserID != user.ID {
		if !user.Role.IsStaff() {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		userID = req.UserID
	}

	sess, err := h.sessions.Start(c.Request.Context(), userID, req.MachineID, req.PaidHours)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.record(c, "START_SESSION", "session", &sess.ID,
		fmt.Sprintf("machine_id=%d paid_hours=%d", req.MachineID, req.PaidHours))
	c.JSON(http.StatusCreated, sess)
}

// StopSession handles POST /api/sessions/:id/stop.
func (h *Handler) StopSession(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	user := currentUser(c)
	if !user.Role.IsStaff() {
		// Customers may only stop their own session.
		sess, err := h.sessions.Get(c.Request.Context(), sessionID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if sess.UserID != user.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your session"})
			return
		}
	}

	closed, err := h.sessions.Stop(c.Request.Context(), sessionID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.record(c, "STOP_SESSION", "session", &closed.ID,
		fmt.Sprintf("billed_minutes=%d amount=%s", *closed.BilledMinutes, closed.Amount))
	c.JSON(http.StatusOK, closed)
}

type extendSessionRequest struct {
	AddHours int `json:"add_hours" binding:"required,min=1"`
}

// ExtendSession handles POST /api/sessions/:id/extend (staff only).
func (h *Handler) ExtendSession(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	var req extendSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.sessions.Extend(c.Request.Context(), sessionID, req.AddHours)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.record(c, "EXTEND_SESSION", "session", &sess.ID, fmt.Sprintf("add_hours=%d", req.AddHours))
	c.JSON(http.StatusOK, sess)
}

// ListMySessions handles GET /api/sessions.
func (h *Handler) ListMySessions(c *gin.Context) {
	user := currentUser(c)
	sessions, err := h.sessions.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}
