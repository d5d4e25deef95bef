package api

import (
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clubpoint-backend/internal/apperr"
	"clubpoint-backend/internal/audit"
	"clubpoint-backend/internal/auth"
	"clubpoint-backend/internal/model"
	"clubpoint-backend/internal/payment"
	"clubpoint-backend/internal/report"
	"clubpoint-backend/internal/session"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	db       *gorm.DB
	auth     *auth.Service
	sessions *session.Manager
	payments *payment.Service
	reports  *report.Service
	audit    *audit.Recorder
	webpush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(db *gorm.DB, authSvc *auth.Service, sessions *session.Manager, payments *payment.Service, reports *report.Service, auditRec *audit.Recorder, webpushOpts *webpush.Options) *Handler {
	return &Handler{
		db:       db,
		auth:     authSvc,
		sessions: sessions,
		payments: payments,
		reports:  reports,
		audit:    auditRec,
		webpush:  webpushOpts,
	}
}

const userKey = "currentUser"

// currentUser returns the authenticated user put in the context by
// RequireAuth, or nil on unauthenticated routes.
func currentUser(c *gin.Context) *model.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}

// abortWithError translates the business error taxonomy to HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindInvalidState:
		status = http.StatusBadRequest
	case apperr.KindConfig:
		status = http.StatusInternalServerError
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// record writes an audit row for the current request, best-effort.
func (h *Handler) record(c *gin.Context, action, entity string, entityID *int64, details string) {
	h.audit.Record(c.Request.Context(), audit.Entry{
		User:     currentUser(c),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Details:  details,
		IP:       c.ClientIP(),
	})
}
