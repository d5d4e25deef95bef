// Package audit writes best-effort audit trail rows. A failed write is
// logged and swallowed so the audited operation itself never fails.
package audit

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"clubpoint-backend/internal/model"
)

// Recorder appends entries to the audit log.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates an audit recorder on the given database.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Entry describes one audited action.
type Entry struct {
	User     *model.User
	Action   string
	Entity   string
	EntityID *int64
	Details  string
	IP       string
}

// Record persists the entry. Fire-and-forget: errors are logged, never
// returned.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	row := model.AuditLog{
		Role:      "anonymous",
		Action:    e.Action,
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		Details:   e.Details,
		IPAddress: e.IP,
		CreatedAt: time.Now().UTC(),
	}
	if e.User != nil {
		row.UserID = &e.User.ID
		row.Role = string(e.User.Role)
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		log.Printf("audit write failed for action %s: %v", e.Action, err)
	}
}

// List returns audit rows, newest first, capped at limit.
func (r *Recorder) List(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []model.AuditLog
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
