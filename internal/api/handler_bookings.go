package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clubpoint-backend/internal/apperr"
	"clubpoint-backend/internal/model"
)

type bookingRequest struct {
	MachineID int64     `json:"machine_id" binding:"required"`
	StartAt   time.Time `json:"start_at" binding:"required"`
	EndAt     time.Time `json:"end_at" binding:"required"`
	Note      string    `json:"note"`
}

// CreateBooking handles POST /api/bookings. A slot can only be booked if no
// active booking for the same machine overlaps it.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.EndAt.After(req.StartAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_at must be after start_at"})
		return
	}

	user := currentUser(c)
	booking := model.Booking{
		UserID:    user.ID,
		MachineID: req.MachineID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		Status:    model.BookingActive,
		Note:      req.Note,
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var machine model.Machine
		if err := tx.First(&machine, req.MachineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.KindNotFound, "machine %d not found", req.MachineID)
			}
			return err
		}

		var overlapping int64
		if err := tx.Model(&model.Booking{}).
			Where("machine_id = ? AND status = ? AND start_at < ? AND end_at > ?",
				req.MachineID, model.BookingActive, req.EndAt, req.StartAt).
			Count(&overlapping).Error; err != nil {
			return err
		}
		if overlapping > 0 {
			return apperr.Newf(apperr.KindConflict, "machine %d already booked for that slot", req.MachineID)
		}

		return tx.Create(&booking).Error
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.record(c, "CREATE_BOOKING", "booking", &booking.ID,
		fmt.Sprintf("machine_id=%d start=%s end=%s", req.MachineID,
			req.StartAt.Format(time.RFC3339), req.EndAt.Format(time.RFC3339)))
	c.JSON(http.StatusCreated, booking)
}

// ListBookings handles GET /api/bookings. Customers see their own bookings,
// staff see everything.
func (h *Handler) ListBookings(c *gin.Context) {
	user := currentUser(c)

	q := h.db.WithContext(c.Request.Context()).Order("start_at ASC")
	if !user.Role.IsStaff() {
		q = q.Where("user_id = ?", user.ID)
	}

	var bookings []model.Booking
	if err := q.Find(&bookings).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve bookings"})
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// CancelBooking handles POST /api/bookings/:id/cancel. The owner or staff may
// cancel; cancelling twice is a no-op.
func (h *Handler) CancelBooking(c *gin.Context) {
	bookingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}
	user := currentUser(c)

	var booking model.Booking
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&booking, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.KindNotFound, "booking %d not found", bookingID)
			}
			return err
		}
		if booking.UserID != user.ID && !user.Role.IsStaff() {
			// Hide other users' bookings rather than confirming they exist.
			return apperr.Newf(apperr.KindNotFound, "booking %d not found", bookingID)
		}
		if booking.Status == model.BookingCancelled {
			return nil
		}
		booking.Status = model.BookingCancelled
		return tx.Save(&booking).Error
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.record(c, "CANCEL_BOOKING", "booking", &booking.ID, "")
	c.JSON(http.StatusOK, booking)
}
