package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clubpoint-backend/internal/model"
)

// ListMachines handles GET /api/machines.
func (h *Handler) ListMachines(c *gin.Context) {
	var machines []model.Machine
	if err := h.db.WithContext(c.Request.Context()).Order("id").Find(&machines).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve machines"})
		return
	}
	c.JSON(http.StatusOK, machines)
}

type createMachineRequest struct {
	Name string     `json:"name" binding:"required"`
	Zone model.Zone `json:"zone" binding:"required"`
	Watt int        `json:"watt"`
}

// CreateMachine handles POST /api/machines (staff only).
func (h *Handler) CreateMachine(c *gin.Context) {
	var req createMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Zone.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown zone %q", req.Zone)})
		return
	}
	if req.Watt <= 0 {
		req.Watt = 450
	}

	m := model.Machine{Name: req.Name, Zone: req.Zone, Status: model.MachineAvailable, Watt: req.Watt}
	if err := h.db.WithContext(c.Request.Context()).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "machine name already exists"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to create machine"})
		return
	}

	h.record(c, "CREATE_MACHINE", "machine", &m.ID, fmt.Sprintf("name=%s zone=%s", m.Name, m.Zone))
	c.JSON(http.StatusCreated, m)
}

type machineStatusRequest struct {
	Status model.MachineStatus `json:"status" binding:"required"`
}

// SetMachineStatus handles PATCH /api/machines/:id/status (staff only).
// This is the explicit operator path that takes machines offline and back;
// the session manager never touches offline machines.
func (h *Handler) SetMachineStatus(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid machine id"})
		return
	}

	var req machineStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Status {
	case model.MachineAvailable, model.MachineBusy, model.MachineOffline:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", req.Status)})
		return
	}

	var m model.Machine
	if err := h.db.WithContext(c.Request.Context()).First(&m, machineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load machine"})
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Model(&m).Update("status", req.Status).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to update machine"})
		return
	}

	h.record(c, "SET_MACHINE_STATUS", "machine", &m.ID, string(req.Status))
	c.JSON(http.StatusOK, m)
}
