package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-tracking-backend/internal/devicecache"
	"fleet-tracking-backend/internal/model"
)

var errInvalidRequest = gin.H{"error": "invalid request"}

type deviceListResponse struct {
	Devices     []model.Device `json:"devices"`
	RefreshedAt *time.Time     `json:"refreshed_at"`
}

// ensureFresh fetches once when no session has polled yet. The list is not
// persisted, listing is a read.
func (h *Handler) ensureFresh(c *gin.Context) error {
	if !h.devices.RefreshedAt().IsZero() {
		return nil
	}
	_, err := h.devices.Refresh(c.Request.Context(), false)
	return err
}

// GetDevices handles the GET /api/devices request.
func (h *Handler) GetDevices(c *gin.Context) {
	if err := h.ensureFresh(c); err != nil {
		h.log.Warn().Err(err).Msg("initial device fetch failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "failed to fetch devices"})
		return
	}

	resp := deviceListResponse{Devices: h.devices.Snapshot()}
	if resp.Devices == nil {
		resp.Devices = []model.Device{}
	}
	if t := h.devices.RefreshedAt(); !t.IsZero() {
		resp.RefreshedAt = &t
	}
	c.JSON(http.StatusOK, resp)
}

// GetDevice handles the GET /api/devices/{device_id} request.
func (h *Handler) GetDevice(c *gin.Context) {
	if err := h.ensureFresh(c); err != nil {
		h.log.Warn().Err(err).Msg("initial device fetch failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "failed to fetch devices"})
		return
	}

	d, ok := h.devices.Device(c.Param("device_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

// PatchDevice handles the PATCH /api/devices/{device_id} request. The edited
// fields are kept across later polls.
func (h *Handler) PatchDevice(c *gin.Context) {
	var edits model.Edits
	if err := c.ShouldBindJSON(&edits); err != nil || edits.Empty() {
		c.JSON(http.StatusBadRequest, errInvalidRequest)
		return
	}

	updated, err := h.devices.SaveEdit(c.Request.Context(), c.Param("device_id"), edits)
	if err != nil {
		writeEditError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func writeEditError(c *gin.Context, err error) {
	if errors.Is(err, devicecache.ErrDeviceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
