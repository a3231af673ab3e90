package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"

	"spabridge"
	"spabridge/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusRefreshed = "refreshed"

	errCommandFailed  = "remote rejected the command"
	errInvalidBodyPfx = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Respond with a status plus the current mirror.
func (h *Handler) respondWithState(c *gin.Context, status string, extra gin.H) {
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	resp["state"] = h.services.Monitoring.State()
	c.JSON(http.StatusOK, resp)
}

// Request DTO for the toggle endpoints. Pointer so that "on":false binds.
type toggleRequest struct {
	On *bool `json:"on" binding:"required"`
}

// Request DTO for the setpoint endpoint.
type temperatureRequest struct {
	TargetTempC *float64 `json:"target_temp_c" binding:"required"`
}

// SetToggleRequest is an exported model for Swagger docs of the toggle payload.
type SetToggleRequest struct {
	// Desired switch position
	On bool `json:"on" example:"true"`
}

// SetTemperatureRequest is an exported model for Swagger docs of the setpoint payload.
type SetTemperatureRequest struct {
	// Target water temperature in Celsius, clamped to [20,40]
	TargetTempC float64 `json:"target_temp_c" example:"35"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Get spa state
// @Description  Current mirror plus the derived two-value heating state
// @Tags         spa
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/spa/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":         h.services.Monitoring.State(),
		"heating_state": h.services.Monitoring.HeatingState(),
	})
}

// @Summary      Force a refresh
// @Description  Bypasses the fetch cache window and re-reads the remote
// @Tags         spa
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/spa/refresh [post]
// @Security     BearerAuth
func (h *Handler) forceRefresh(c *gin.Context) {
	st := h.services.Spa.Refresh(c.Request.Context(), true)
	c.JSON(http.StatusOK, gin.H{"status": statusRefreshed, "state": st})
}

// @Summary      Set master power
// @Tags         spa
// @Accept       json
// @Produce      json
// @Param        body  body   SetToggleRequest  true  "Toggle payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/spa/power [put]
// @Security     BearerAuth
func (h *Handler) setPower(c *gin.Context) {
	h.handleToggle(c, "power", h.services.Spa.SetPower)
}

// @Summary      Set heating
// @Description  Filtration is switched in the same remote call
// @Tags         spa
// @Accept       json
// @Produce      json
// @Param        body  body   SetToggleRequest  true  "Toggle payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/spa/heating [put]
// @Security     BearerAuth
func (h *Handler) setHeating(c *gin.Context) {
	h.handleToggle(c, "heating", h.services.Spa.SetHeating)
}

// @Summary      Set filtration
// @Description  Turning filtration off while heating is on disables heating first
// @Tags         spa
// @Accept       json
// @Produce      json
// @Param        body  body   SetToggleRequest  true  "Toggle payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/spa/filter [put]
// @Security     BearerAuth
func (h *Handler) setFilter(c *gin.Context) {
	h.handleToggle(c, "filter", h.services.Spa.SetFilter)
}

// @Summary      Set massage jets
// @Tags         spa
// @Accept       json
// @Produce      json
// @Param        body  body   SetToggleRequest  true  "Toggle payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/spa/waves [put]
// @Security     BearerAuth
func (h *Handler) setWaves(c *gin.Context) {
	h.handleToggle(c, "waves", h.services.Spa.SetWaves)
}

// @Summary      Set target temperature
// @Description  Value is clamped to [20,40] °C and rounded to a whole degree
// @Tags         spa
// @Accept       json
// @Produce      json
// @Param        body  body   SetTemperatureRequest  true  "Setpoint payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/spa/temperature [put]
// @Security     BearerAuth
func (h *Handler) setTemperature(c *gin.Context) {
	var req temperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}

	target := clampTargetTemp(*req.TargetTempC)
	if err := h.services.Spa.SetTargetTemperature(c.Request.Context(), target); err != nil {
		h.respondSetterError(c, "spa_set_temperature_failed", err, "target_temp_c", target)
		return
	}
	h.respondWithState(c, statusOK, gin.H{"target_temp_c": target})
}

// handleToggle binds the shared toggle body and dispatches to a setter.
func (h *Handler) handleToggle(c *gin.Context, name string, set func(ctx context.Context, on bool) error) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}

	if err := set(c.Request.Context(), *req.On); err != nil {
		h.respondSetterError(c, "spa_set_"+name+"_failed", err, "on", *req.On)
		return
	}
	h.respondWithState(c, statusOK, gin.H{name: *req.On})
}

// respondSetterError distinguishes a remote rejection from a validation error.
func (h *Handler) respondSetterError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	if errors.Is(err, service.ErrCommandRejected) {
		h.logAndJSONError(c, http.StatusBadGateway, errCommandFailed, logKey, err, kv...)
		return
	}
	if h.log != nil {
		h.log.Infow(logKey, append([]interface{}{"err", err}, kv...)...)
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// clampTargetTemp rounds to a whole degree and clamps into the firmware range.
func clampTargetTemp(v float64) float64 {
	v = math.Round(v)
	if v < spabridge.MinTargetTempC {
		return spabridge.MinTargetTempC
	}
	if v > spabridge.MaxTargetTempC {
		return spabridge.MaxTargetTempC
	}
	return v
}
