package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/OpenSpiCore/internal/charge"
	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

type chargeRequest struct {
	TargetVoltage    float64 `json:"target_voltage" binding:"required"`
	MaxCurrent       float64 `json:"max_current" binding:"required"`
	ThresholdCurrent float64 `json:"threshold_current"`
	PollIntervalMs   int     `json:"poll_interval_ms"`
	StepTimeoutMs    int     `json:"step_timeout_ms"`
}

func (r chargeRequest) params() charge.Params {
	return charge.Params{
		TargetVoltage:    r.TargetVoltage,
		MaxCurrent:       r.MaxCurrent,
		ThresholdCurrent: r.ThresholdCurrent,
		PollInterval:     time.Duration(r.PollIntervalMs) * time.Millisecond,
		StepTimeout:      time.Duration(r.StepTimeoutMs) * time.Millisecond,
	}
}

func (s *Server) chargeController(c *gin.Context) (*charge.Controller, bool) {
	ctrl, err := s.lm.ChargeRegistry().Get(c.Param("name"))
	if err != nil {
		s.respondError(c, "Power supply not found", err, http.StatusNotFound)
		return nil, false
	}
	return ctrl, true
}

// POST /api/v1/charge/:name/start
func (s *Server) startCharge(c *gin.Context) {
	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	ctrl, ok := s.chargeController(c)
	if !ok {
		return
	}

	runID, err := ctrl.Start(req.params())
	if err != nil {
		s.respondError(c, "Failed to start charge", err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"status": ctrl.GetStatus(),
	})
}

// POST /api/v1/charge/:name/abort
func (s *Server) abortCharge(c *gin.Context) {
	ctrl, ok := s.chargeController(c)
	if !ok {
		return
	}
	if err := ctrl.Abort(); err != nil {
		s.respondError(c, "Failed to abort charge", err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, ctrl.GetStatus())
}

// GET /api/v1/charge/:name/status
func (s *Server) getChargeStatus(c *gin.Context) {
	ctrl, ok := s.chargeController(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.GetStatus())
}
