package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/OpenSpiCore/internal/async"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/pss"
	"github.com/KevinKickass/OpenSpiCore/internal/storage"
	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

type pssConfigRequest struct {
	TrackingMode      string   `json:"tracking_mode" binding:"required"`
	TargetVoltage     *float64 `json:"target_voltage"`
	TargetCurrent     *float64 `json:"target_current"`
	UpperVoltageLimit *float64 `json:"upper_voltage_limit"`
	LowerVoltageLimit *float64 `json:"lower_voltage_limit"`
	UpperCurrentLimit *float64 `json:"upper_current_limit"`
	LowerCurrentLimit *float64 `json:"lower_current_limit"`
}

func (r pssConfigRequest) config() (pss.Config, error) {
	mode, err := pss.ParseTrackingMode(r.TrackingMode)
	if err != nil {
		return pss.Config{}, err
	}
	return pss.Config{
		TrackingMode:      mode,
		TargetVoltage:     r.TargetVoltage,
		TargetCurrent:     r.TargetCurrent,
		UpperVoltageLimit: r.UpperVoltageLimit,
		LowerVoltageLimit: r.LowerVoltageLimit,
		UpperCurrentLimit: r.UpperCurrentLimit,
		LowerCurrentLimit: r.LowerCurrentLimit,
	}, nil
}

func (s *Server) lookupPSS(c *gin.Context) (*pss.PSS, bool) {
	p, err := s.lm.BenchManager().PSS(c.Param("name"))
	if err != nil {
		s.respondError(c, "Power supply not found", err, http.StatusNotFound)
		return nil, false
	}
	return p, true
}

// POST /api/v1/pss/:name/initialize
func (s *Server) initializePSS(c *gin.Context) {
	p, ok := s.lookupPSS(c)
	if !ok {
		return
	}

	ret, err := p.Initialize()
	if err != nil {
		s.respondError(c, "Failed to initialize power supply", err, http.StatusInternalServerError)
		return
	}
	verified, ok := await(s, c, ret, "Power supply initialization failed")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": c.Param("name"), "verified": verified})
}

// PUT /api/v1/pss/:name/config
func (s *Server) writePSSConfig(c *gin.Context) {
	p, ok := s.lookupPSS(c)
	if !ok {
		return
	}

	var req pssConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}
	cfg, err := req.config()
	if err != nil {
		s.respondError(c, "Invalid configuration", err, http.StatusBadRequest)
		return
	}

	ret, err := p.WriteConfig(cfg)
	if err != nil {
		s.respondError(c, "Invalid configuration", err, http.StatusBadRequest)
		return
	}
	if _, ok := await(s, c, ret, "Failed to write configuration"); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": c.Param("name"), "tracking_mode": cfg.TrackingMode.String()})
}

// POST /api/v1/pss/:name/output/connect
func (s *Server) connectOutput(c *gin.Context) {
	s.switchOutput(c, (*pss.PSS).OutputConnect, true)
}

// POST /api/v1/pss/:name/output/disconnect
func (s *Server) disconnectOutput(c *gin.Context) {
	s.switchOutput(c, (*pss.PSS).OutputDisconnect, false)
}

func (s *Server) switchOutput(c *gin.Context, op func(*pss.PSS) (*async.Return[struct{}], error), connected bool) {
	p, ok := s.lookupPSS(c)
	if !ok {
		return
	}

	ret, err := op(p)
	if err != nil {
		s.respondError(c, "Failed to switch output", err, http.StatusInternalServerError)
		return
	}
	if _, ok := await(s, c, ret, "Failed to switch output"); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": c.Param("name"), "connected": connected})
}

// GET /api/v1/pss/:name/output
func (s *Server) readOutput(c *gin.Context) {
	p, ok := s.lookupPSS(c)
	if !ok {
		return
	}

	out, ok := await(s, c, p.ReadOutput(), "Failed to read output")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device":  c.Param("name"),
		"voltage": out.Voltage,
		"current": out.Current,
	})
}

// GET /api/v1/pss/:name/measurements?since=...&until=...&limit=...
func (s *Server) listMeasurements(c *gin.Context) {
	if _, ok := s.lookupPSS(c); !ok {
		return
	}

	store := s.lm.Storage()
	if store == nil {
		c.JSON(http.StatusNotImplemented, types.NewErrorResponse(types.CodeNotImplemented, "Measurement storage is disabled", nil))
		return
	}

	var query struct {
		Since time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
		Until time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
		Limit int       `form:"limit" binding:"omitempty,min=1,max=10000"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid query", err.Error()))
		return
	}

	ms, err := store.ListMeasurements(c.Request.Context(), storage.MeasurementQuery{
		Device: c.Param("name"),
		Since:  query.Since,
		Until:  query.Until,
		Limit:  query.Limit,
	})
	if err != nil {
		s.respondError(c, "Failed to list measurements", err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"measurements": ms,
		"count":        len(ms),
	})
}
