package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/OpenSpiCore/internal/devices/ad5672"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/ads866x"
	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

func (s *Server) lookupADC(c *gin.Context) (*ads866x.ADC, bool) {
	adc, err := s.lm.BenchManager().ADC(c.Param("name"))
	if err != nil {
		s.respondError(c, "ADC not found", err, http.StatusNotFound)
		return nil, false
	}
	return adc, true
}

func (s *Server) lookupDAC(c *gin.Context) (*ad5672.DAC, bool) {
	dac, err := s.lm.BenchManager().DAC(c.Param("name"))
	if err != nil {
		s.respondError(c, "DAC not found", err, http.StatusNotFound)
		return nil, false
	}
	return dac, true
}

// POST /api/v1/adc/:name/initialize
// An empty body uses the input range of the bench profile.
func (s *Server) initializeADC(c *gin.Context) {
	adc, ok := s.lookupADC(c)
	if !ok {
		return
	}
	dev, err := s.lm.BenchManager().Lookup(c.Param("name"))
	if err != nil {
		s.respondError(c, "ADC not found", err, http.StatusNotFound)
		return
	}

	var req struct {
		InputRange string `json:"input_range"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
			return
		}
	}

	r := dev.InputRange
	if req.InputRange != "" {
		if r, err = ads866x.ParseInputRange(req.InputRange); err != nil {
			s.respondError(c, "Invalid input range", err, http.StatusBadRequest)
			return
		}
	}

	ret, err := adc.Initialize(r)
	if err != nil {
		s.respondError(c, "Invalid input range", err, http.StatusBadRequest)
		return
	}
	verified, ok := await(s, c, ret, "ADC initialization failed")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device":      c.Param("name"),
		"input_range": r.String(),
		"verified":    verified,
	})
}

// GET /api/v1/adc/:name/voltage
func (s *Server) readVoltage(c *gin.Context) {
	adc, ok := s.lookupADC(c)
	if !ok {
		return
	}
	v, ok := await(s, c, adc.ReadVoltage(), "Failed to read voltage")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": c.Param("name"), "voltage": v})
}

// GET /api/v1/adc/:name/sample
func (s *Server) readSample(c *gin.Context) {
	adc, ok := s.lookupADC(c)
	if !ok {
		return
	}
	sample, ok := await(s, c, adc.ReadSample(), "Failed to read sample")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device":         c.Param("name"),
		"code":           sample.Code,
		"device_address": sample.DeviceAddress,
		"avdd_alarm":     sample.AvddAlarm,
		"input_alarm":    sample.InputAlarm,
		"input_range":    sample.Range.String(),
		"voltage":        sample.Voltage,
	})
}

// POST /api/v1/adc/:name/gpo
func (s *Server) writeGpo(c *gin.Context) {
	adc, ok := s.lookupADC(c)
	if !ok {
		return
	}

	var req struct {
		Level string `json:"level" binding:"required,oneof=high low"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	ret, err := adc.WriteGpo(ads866x.GpoLevel(req.Level == "high"))
	if err != nil {
		s.respondError(c, "Failed to write GPO", err, http.StatusInternalServerError)
		return
	}
	if _, ok := await(s, c, ret, "Failed to write GPO"); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": c.Param("name"), "level": req.Level})
}

// POST /api/v1/dac/:name/initialize
func (s *Server) initializeDAC(c *gin.Context) {
	dac, ok := s.lookupDAC(c)
	if !ok {
		return
	}
	if _, ok := await(s, c, dac.Initialize(), "DAC initialization failed"); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": c.Param("name"), "initialized": true})
}

// POST /api/v1/dac/:name/channels/:ch
// With load set the output changes immediately, otherwise on the next
// POST /load.
func (s *Server) writeDACChannel(c *gin.Context) {
	dac, ok := s.lookupDAC(c)
	if !ok {
		return
	}

	ch, err := strconv.ParseUint(c.Param("ch"), 10, 8)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid channel", err.Error()))
		return
	}

	var req struct {
		Voltage *float64 `json:"voltage" binding:"required"`
		Load    bool     `json:"load"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	write := dac.Write
	if req.Load {
		write = dac.WriteAndLoad
	}
	ret, err := write(uint8(ch), *req.Voltage)
	if err != nil {
		s.respondError(c, fmt.Sprintf("Failed to write channel %d", ch), err, http.StatusBadRequest)
		return
	}
	if _, ok := await(s, c, ret, "Failed to write channel"); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device":  c.Param("name"),
		"channel": ch,
		"code":    ad5672.VoltageToCode(*req.Voltage),
		"loaded":  req.Load,
	})
}

// POST /api/v1/dac/:name/load
func (s *Server) loadDACChannels(c *gin.Context) {
	dac, ok := s.lookupDAC(c)
	if !ok {
		return
	}
	if _, ok := await[struct{}](s, c, dac.LoadAllChannels(), "Failed to load channels"); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": c.Param("name"), "loaded": true})
}
