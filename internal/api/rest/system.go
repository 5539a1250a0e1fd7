package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// POST /api/v1/bus/start
func (s *Server) startBus(c *gin.Context) {
	if err := s.lm.StartBus(); err != nil {
		s.respondError(c, "Failed to start bus", err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// POST /api/v1/bus/stop
func (s *Server) stopBus(c *gin.Context) {
	s.lm.StopBus()
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	bm := s.lm.BenchManager()
	running := bm.IsRunning()

	devices := bm.ListDevices()
	infos := make([]types.DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		infos = append(infos, dev.Info(running))
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": infos,
		"count":   len(infos),
	})
}

// GET /api/v1/devices/:name
func (s *Server) getDevice(c *gin.Context) {
	bm := s.lm.BenchManager()
	dev, err := bm.Lookup(c.Param("name"))
	if err != nil {
		s.respondError(c, "Device not found", err, http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, dev.Info(bm.IsRunning()))
}
