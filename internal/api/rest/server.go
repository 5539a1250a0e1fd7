// Package rest exposes the bench over HTTP.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenSpiCore/internal/api/websocket"
	"github.com/KevinKickass/OpenSpiCore/internal/config"
	"github.com/KevinKickass/OpenSpiCore/internal/interfaces"
)

type Server struct {
	router *gin.Engine
	lm     interfaces.LifecycleManager
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		lm:     lm,
		logger: logger,
		wsHub:  wsHub,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		system := v1.Group("/system")
		{
			system.GET("/status", s.getSystemStatus)
		}

		busGroup := v1.Group("/bus")
		{
			busGroup.POST("/start", s.startBus)
			busGroup.POST("/stop", s.stopBus)
		}

		devices := v1.Group("/devices")
		{
			devices.GET("", s.listDevices)
			devices.GET("/:name", s.getDevice)
		}

		supplies := v1.Group("/pss/:name")
		{
			supplies.POST("/initialize", s.initializePSS)
			supplies.PUT("/config", s.writePSSConfig)
			supplies.POST("/output/connect", s.connectOutput)
			supplies.POST("/output/disconnect", s.disconnectOutput)
			supplies.GET("/output", s.readOutput)
			supplies.GET("/measurements", s.listMeasurements)
		}

		adc := v1.Group("/adc/:name")
		{
			adc.POST("/initialize", s.initializeADC)
			adc.GET("/voltage", s.readVoltage)
			adc.GET("/sample", s.readSample)
			adc.POST("/gpo", s.writeGpo)
		}

		dac := v1.Group("/dac/:name")
		{
			dac.POST("/initialize", s.initializeDAC)
			dac.POST("/channels/:ch", s.writeDACChannel)
			dac.POST("/load", s.loadDACChannels)
		}

		charges := v1.Group("/charge/:name")
		{
			charges.POST("/start", s.startCharge)
			charges.POST("/abort", s.abortCharge)
			charges.GET("/status", s.getChargeStatus)
		}

		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
