// Command spi-bus owns the bus master and serves transfers to a server in
// another process, either over stdin/stdout or over gRPC.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"

	"github.com/KevinKickass/OpenSpiCore/internal/config"
	"github.com/KevinKickass/OpenSpiCore/internal/ipc"
	"github.com/KevinKickass/OpenSpiCore/internal/system"
)

// stdout carries datagrams, so logs go to stderr.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	encCfg := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

func main() {
	configPath := flag.String("config", "", "path to the config file")
	mode := flag.String("mode", "stdio", "serve over stdio or grpc")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := system.NewMaster(cfg.Bus.Master, cfg.Bus, logger)
	if err != nil {
		logger.Fatal("Failed to create bus master", zap.Error(err))
	}

	switch *mode {
	case "stdio":
		srv := ipc.NewServer(m, os.Stdin, os.Stdout, logger)
		if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Fatal("Bus server failed", zap.Error(err))
		}

	case "grpc":
		if err := m.Init(); err != nil {
			logger.Fatal("Failed to initialize bus master", zap.Error(err))
		}
		defer m.Close()

		lis, err := net.Listen("tcp", cfg.Bus.GRPCAddress)
		if err != nil {
			logger.Fatal("Failed to listen", zap.Error(err))
		}
		grpcServer := grpc.NewServer()
		ipc.RegisterBusServer(grpcServer, ipc.NewBusService(m, logger))

		go func() {
			<-ctx.Done()
			grpcServer.GracefulStop()
		}()

		logger.Info("Bus gRPC server listening",
			zap.String("address", cfg.Bus.GRPCAddress),
			zap.String("master", cfg.Bus.Master))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}

	default:
		logger.Fatal("Unknown mode", zap.String("mode", *mode))
	}
}
