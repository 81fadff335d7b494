// cmd/main.go - BLE 센서 브릿지 진입점
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ble-bridge/config"
	"ble-bridge/internal/di"
	"ble-bridge/logging"
)

func main() {
	// 설정 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// DI 컨테이너 생성
	container, err := di.NewContainer(cfg, logger)
	if err != nil {
		logger.Error("Failed to create DI container", slog.Any("error", err))
		os.Exit(1)
	}
	defer container.Cleanup()

	// 우아한 종료 처리
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("BLE bridge started",
		"families", len(cfg.Families),
		"adapter", cfg.BLEAdapter,
		"broker", cfg.MQTTBroker)

	if err := container.Run(ctx); err != nil {
		logger.Error("BLE bridge stopped with error", slog.Any("error", err))
		container.Cleanup()
		os.Exit(1)
	}
	logger.Info("BLE bridge stopped")
}
