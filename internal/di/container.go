// Package di wires configuration, infrastructure and the ingestion pipeline.
package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ble-bridge/config"
	"ble-bridge/database"
	"ble-bridge/handlers"
	"ble-bridge/internal/bridge"
	"ble-bridge/internal/gateway"
	"ble-bridge/internal/pipeline"
	"ble-bridge/internal/scanner"
	"ble-bridge/models"
	"ble-bridge/mqtt"
	"ble-bridge/redis"
	"ble-bridge/repositories/interfaces"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Container 의존성 주입 컨테이너
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure (optional ones stay nil when disabled)
	Database *database.Database
	Redis    *redis.RedisClient
	MQTT     *mqtt.Client

	// Core
	Pipeline *pipeline.Pipeline
	Bridge   *bridge.Service
	API      *echo.Echo
}

// Infra holds the collaborators NewContainer would otherwise create.
type Infra struct {
	Source    pipeline.Source
	Publisher bridge.Publisher
	Mirror    bridge.StatusMirror
	Inventory bridge.Inventory
	// DeviceRepo backs the history endpoint; nil disables it.
	DeviceRepo interfaces.DeviceRepositoryInterface
}

// NewContainer 새로운 컨테이너 생성
func NewContainer(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}
	infra := Infra{Source: scanner.New(cfg.BLEAdapter, logger)}

	// 1. 데이터베이스 (선택)
	if cfg.DBEnabled {
		db, err := database.NewDatabase(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		c.Database = db
		infra.Inventory = db
		infra.DeviceRepo = db.DeviceRepo
	}

	// 2. Redis (선택)
	if cfg.RedisEnabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			c.Cleanup()
			return nil, fmt.Errorf("redis init failed: %w", err)
		}
		logger.Info("Redis connected successfully", "host", cfg.RedisHost, "port", cfg.RedisPort)
		c.Redis = rdb
		infra.Mirror = rdb
	}

	// 3. MQTT
	mqttClient, err := mqtt.NewClient(cfg, logger)
	if err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("mqtt init failed: %w", err)
	}
	c.MQTT = mqttClient
	infra.Publisher = mqttClient

	if err := c.assemble(infra, gateway.Options{}); err != nil {
		c.Cleanup()
		return nil, err
	}
	return c, nil
}

// NewContainerWith builds a container around caller-supplied collaborators.
func NewContainerWith(cfg *config.Config, logger *slog.Logger, infra Infra, opts gateway.Options) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}
	if err := c.assemble(infra, opts); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) assemble(infra Infra, opts gateway.Options) error {
	gateways, err := BuildGateways(c.Config, opts)
	if err != nil {
		return err
	}

	p, err := pipeline.New(infra.Source, gateways, pipeline.Config{
		WatchdogInterval:  c.Config.WatchdogInterval,
		AnalyticsInterval: c.Config.AnalyticsInterval,
		Concurrency:       c.Config.Concurrency,
	}, c.Logger)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}
	c.Pipeline = p

	c.Bridge = bridge.NewService(infra.Publisher, infra.Mirror, infra.Inventory, c.Logger)
	c.API = handlers.NewServer(handlers.NewAPIHandler(p.Registries(), infra.DeviceRepo, p.Stats), c.Logger)
	return nil
}

// BuildGateways creates one gateway per configured family.
func BuildGateways(cfg *config.Config, opts gateway.Options) ([]gateway.Gateway, error) {
	configs := cfg.GatewayConfigs()
	gateways := make([]gateway.Gateway, 0, len(configs))
	for _, family := range models.Families {
		gwCfg, ok := configs[family]
		if !ok {
			continue
		}
		gw, err := gateway.New(family, gwCfg, opts)
		if err != nil {
			return nil, fmt.Errorf("gateway %s: %w", family, err)
		}
		gateways = append(gateways, gw)
	}
	return gateways, nil
}

// Run starts the pipeline, the consumer and the HTTP API and blocks until
// ctx is cancelled or one of them fails.
func (c *Container) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	out := make(chan models.DeviceMessage, pipeline.DefaultQueueDepth)

	g.Go(func() error {
		return c.Pipeline.Run(gctx, out)
	})

	g.Go(func() error {
		c.Bridge.Consume(out)
		return nil
	})

	g.Go(func() error {
		c.Logger.Info("Starting HTTP server", "addr", c.Config.HTTPAddr)
		if err := c.API.Start(c.Config.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.API.Shutdown(shutdownCtx); err != nil {
			c.Logger.Warn("HTTP server shutdown error", slog.Any("error", err))
		}
		return nil
	})

	return g.Wait()
}

// Cleanup 리소스 정리
func (c *Container) Cleanup() {
	if c.MQTT != nil {
		c.MQTT.Disconnect()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("Failed to close Redis", slog.Any("error", err))
		}
	}
	if c.Database != nil {
		if err := c.Database.Close(); err != nil {
			c.Logger.Warn("Failed to close database", slog.Any("error", err))
		}
	}
	c.Logger.Info("Container cleanup completed")
}
