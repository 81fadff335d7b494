package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ble-bridge/config"
	"ble-bridge/models"
	"ble-bridge/repositories"
	"ble-bridge/repositories/interfaces"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger adapts slog to be used as a GORM logger.
type gormLogger struct {
	slogger *slog.Logger
}

// Implement the GORM logger interface
func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	// We can choose to return a new logger with a different level, but for now, we'll reuse the same.
	return l
}
func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.slogger.InfoContext(ctx, msg, "gorm_data", data)
}
func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.slogger.WarnContext(ctx, msg, "gorm_data", data)
}
func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.slogger.ErrorContext(ctx, msg, "gorm_data", data)
}
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("latency", elapsed.String()),
		slog.String("sql", sql),
		slog.Int64("rows_affected", rows),
	}

	// Use slog.LogAttrs which is designed to handle a slice of Attrs.
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		attrs = append(attrs, slog.Any("error", err))
		l.slogger.LogAttrs(ctx, slog.LevelError, "GORM Trace", attrs...)
	} else {
		l.slogger.LogAttrs(ctx, slog.LevelDebug, "GORM Trace", attrs...)
	}
}

// Database holds the DB connection, the device repository and its unit of work.
type Database struct {
	DB         *gorm.DB
	UoW        InventoryUnitOfWork
	DeviceRepo interfaces.DeviceRepositoryInterface
}

// NewDatabase creates a new database connection and initializes repositories.
func NewDatabase(cfg *config.Config, appLogger *slog.Logger) (*Database, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	dbLogger := appLogger.With("component", "database")
	dbLogger.Info("Connecting to database...", "host", cfg.DBHost, "port", cfg.DBPort, "user", cfg.DBUser)

	// Configure GORM to use our structured logger
	newGormLogger := &gormLogger{slogger: dbLogger}
	gormConfig := &gorm.Config{
		Logger: newGormLogger.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	dbLogger.Info("Database connected successfully")

	dbLogger.Info("Starting database migration...")
	err = db.AutoMigrate(&models.KnownDevice{}, &models.AvailabilityHistory{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	dbLogger.Info("Database migration completed successfully")

	deviceRepo := repositories.NewDeviceRepository(db)
	return &Database{
		DB:         db,
		UoW:        NewInventoryUnitOfWork(db, deviceRepo),
		DeviceRepo: deviceRepo,
	}, nil
}

// RecordSighting upserts the inventory row of a device that reported data.
func (d *Database) RecordSighting(device models.DeviceDescriptor, seenAt time.Time) error {
	return d.UoW.Do(func(tx *gorm.DB, devices interfaces.DeviceRepositoryInterface) error {
		return devices.UpsertDevice(tx, device, seenAt)
	})
}

// RecordAvailability stores an availability transition and its history row atomically.
func (d *Database) RecordAvailability(msg *models.AvailabilityMessage) error {
	return d.UoW.Do(func(tx *gorm.DB, devices interfaces.DeviceRepositoryInterface) error {
		return devices.RecordAvailability(tx, msg)
	})
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
