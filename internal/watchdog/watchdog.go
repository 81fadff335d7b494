// Package watchdog periodically sweeps a family's registry for devices that
// stopped advertising.
package watchdog

import (
	"context"
	"log/slog"
	"time"

	"ble-bridge/models"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 10 * time.Second

// Sweeper transitions stale devices offline and returns one availability
// message per transition.
type Sweeper interface {
	Family() models.Family
	Sweep() []models.DeviceMessage
}

type Watchdog struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
}

func New(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watchdog{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.With("component", "watchdog", "family", sweeper.Family()),
	}
}

// Run sweeps on every tick until ctx is done. Messages of one sweep are
// sent in order.
func (w *Watchdog) Run(ctx context.Context, out chan<- models.DeviceMessage) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Debug("Watchdog started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Watchdog stopped")
			return nil
		case <-ticker.C:
			if err := w.SweepOnce(ctx, out); err != nil {
				return nil
			}
		}
	}
}

// SweepOnce runs one sweep and forwards its messages. It returns ctx.Err()
// when cancelled mid-send.
func (w *Watchdog) SweepOnce(ctx context.Context, out chan<- models.DeviceMessage) error {
	msgs := w.sweeper.Sweep()
	for _, m := range msgs {
		w.logger.Info("Device went offline", "device_id", m.Meta().Device.ID)
		select {
		case out <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
