// Package pipeline routes scanned advertisements to the family gateways and
// merges their output with the watchdog streams into one channel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"ble-bridge/internal/gateway"
	"ble-bridge/internal/registry"
	"ble-bridge/internal/resolver"
	"ble-bridge/internal/watchdog"
	"ble-bridge/models"
)

// DefaultQueueDepth bounds in-flight advertisements when no concurrency
// limit is configured.
const DefaultQueueDepth = 256

// DefaultLanes is the number of per-device lanes when no concurrency limit
// is configured.
const DefaultLanes = 64

const laneDepth = 16

// Source is the scanning backend. Scan sends advertisements until ctx is
// done or the backend fails, and must not close out.
type Source interface {
	Scan(ctx context.Context, out chan<- models.Advertisement) error
}

type Config struct {
	WatchdogInterval  time.Duration
	AnalyticsInterval time.Duration // 0 disables the analytics timer
	// Concurrency is the number of lanes handling advertisements at once;
	// 0 means DefaultLanes. One device always stays on a single lane.
	Concurrency int
}

// Stats are running totals since the pipeline started.
type Stats struct {
	Received   uint64 `json:"received"`
	Unroutable uint64 `json:"unroutable"`
	Emitted    uint64 `json:"emitted"`
	Failed     uint64 `json:"failed"`
}

type Pipeline struct {
	source   Source
	gateways map[models.Family]gateway.Gateway
	cfg      Config
	logger   *slog.Logger

	received   atomic.Uint64
	unroutable atomic.Uint64
	emitted    atomic.Uint64
	failed     atomic.Uint64
}

func New(source Source, gateways []gateway.Gateway, cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if source == nil {
		return nil, errors.New("pipeline: no advertisement source")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("pipeline: negative concurrency %d", cfg.Concurrency)
	}
	byFamily := make(map[models.Family]gateway.Gateway, len(gateways))
	for _, g := range gateways {
		if _, dup := byFamily[g.Family()]; dup {
			return nil, fmt.Errorf("pipeline: duplicate gateway for %s", g.Family())
		}
		byFamily[g.Family()] = g
	}
	return &Pipeline{
		source:   source,
		gateways: byFamily,
		cfg:      cfg,
		logger:   logger.With("component", "pipeline"),
	}, nil
}

// Registries exposes the gateway registries for read-only status reporting.
func (p *Pipeline) Registries() []*registry.Registry {
	out := make([]*registry.Registry, 0, len(p.gateways))
	for _, f := range models.Families {
		if g, ok := p.gateways[f]; ok {
			out = append(out, g.Registry())
		}
	}
	return out
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:   p.received.Load(),
		Unroutable: p.unroutable.Load(),
		Emitted:    p.emitted.Load(),
		Failed:     p.failed.Load(),
	}
}

// Run drives the scanner, the advertisement stage and the timers as one
// unit and closes out when all of them have stopped. The timers stop once
// the advertisement stream ends. Only a scanner failure is returned.
func (p *Pipeline) Run(ctx context.Context, out chan<- models.DeviceMessage) error {
	defer close(out)

	g, gctx := errgroup.WithContext(ctx)
	timers, stopTimers := context.WithCancel(gctx)
	defer stopTimers()

	ads := make(chan models.Advertisement, p.queueDepth())

	g.Go(func() error {
		defer close(ads)
		err := p.source.Scan(gctx, ads)
		if err != nil && gctx.Err() == nil {
			p.logger.Error("Scanner stopped", slog.Any("error", err))
			return fmt.Errorf("scanner: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer stopTimers()
		p.process(gctx, ads, out)
		return nil
	})

	for _, f := range models.Families {
		gw, ok := p.gateways[f]
		if !ok {
			continue
		}
		wd := watchdog.New(gw, p.cfg.WatchdogInterval, p.logger)
		g.Go(func() error {
			return wd.Run(timers, out)
		})
	}

	if p.cfg.AnalyticsInterval > 0 {
		g.Go(func() error {
			p.analytics(timers)
			return nil
		})
	}

	p.logger.Info("Pipeline started", "gateways", len(p.gateways), "concurrency", p.cfg.Concurrency)
	err := g.Wait()
	p.logger.Info("Pipeline stopped", "received", p.received.Load(), "emitted", p.emitted.Load())
	return err
}

func (p *Pipeline) queueDepth() int {
	if p.cfg.Concurrency > 0 {
		return p.cfg.Concurrency
	}
	return DefaultQueueDepth
}

func (p *Pipeline) laneCount() int {
	if p.cfg.Concurrency > 0 {
		return p.cfg.Concurrency
	}
	return DefaultLanes
}

// laneFor maps a device onto a lane; every advertisement of one device lands
// on the same lane.
func laneFor(address string, lanes int) int {
	return int(xxhash.Sum64String(models.NormalizeID(address)) % uint64(lanes))
}

type job struct {
	ad   models.Advertisement
	slot chan []models.DeviceMessage
}

// process hands each advertisement to its device's lane. A lane handles its
// jobs one at a time in arrival order, so per-device state changes follow
// the scan order; different devices proceed in parallel. Results are
// forwarded in arrival order through the slot queue.
func (p *Pipeline) process(ctx context.Context, ads <-chan models.Advertisement, out chan<- models.DeviceMessage) {
	slots := make(chan chan []models.DeviceMessage, p.queueDepth())
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for slot := range slots {
			var msgs []models.DeviceMessage
			select {
			case msgs = <-slot:
			case <-ctx.Done():
				continue
			}
			for _, m := range msgs {
				select {
				case out <- m:
					p.emitted.Add(1)
				case <-ctx.Done():
				}
			}
		}
	}()

	lanes := make([]chan job, p.laneCount())
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan job, laneDepth)
		wg.Add(1)
		go func(jobs <-chan job) {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					j.slot <- nil
					continue
				}
				j.slot <- p.handle(j.ad)
			}
		}(lanes[i])
	}

dispatch:
	for ad := range ads {
		p.received.Add(1)
		slot := make(chan []models.DeviceMessage, 1)
		select {
		case slots <- slot:
		case <-ctx.Done():
			break dispatch
		}
		select {
		case lanes[laneFor(ad.Address, len(lanes))] <- job{ad: ad, slot: slot}:
		case <-ctx.Done():
			slot <- nil
			break dispatch
		}
	}
	for _, lane := range lanes {
		close(lane)
	}
	wg.Wait()
	close(slots)
	<-forwarded
}

// handle is the isolation boundary of one advertisement: errors and panics
// are logged and never leave it.
func (p *Pipeline) handle(ad models.Advertisement) (msgs []models.DeviceMessage) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.logger.Error("Panic while handling advertisement",
				"address", ad.Address, "panic", r, "stack", string(debug.Stack()))
			msgs = nil
		}
	}()

	route, ok, err := resolver.Resolve(ad)
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("Unroutable advertisement", "address", ad.Address, slog.Any("error", err))
		return nil
	}
	if !ok {
		p.unroutable.Add(1)
		return nil
	}
	gw, ok := p.gateways[route.Family]
	if !ok {
		p.unroutable.Add(1)
		return nil
	}

	msgs, err = gw.Handle(ad, route)
	if err != nil {
		p.failed.Add(1)
		p.logHandleError(ad, route, err)
	}
	return msgs
}

func (p *Pipeline) logHandleError(ad models.Advertisement, route resolver.Route, err error) {
	attrs := []any{"address", ad.Address, "family", route.Family, slog.Any("error", err)}
	switch {
	case errors.Is(err, gateway.ErrNoServiceData):
		p.logger.Debug("Advertisement without sensor data", attrs...)
	case errors.Is(err, registry.ErrDeviceNotFound):
		p.logger.Error("Registry inconsistency, advertisement skipped", attrs...)
	case errors.Is(err, gateway.ErrUnknownModel):
		p.logger.Warn("No model for device, reading dropped", attrs...)
	default:
		p.logger.Warn("Failed to decode advertisement", attrs...)
	}
}

// analytics logs registry totals; it adds nothing to the output stream.
func (p *Pipeline) analytics(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.AnalyticsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, r := range p.Registries() {
				s := r.Stats()
				p.logger.Info("Registry stats",
					"family", s.Family, "devices", s.Devices, "online", s.Online, "offline", s.Offline)
			}
			st := p.Stats()
			p.logger.Info("Pipeline stats",
				"received", st.Received, "unroutable", st.Unroutable, "emitted", st.Emitted, "failed", st.Failed)
		}
	}
}
