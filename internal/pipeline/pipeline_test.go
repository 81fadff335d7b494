package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ble-bridge/internal/gateway"
	"ble-bridge/internal/registry"
	"ble-bridge/internal/resolver"
	"ble-bridge/models"
)

const (
	ruuviAddress = "CB:B8:33:4C:88:4F"
	rawv2        = "99040512FC5394C37C0004FFFC040CAC364200CDCBB8334C884F"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// sliceSource replays ads and then either returns or waits for cancellation.
type sliceSource struct {
	ads   []models.Advertisement
	block bool
	err   error
}

func (s *sliceSource) Scan(ctx context.Context, out chan<- models.Advertisement) error {
	for _, ad := range s.ads {
		select {
		case out <- ad:
		case <-ctx.Done():
			return nil
		}
	}
	if s.err != nil {
		return s.err
	}
	if s.block {
		<-ctx.Done()
	}
	return nil
}

type lockedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *lockedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *lockedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func ruuviGateway(t *testing.T, allowUnknown bool, now func() time.Time) gateway.Gateway {
	t.Helper()
	g, err := gateway.NewRuuvi(gateway.Config{
		AllowUnknown:     allowUnknown,
		Timeout:          time.Minute,
		DecimalPrecision: 2,
		Devices:          []models.Device{{ID: ruuviAddress, Name: "Sauna"}},
	}, gateway.Options{Now: now})
	require.NoError(t, err)
	return g
}

func ruuviAd(t *testing.T, address string) models.Advertisement {
	return models.Advertisement{Address: address, ManufacturerData: mustHex(t, rawv2), RSSI: -60}
}

func runToEnd(t *testing.T, p *Pipeline) ([]models.DeviceMessage, error) {
	t.Helper()
	out := make(chan models.DeviceMessage)
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), out) }()

	var msgs []models.DeviceMessage
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-out:
			if !ok {
				return msgs, <-done
			}
			msgs = append(msgs, m)
		case <-timeout:
			t.Fatal("pipeline did not finish")
		}
	}
}

func TestRunDecodesRAWv2(t *testing.T) {
	src := &sliceSource{ads: []models.Advertisement{ruuviAd(t, ruuviAddress)}}
	p, err := New(src, []gateway.Gateway{ruuviGateway(t, false, nil)}, Config{}, discard())
	require.NoError(t, err)

	msgs, err := runToEnd(t, p)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	avail := msgs[0].(*models.AvailabilityMessage)
	assert.Equal(t, models.Online, avail.State)

	data := msgs[1].(*models.SensorData)
	assert.Equal(t, 24.3, data.Fields["temperature"])
	assert.Equal(t, 1000.44, data.Fields["pressure"])
	assert.Equal(t, 53.49, data.Fields["humidity"])
	assert.Equal(t, 2.98, data.Fields["battery"])
	assert.Equal(t, "CB:B8:33:4C:88:4F", data.Device.MAC)
}

func TestRunUnknownDevicePolicy(t *testing.T) {
	const stranger = "11:22:33:44:55:66"

	t.Run("not allowed", func(t *testing.T) {
		gw := ruuviGateway(t, false, nil)
		src := &sliceSource{ads: []models.Advertisement{ruuviAd(t, stranger)}}
		p, err := New(src, []gateway.Gateway{gw}, Config{}, discard())
		require.NoError(t, err)

		msgs, err := runToEnd(t, p)
		require.NoError(t, err)
		assert.Empty(t, msgs)
		assert.False(t, gw.Registry().Has(stranger))
	})

	t.Run("allowed", func(t *testing.T) {
		src := &sliceSource{ads: []models.Advertisement{ruuviAd(t, stranger)}}
		p, err := New(src, []gateway.Gateway{ruuviGateway(t, true, nil)}, Config{}, discard())
		require.NoError(t, err)

		msgs, err := runToEnd(t, p)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, models.MessageTypeAvailability, msgs[0].Type())
		assert.Equal(t, models.MessageTypeSensorData, msgs[1].Type())
	})
}

func TestRunPreservesArrivalOrder(t *testing.T) {
	var ads []models.Advertisement
	for i := 0; i < 50; i++ {
		ads = append(ads, ruuviAd(t, fmt.Sprintf("10:00:00:00:00:%02X", i)))
	}
	p, err := New(&sliceSource{ads: ads}, []gateway.Gateway{ruuviGateway(t, true, nil)},
		Config{Concurrency: 4}, discard())
	require.NoError(t, err)

	msgs, err := runToEnd(t, p)
	require.NoError(t, err)
	require.Len(t, msgs, 100)
	for i, ad := range ads {
		assert.Equal(t, models.MessageTypeAvailability, msgs[2*i].Type())
		assert.Equal(t, ad.Address, msgs[2*i].Meta().Device.ID)
		assert.Equal(t, models.MessageTypeSensorData, msgs[2*i+1].Type())
		assert.Equal(t, ad.Address, msgs[2*i+1].Meta().Device.ID)
	}
}

// sequencedAd is the RAWv2 frame with its measurement sequence replaced.
func sequencedAd(t *testing.T, seq int) models.Advertisement {
	t.Helper()
	frame := rawv2[:36] + fmt.Sprintf("%04X", seq) + rawv2[40:]
	return models.Advertisement{Address: ruuviAddress, ManufacturerData: mustHex(t, frame), RSSI: -60}
}

func TestRunKeepsDeviceOrderWithinBurst(t *testing.T) {
	for _, concurrency := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			for round := 0; round < 20; round++ {
				var ads []models.Advertisement
				for seq := 1; seq <= 32; seq++ {
					ads = append(ads, sequencedAd(t, seq))
				}
				p, err := New(&sliceSource{ads: ads}, []gateway.Gateway{ruuviGateway(t, false, nil)},
					Config{Concurrency: concurrency}, discard())
				require.NoError(t, err)

				msgs, err := runToEnd(t, p)
				require.NoError(t, err)
				require.Len(t, msgs, 33)

				avail, ok := msgs[0].(*models.AvailabilityMessage)
				require.True(t, ok, "round %d: the online announcement must come first", round)
				assert.Equal(t, models.Online, avail.State)
				for i, m := range msgs[1:] {
					data, ok := m.(*models.SensorData)
					require.True(t, ok)
					require.Equal(t, uint32(i+1), data.Fields["measurement_sequence"], "round %d", round)
				}
			}
		})
	}
}

func TestRunSuppressesMiBeaconAfterCustomFrame(t *testing.T) {
	const (
		thermoAddress = "A4:C1:38:11:22:33"
		thermoMAC     = "33221138C1A4"
	)
	for _, concurrency := range []int{0, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			gw, err := gateway.NewXiaomi(gateway.Config{
				Timeout:          time.Hour,
				DecimalPrecision: 2,
				Devices:          []models.Device{{ID: thermoAddress, Name: "Bedroom"}},
			}, gateway.Options{})
			require.NoError(t, err)

			custom := models.Advertisement{
				Address: thermoAddress,
				ServiceData: []models.ServiceData{{
					UUID: models.ServiceEnvironmentalSensor,
					Data: mustHex(t, "A4C13811223300E62D5A0B8A07"),
				}},
			}
			beacon := models.Advertisement{
				Address: thermoAddress,
				ServiceData: []models.ServiceData{{
					UUID: models.ServiceMiBeacon,
					Data: mustHex(t, "50005B0502"+thermoMAC+"0D1004E6002C01"),
				}},
			}
			p, err := New(&sliceSource{ads: []models.Advertisement{custom, beacon, beacon}},
				[]gateway.Gateway{gw}, Config{Concurrency: concurrency}, discard())
			require.NoError(t, err)

			msgs, err := runToEnd(t, p)
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, models.MessageTypeAvailability, msgs[0].Type())
			data := msgs[1].(*models.SensorData)
			assert.Equal(t, 45.0, data.Fields["humidity"], "only the custom frame is published")
			assert.Equal(t, Stats{Received: 3, Emitted: 2}, p.Stats())
		})
	}
}

func TestLaneForIsStablePerDevice(t *testing.T) {
	lane := laneFor("cb:b8:33:4c:88:4f", DefaultLanes)
	assert.Equal(t, lane, laneFor(ruuviAddress, DefaultLanes))
	assert.Less(t, lane, DefaultLanes)
	assert.Zero(t, laneFor(ruuviAddress, 1))
}

func TestRunIsolatesBadAdvertisements(t *testing.T) {
	ads := []models.Advertisement{
		{Address: "00:00:00:00:00:01"},                                              // unroutable
		{Address: ruuviAddress, ManufacturerData: mustHex(t, "99040401")},           // unsupported revision
		{Address: ruuviAddress, ManufacturerData: mustHex(t, "99040512FC5394C37C")}, // truncated
		ruuviAd(t, ruuviAddress),
	}
	p, err := New(&sliceSource{ads: ads}, []gateway.Gateway{ruuviGateway(t, false, nil)}, Config{}, discard())
	require.NoError(t, err)

	msgs, err := runToEnd(t, p)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "availability from the truncated frame, data from the valid one")
	assert.Equal(t, models.MessageTypeAvailability, msgs[0].Type())
	assert.Equal(t, models.MessageTypeSensorData, msgs[1].Type())

	assert.Equal(t, Stats{Received: 4, Unroutable: 1, Emitted: 2, Failed: 2}, p.Stats())
}

type panickyGateway struct{}

func (panickyGateway) Family() models.Family { return models.FamilyRuuvi }

func (panickyGateway) Handle(ad models.Advertisement, _ resolver.Route) ([]models.DeviceMessage, error) {
	if ad.Address == "BAD" {
		panic("boom")
	}
	return []models.DeviceMessage{&models.AvailabilityMessage{
		Envelope: models.Envelope{Device: models.DeviceDescriptor{ID: ad.Address}},
		State:    models.Online,
	}}, nil
}

func (panickyGateway) Sweep() []models.DeviceMessage { return nil }
func (panickyGateway) Registry() *registry.Registry  { return nil }

func TestRunRecoversFromPanics(t *testing.T) {
	ads := []models.Advertisement{ruuviAd(t, "GOOD-1"), ruuviAd(t, "BAD"), ruuviAd(t, "GOOD-2")}
	p, err := New(&sliceSource{ads: ads}, []gateway.Gateway{panickyGateway{}}, Config{Concurrency: 2}, discard())
	require.NoError(t, err)

	msgs, err := runToEnd(t, p)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "GOOD-1", msgs[0].Meta().Device.ID)
	assert.Equal(t, "GOOD-2", msgs[1].Meta().Device.ID)
	assert.Equal(t, uint64(1), p.Stats().Failed)
}

func TestRunScannerFailure(t *testing.T) {
	boom := errors.New("adapter powered off")
	src := &sliceSource{ads: []models.Advertisement{ruuviAd(t, ruuviAddress)}, err: boom}
	p, err := New(src, []gateway.Gateway{ruuviGateway(t, false, nil)}, Config{}, discard())
	require.NoError(t, err)

	_, err = runToEnd(t, p)
	assert.ErrorIs(t, err, boom)
}

func TestRunWatchdogEmitsOfflineOnce(t *testing.T) {
	clock := &lockedClock{t: time.Unix(1000, 0)}
	src := &sliceSource{ads: []models.Advertisement{ruuviAd(t, ruuviAddress)}, block: true}
	p, err := New(src, []gateway.Gateway{ruuviGateway(t, false, clock.Now)},
		Config{WatchdogInterval: 5 * time.Millisecond, AnalyticsInterval: 5 * time.Millisecond}, discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan models.DeviceMessage)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, out) }()

	next := func() models.DeviceMessage {
		select {
		case m := <-out:
			return m
		case <-time.After(2 * time.Second):
			t.Fatal("no message")
			return nil
		}
	}

	assert.Equal(t, models.MessageTypeAvailability, next().Type())
	assert.Equal(t, models.MessageTypeSensorData, next().Type())

	clock.Advance(2 * time.Minute)
	m := next()
	require.IsType(t, &models.AvailabilityMessage{}, m)
	assert.Equal(t, models.Offline, m.(*models.AvailabilityMessage).State)

	select {
	case m := <-out:
		t.Fatalf("unexpected message %v", m)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	for range out {
	}
	assert.NoError(t, <-done)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, nil, Config{}, discard())
	assert.Error(t, err)

	_, err = New(&sliceSource{}, nil, Config{Concurrency: -1}, discard())
	assert.Error(t, err)

	g := ruuviGateway(t, false, nil)
	_, err = New(&sliceSource{}, []gateway.Gateway{g, g}, Config{}, discard())
	assert.Error(t, err)

	p, err := New(&sliceSource{}, []gateway.Gateway{g}, Config{}, discard())
	require.NoError(t, err)
	require.Len(t, p.Registries(), 1)
	assert.Equal(t, models.FamilyRuuvi, p.Registries()[0].Family())
}

// syncBuffer is an io.Writer safe for the concurrent log calls of Run.
type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func TestRunAnalyticsOnlyLogs(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	src := &sliceSource{ads: []models.Advertisement{ruuviAd(t, ruuviAddress)}, block: true}
	p, err := New(src, []gateway.Gateway{ruuviGateway(t, false, nil)},
		Config{WatchdogInterval: time.Hour, AnalyticsInterval: 5 * time.Millisecond}, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan models.DeviceMessage, 8)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, out) }()

	require.Eventually(t, func() bool {
		return len(out) == 2 && strings.Contains(logs.String(), "Registry stats")
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	var msgs []models.DeviceMessage
	for m := range out {
		msgs = append(msgs, m)
	}
	assert.Len(t, msgs, 2, "analytics adds nothing to the stream")
	assert.Contains(t, logs.String(), "family=ruuvitag")
}
