package mqtt

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ble-bridge/message"
	"ble-bridge/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient overrides the calls the publisher makes; anything else panics
// through the nil embedded interface.
type fakeClient struct {
	mqtt.Client
	mu        sync.Mutex
	connected bool
	token     mqtt.Token
	sent      []published
}

func (f *fakeClient) IsConnected() bool { return f.connected }
func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{topic: topic, retained: retained, payload: payload.([]byte)})
	if f.token != nil {
		return f.token
	}
	return completedToken(nil)
}

func testClient(fc *fakeClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newClient(fc, message.NewMessageGenerator("ble"), "ble/bridge/status", 50*time.Millisecond, logger)
}

func availability(state models.Availability) *models.AvailabilityMessage {
	return &models.AvailabilityMessage{
		Envelope: models.Envelope{
			ID:        "id-1",
			Device:    models.DeviceDescriptor{ID: "A4:C1:38:00:11:22", Name: "Bedroom", Family: models.FamilyXiaomi},
			Timestamp: time.Now(),
		},
		State: state,
	}
}

func TestPublishAvailabilityIsRetained(t *testing.T) {
	fc := &fakeClient{connected: true}
	c := testClient(fc)

	require.NoError(t, c.Publish(availability(models.Online)))

	require.Len(t, fc.sent, 1)
	assert.Equal(t, "ble/xiaomi/a4c138001122/availability", fc.sent[0].topic)
	assert.True(t, fc.sent[0].retained)
	assert.Contains(t, string(fc.sent[0].payload), `"state":"online"`)
}

func TestPublishSensorDataIsNotRetained(t *testing.T) {
	fc := &fakeClient{connected: true}
	c := testClient(fc)
	msg := &models.SensorData{
		Envelope: availability(models.Online).Envelope,
		Kind:     models.SensorEnvironmental,
		Fields:   models.Fields{"humidity": 41.5},
	}

	require.NoError(t, c.Publish(msg))

	require.Len(t, fc.sent, 1)
	assert.Equal(t, "ble/xiaomi/a4c138001122/state", fc.sent[0].topic)
	assert.False(t, fc.sent[0].retained)
}

func TestPublishErrors(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		c := testClient(&fakeClient{})
		assert.ErrorIs(t, c.Publish(availability(models.Online)), ErrNotConnected)
	})

	t.Run("timeout", func(t *testing.T) {
		fc := &fakeClient{connected: true, token: &fakeToken{done: make(chan struct{})}}
		c := testClient(fc)
		assert.ErrorIs(t, c.Publish(availability(models.Online)), ErrPublishTimeout)
	})

	t.Run("broker error", func(t *testing.T) {
		boom := errors.New("not authorized")
		fc := &fakeClient{connected: true, token: completedToken(boom)}
		c := testClient(fc)
		assert.ErrorIs(t, c.Publish(availability(models.Online)), boom)
	})
}
