package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"ble-bridge/models"
)

// Topic 종류
const (
	TopicState        = "state"
	TopicAvailability = "availability"
)

// MessageGenerator 인터페이스
type MessageGenerator interface {
	// Topic returns the topic msg is published on and whether it is retained.
	Topic(msg models.DeviceMessage) (topic string, retained bool, err error)
	Generate(msg models.DeviceMessage) ([]byte, error)
}

// DefaultMessageGenerator 구현체
type DefaultMessageGenerator struct {
	baseTopic  string
	seqTracker map[string]uint64
	mutex      sync.Mutex
}

func NewMessageGenerator(baseTopic string) MessageGenerator {
	return &DefaultMessageGenerator{
		baseTopic:  strings.TrimSuffix(baseTopic, "/"),
		seqTracker: make(map[string]uint64),
	}
}

// =======================================================================
// WIRE 구조체들
// =======================================================================

type DevicePayload struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Family    models.Family `json:"family"`
	Model     models.Model  `json:"model,omitempty"`
	MAC       string        `json:"mac,omitempty"`
	RSSI      *int16        `json:"rssi,omitempty"`
	TimeoutMs int64         `json:"timeout_ms"`
}

type Envelope struct {
	ID        string              `json:"id"`
	Type      models.MessageType  `json:"type"`
	Seq       uint64              `json:"seq"`
	Timestamp string              `json:"timestamp"`
	Device    DevicePayload       `json:"device"`
	Kind      models.SensorKind   `json:"kind,omitempty"`
	Data      models.Fields       `json:"data,omitempty"`
	State     models.Availability `json:"state,omitempty"`
}

// =======================================================================
// MESSAGE GENERATOR 구현
// =======================================================================

func (g *DefaultMessageGenerator) Topic(msg models.DeviceMessage) (string, bool, error) {
	meta := msg.Meta()
	prefix := fmt.Sprintf("%s/%s/%s", g.baseTopic, meta.Device.Family, TopicDeviceID(meta.Device.ID))
	switch msg.(type) {
	case *models.SensorData:
		return prefix + "/" + TopicState, false, nil
	case *models.AvailabilityMessage:
		return prefix + "/" + TopicAvailability, true, nil
	default:
		return "", false, fmt.Errorf("unsupported message type %T", msg)
	}
}

func (g *DefaultMessageGenerator) Generate(msg models.DeviceMessage) ([]byte, error) {
	meta := msg.Meta()
	env := &Envelope{
		ID:        meta.ID,
		Type:      msg.Type(),
		Seq:       g.nextSeq(meta.Device.ID),
		Timestamp: meta.Timestamp.UTC().Format(time.RFC3339Nano),
		Device: DevicePayload{
			ID:        meta.Device.ID,
			Name:      meta.Device.Name,
			Family:    meta.Device.Family,
			Model:     meta.Device.Model,
			MAC:       meta.Device.MAC,
			RSSI:      meta.Device.RSSI,
			TimeoutMs: meta.Device.Timeout.Milliseconds(),
		},
	}

	switch m := msg.(type) {
	case *models.SensorData:
		env.Kind = m.Kind
		env.Data = m.Fields
	case *models.AvailabilityMessage:
		env.State = m.State
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}

	return json.Marshal(env)
}

func (g *DefaultMessageGenerator) nextSeq(deviceID string) uint64 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.seqTracker[deviceID]++
	return g.seqTracker[deviceID]
}

// TopicDeviceID turns a device id into a topic segment: "CB:B8:33:4C:88:4F" -> "cbb8334c884f".
func TopicDeviceID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, ":", ""))
}
