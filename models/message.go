package models

import "time"

// MessageType discriminates the DeviceMessage variants.
type MessageType string

const (
	MessageTypeSensorData   MessageType = "sensor_data"
	MessageTypeAvailability MessageType = "availability"
)

// SensorKind discriminates the SensorData variants.
type SensorKind string

const (
	SensorEnvironmental SensorKind = "environmental"
	SensorAirQuality    SensorKind = "air_quality"
	SensorPlant         SensorKind = "plant"
)

// Envelope is shared by every DeviceMessage.
type Envelope struct {
	ID        string
	Device    DeviceDescriptor
	Timestamp time.Time
}

// DeviceMessage is a closed sum type: *SensorData or *AvailabilityMessage.
// Consumers switch on the concrete type and treat anything else as a bug.
type DeviceMessage interface {
	Meta() Envelope
	Type() MessageType
	deviceMessage()
}

// SensorData carries decoded and derived measurements of one logical reading.
type SensorData struct {
	Envelope
	Kind   SensorKind
	Fields Fields
}

func (m *SensorData) Meta() Envelope    { return m.Envelope }
func (m *SensorData) Type() MessageType { return MessageTypeSensorData }
func (*SensorData) deviceMessage()      {}

// AvailabilityMessage announces an online/offline transition.
type AvailabilityMessage struct {
	Envelope
	State Availability
}

func (m *AvailabilityMessage) Meta() Envelope    { return m.Envelope }
func (m *AvailabilityMessage) Type() MessageType { return MessageTypeAvailability }
func (*AvailabilityMessage) deviceMessage()      {}

// Fields holds named numeric or boolean measurements.
type Fields map[string]any

// SetFloat stores a rounded measurement; nil values are omitted.
func SetFloat[T ~float64](f Fields, name string, v *T, decimals int) {
	if v == nil {
		return
	}
	f[name] = Round(float64(*v), decimals)
}

// SetCount stores an integer counter; nil values are omitted.
func SetCount[T ~uint8 | ~uint16 | ~uint32](f Fields, name string, v *T) {
	if v == nil {
		return
	}
	f[name] = uint32(*v)
}

// SetBool stores a flag.
func SetBool(f Fields, name string, v bool) {
	f[name] = v
}
