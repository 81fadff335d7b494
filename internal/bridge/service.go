// Package bridge forwards the pipeline output to the broker and mirrors
// device availability into redis and the inventory database.
package bridge

import (
	"log/slog"
	"sync/atomic"
	"time"

	"ble-bridge/models"
)

// Publisher sends one device message downstream.
type Publisher interface {
	Publish(msg models.DeviceMessage) error
}

// StatusMirror keeps the latest availability per device.
type StatusMirror interface {
	SaveAvailability(device models.DeviceDescriptor, state models.Availability, at time.Time) error
	SaveLastSeen(device models.DeviceDescriptor, at time.Time) error
}

// Inventory records first sightings and availability transitions.
type Inventory interface {
	RecordSighting(device models.DeviceDescriptor, seenAt time.Time) error
	RecordAvailability(msg *models.AvailabilityMessage) error
}

// Stats are running totals of consumed messages.
type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
}

// Service 파이프라인 출력 소비자
type Service struct {
	publisher Publisher
	mirror    StatusMirror
	inventory Inventory
	logger    *slog.Logger

	// sighted holds the ids already written to the inventory in this process.
	sighted map[string]bool

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewService wires the consumer. mirror and inventory are optional.
func NewService(publisher Publisher, mirror StatusMirror, inventory Inventory, logger *slog.Logger) *Service {
	return &Service{
		publisher: publisher,
		mirror:    mirror,
		inventory: inventory,
		logger:    logger.With("component", "bridge"),
		sighted:   make(map[string]bool),
	}
}

// Consume handles messages until in is closed. Delivery failures are
// logged and never stop the stream.
func (s *Service) Consume(in <-chan models.DeviceMessage) {
	for msg := range in {
		s.handle(msg)
	}
	s.logger.Info("Message stream closed", "published", s.published.Load(), "failed", s.failed.Load())
}

func (s *Service) Stats() Stats {
	return Stats{Published: s.published.Load(), Failed: s.failed.Load()}
}

func (s *Service) handle(msg models.DeviceMessage) {
	meta := msg.Meta()
	logger := s.logger.With("device_id", meta.Device.ID, "family", meta.Device.Family, "type", msg.Type())

	if err := s.publisher.Publish(msg); err != nil {
		s.failed.Add(1)
		logger.Warn("Failed to publish message", slog.Any("error", err))
	} else {
		s.published.Add(1)
	}

	switch m := msg.(type) {
	case *models.AvailabilityMessage:
		logger.Info("Device availability changed", "state", m.State)
		if s.mirror != nil {
			if err := s.mirror.SaveAvailability(m.Device, m.State, m.Timestamp); err != nil {
				logger.Error("Failed to save availability to Redis", slog.Any("error", err))
			}
		}
		if s.inventory != nil {
			if err := s.inventory.RecordAvailability(m); err != nil {
				logger.Error("Failed to record availability", slog.Any("error", err))
			}
			s.sighted[m.Device.ID] = true
		}
	case *models.SensorData:
		if s.mirror != nil {
			if err := s.mirror.SaveLastSeen(m.Device, m.Timestamp); err != nil {
				logger.Error("Failed to save last seen to Redis", slog.Any("error", err))
			}
		}
		if s.inventory != nil && !s.sighted[m.Device.ID] {
			if err := s.inventory.RecordSighting(m.Device, m.Timestamp); err != nil {
				logger.Error("Failed to record device sighting", slog.Any("error", err))
				return
			}
			s.sighted[m.Device.ID] = true
		}
	default:
		logger.Error("Unexpected message type dropped")
	}
}
