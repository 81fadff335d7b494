// Package scanner is the BlueZ scanning backend feeding the pipeline.
package scanner

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"ble-bridge/internal/decoder/ruuvi"
	"ble-bridge/models"
)

// Scanner wraps adapter scanning with context cancellation.
type Scanner struct {
	name    string
	adapter *bluetooth.Adapter
	logger  *slog.Logger
}

// New uses adapter ("hci0" when empty).
func New(adapter string, logger *slog.Logger) *Scanner {
	if adapter == "" {
		adapter = "hci0"
	}
	return &Scanner{
		name:    adapter,
		adapter: newAdapter(adapter),
		logger:  logger.With("component", "scanner", "adapter", adapter),
	}
}

// Scan blocks until ctx is done or the adapter fails. Each result is sent on
// out; a full out channel holds the scan callback back.
func (s *Scanner) Scan(ctx context.Context, out chan<- models.Advertisement) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter %s: %w", s.name, err)
	}

	go func() {
		<-ctx.Done()
		if err := s.adapter.StopScan(); err != nil {
			s.logger.Warn("Failed to stop scan", slog.Any("error", err))
		}
	}()

	s.logger.Info("Scanning started")
	err := s.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		ad := toAdvertisement(r.Address.String(), r.RSSI, r.LocalName(),
			r.ManufacturerData(), r.ServiceData(), time.Now())
		select {
		case out <- ad:
		case <-ctx.Done():
		}
	})

	if ctx.Err() != nil {
		s.logger.Info("Scanning stopped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan %s: %w", s.name, err)
	}
	return nil
}

// toAdvertisement flattens a scan result. The manufacturer payload is
// rebuilt with its little-endian company id in front, preferring the Ruuvi
// element when several are present.
func toAdvertisement(address string, rssi int16, name string,
	mfg []bluetooth.ManufacturerDataElement, svc []bluetooth.ServiceDataElement, seenAt time.Time,
) models.Advertisement {
	ad := models.Advertisement{
		Address:   models.NormalizeID(address),
		LocalName: name,
		RSSI:      rssi,
		SeenAt:    seenAt,
	}

	if len(mfg) > 0 {
		chosen := mfg[0]
		for _, md := range mfg {
			if md.CompanyID == ruuvi.ManufacturerID {
				chosen = md
				break
			}
		}
		payload := make([]byte, 2, 2+len(chosen.Data))
		binary.LittleEndian.PutUint16(payload, chosen.CompanyID)
		ad.ManufacturerData = append(payload, chosen.Data...)
	}

	for _, sd := range svc {
		ad.ServiceData = append(ad.ServiceData, models.ServiceData{
			UUID: serviceUUID(sd.UUID),
			Data: append([]byte(nil), sd.Data...),
		})
	}
	return ad
}

func serviceUUID(u bluetooth.UUID) string {
	if u.Is16Bit() {
		return fmt.Sprintf("%04x", u.Get16Bit())
	}
	return strings.ToLower(u.String())
}
