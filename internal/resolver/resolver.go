// Package resolver decides which sensor family and protocol revision an
// advertisement belongs to. It inspects bytes only and never touches any
// device state, so unroutable advertisements cannot create registry entries.
package resolver

import (
	"encoding/binary"
	"fmt"

	"ble-bridge/internal/decoder/ruuvi"
	"ble-bridge/internal/decoder/xiaomi"
	"ble-bridge/models"
)

// Route is the outcome of a successful resolution.
type Route struct {
	Family models.Family
	// Model is inferred from the advertisement; ModelUnknown when nothing in
	// the packet identifies it.
	Model models.Model
	// RuuviFormat is set for the Ruuvi family only.
	RuuviFormat ruuvi.Format
	// Payload is the Ruuvi payload starting at the revision byte.
	Payload []byte
}

// UnsupportedRevisionError is returned when the family is recognised but
// its revision byte has no decoder.
type UnsupportedRevisionError struct {
	Family   models.Family
	Revision byte
}

func (e *UnsupportedRevisionError) Error() string {
	return fmt.Sprintf("%s: unsupported protocol revision 0x%02X", e.Family, e.Revision)
}

// Resolve classifies ad. ok is false when no family claims the advertisement;
// that is not an error.
func Resolve(ad models.Advertisement) (route Route, ok bool, err error) {
	if route, ok, err = resolveRuuvi(ad); ok || err != nil {
		return route, ok, err
	}
	return resolveXiaomi(ad)
}

func resolveRuuvi(ad models.Advertisement) (Route, bool, error) {
	md := ad.ManufacturerData
	if len(md) < 2 || binary.LittleEndian.Uint16(md[0:2]) != ruuvi.ManufacturerID {
		return Route{}, false, nil
	}
	if len(md) < 3 {
		return Route{}, false, fmt.Errorf("%s: manufacturer data carries no revision byte: %w",
			models.FamilyRuuvi, ruuvi.ErrPayloadTooShort)
	}
	format := ruuvi.Format(md[2])
	if !format.Supported() {
		return Route{}, false, &UnsupportedRevisionError{Family: models.FamilyRuuvi, Revision: md[2]}
	}
	return Route{
		Family:      models.FamilyRuuvi,
		Model:       format.Model(),
		RuuviFormat: format,
		Payload:     md[2:],
	}, true, nil
}

func resolveXiaomi(ad models.Advertisement) (Route, bool, error) {
	nameModel, named := xiaomi.NameModel(ad.LocalName)
	mibeacon, hasMiBeacon := ad.ServiceDataFor(models.ServiceMiBeacon)
	if !named && !xiaomi.HasVendorPrefix(ad.Address) && !hasMiBeacon {
		return Route{}, false, nil
	}

	route := Route{Family: models.FamilyXiaomi, Model: nameModel}
	if route.Model != models.ModelUnknown {
		return route, true, nil
	}
	if _, ok := ad.ServiceDataFor(models.ServiceEnvironmentalSensor); ok {
		route.Model = models.ModelLYWSD03MMC
		return route, true, nil
	}
	if hasMiBeacon && len(mibeacon) >= 4 {
		route.Model = xiaomi.ProductModel(binary.LittleEndian.Uint16(mibeacon[2:4]))
	}
	return route, true, nil
}
