//go:build linux

package scanner

import "tinygo.org/x/bluetooth"

func newAdapter(name string) *bluetooth.Adapter {
	return bluetooth.NewAdapter(name)
}
