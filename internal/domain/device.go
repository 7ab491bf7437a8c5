package domain

import (
	"fmt"
	"net"
	"regexp"
)

// TransportKind identifies the physical medium a device is reachable over.
type TransportKind string

const (
	TransportWireless TransportKind = "wireless"
	TransportSocket   TransportKind = "socket"
)

var macAddressRe = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// Device identifies a discoverable remote sensor unit. The ID is the
// transport-specific address: a MAC address for wireless devices, a
// host:port pair for socket devices. Devices are produced by scans and
// discarded on disconnect; they are never persisted on their own.
type Device struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Kind          TransportKind `json:"kind"`
	SignalQuality int           `json:"signal_quality"`
}

// Validate rejects devices whose address does not match the transport's
// address syntax. Invalid devices must be dropped before any I/O is
// attempted on them.
func (d Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("device address is empty")
	}
	switch d.Kind {
	case TransportWireless:
		if !macAddressRe.MatchString(d.ID) {
			return fmt.Errorf("device address %q is not a valid wireless address", d.ID)
		}
	case TransportSocket:
		if _, _, err := net.SplitHostPort(d.ID); err != nil {
			return fmt.Errorf("device address %q is not a valid socket address: %w", d.ID, err)
		}
	default:
		return fmt.Errorf("unknown transport kind %q", d.Kind)
	}
	return nil
}
