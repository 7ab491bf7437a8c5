// Package wireless implements the short-range-wireless transport on top of
// an injectable GATT backend. The vendor protocol is a single service with
// one notify characteristic carrying streamed frames and one write
// characteristic carrying directives; the platform radio stack behind it is
// an external contract this package only consumes.
package wireless

import (
	"context"
	"time"
)

// Vendor-defined service layout (Nordic UART style).
const (
	ServiceUUID    = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	WriteCharUUID  = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	NotifyCharUUID = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// Device directives written to the write characteristic.
const (
	DirectiveStartStream = "START_STREAM"
	DirectiveStopStream  = "STOP_STREAM"
	DirectiveAuthPrefix  = "AUTH:"
)

// Advertisement is one observation of a broadcasting device.
type Advertisement struct {
	Address          string
	Name             string
	RSSI             int
	ManufacturerData []byte
}

// Backend abstracts the platform radio stack. Notifications delivered via
// Subscribe must already have the client-characteristic-configuration
// descriptor enabled by the backend.
type Backend interface {
	// Supported reports whether the host has a usable radio at all.
	Supported() bool
	// Enabled reports whether the radio is currently switched on.
	Enabled() bool

	// Scan invokes found for every advertisement observed until ctx is
	// cancelled.
	Scan(ctx context.Context, found func(Advertisement)) error

	Connect(ctx context.Context, address string) error
	Disconnect(address string) error

	// Subscribe enables notifications on a characteristic and delivers
	// each notification payload to notify.
	Subscribe(address, serviceUUID, charUUID string, notify func([]byte)) error
	Unsubscribe(address, serviceUUID, charUUID string) error

	Write(address, serviceUUID, charUUID string, data []byte) error
}

// Config carries the wireless transport's policy knobs.
type Config struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ProbeWindow    time.Duration `yaml:"probe_window"`
	// MinRSSIDelta is the signal change, in dBm, that counts as a device
	// update worth re-emitting during a scan.
	MinRSSIDelta int `yaml:"min_rssi_delta"`
}

func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.ProbeWindow <= 0 {
		c.ProbeWindow = 3 * time.Second
	}
	if c.MinRSSIDelta <= 0 {
		c.MinRSSIDelta = 8
	}
}
