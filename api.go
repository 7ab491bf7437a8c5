package sensorlink

import (
	base "github.com/avetra/sensorlink/pkg/sensorlink"
)

// Re-exported errors for convenience.
var (
	ErrIncompatibleTransport = base.ErrIncompatibleTransport
	ErrCapabilityUnavailable = base.ErrCapabilityUnavailable
	ErrConnectionTimeout     = base.ErrConnectionTimeout
	ErrConnectionRejected    = base.ErrConnectionRejected
	ErrNoActiveConnection    = base.ErrNoActiveConnection
	ErrNoDataToSave          = base.ErrNoDataToSave
	ErrDeviceNotReachable    = base.ErrDeviceNotReachable
)

// Type aliases so consumers can import github.com/avetra/sensorlink directly.
type (
	Config               = base.Config
	HealthConfig         = base.HealthConfig
	Device               = base.Device
	TransportKind        = base.TransportKind
	Reading              = base.Reading
	ColorSample          = base.ColorSample
	ElectrodeSet         = base.ElectrodeSet
	SessionBatch         = base.SessionBatch
	ConnectionStatus     = base.ConnectionStatus
	Health               = base.Health
	Transport            = base.Transport
	BatchStore           = base.BatchStore
	ArtifactInfo         = base.ArtifactInfo
	Capability           = base.Capability
	Observability        = base.Observability
	Field                = base.Field
	MemoryPressureSource = base.MemoryPressureSource
	PressureLevel        = base.PressureLevel
	WirelessBackend      = base.WirelessBackend
	Advertisement        = base.Advertisement
	Runtime              = base.Runtime
	Option               = base.Option
)

const (
	TransportWireless = base.TransportWireless
	TransportSocket   = base.TransportSocket

	StatusDisconnected = base.StatusDisconnected
	StatusConnecting   = base.StatusConnecting
	StatusConnected    = base.StatusConnected
	StatusStreaming    = base.StatusStreaming
	StatusError        = base.StatusError

	HealthUnknown      = base.HealthUnknown
	HealthHealthy      = base.HealthHealthy
	HealthUnhealthy    = base.HealthUnhealthy
	HealthConnecting   = base.HealthConnecting
	HealthReconnecting = base.HealthReconnecting
	HealthDisconnected = base.HealthDisconnected
	HealthError        = base.HealthError
	HealthFailed       = base.HealthFailed

	PressureNone     = base.PressureNone
	PressureModerate = base.PressureModerate
	PressureCritical = base.PressureCritical

	Version = base.Version
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithTransports(ts ...Transport) Option {
	return base.WithTransports(ts...)
}

func WithStore(s BatchStore) Option {
	return base.WithStore(s)
}

func WithCapability(c Capability) Option {
	return base.WithCapability(c)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithMemoryPressure(src MemoryPressureSource) Option {
	return base.WithMemoryPressure(src)
}

func WithWirelessBackend(b WirelessBackend) Option {
	return base.WithWirelessBackend(b)
}
