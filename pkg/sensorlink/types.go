package sensorlink

import (
	"github.com/avetra/sensorlink/internal/adapters/wireless"
	"github.com/avetra/sensorlink/internal/app/config"
	"github.com/avetra/sensorlink/internal/app/health"
	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/ports"
)

// Re-exported domain types so consumers never import internal packages.
type (
	// Device identifies a discoverable sensor unit.
	Device = domain.Device
	// TransportKind names the physical medium of a device.
	TransportKind = domain.TransportKind
	// Reading is one timestamped measurement.
	Reading = domain.Reading
	// ColorSample is the color sensor triplet plus clear count.
	ColorSample = domain.ColorSample
	// ElectrodeSet holds the per-material electrode voltages.
	ElectrodeSet = domain.ElectrodeSet
	// SessionBatch is an immutable, persisted acquisition session.
	SessionBatch = domain.SessionBatch
	// ConnectionStatus is the raw link state.
	ConnectionStatus = domain.ConnectionStatus
	// Health is the derived liveness classification.
	Health = domain.Health

	// Transport is the connector contract both transports implement.
	Transport = ports.Transport
	// BatchStore persists session batches under names.
	BatchStore = ports.BatchStore
	// ArtifactInfo describes one stored artifact.
	ArtifactInfo = ports.ArtifactInfo
	// Capability is the external permission/feature check.
	Capability = ports.Capability
	// Observability is the logging/metrics port.
	Observability = ports.Observability
	// Field is a structured log field.
	Field = ports.Field
	// MemoryPressureSource reports memory pressure to the buffer.
	MemoryPressureSource = ports.MemoryPressureSource
	// PressureLevel is the reported pressure classification.
	PressureLevel = ports.PressureLevel

	// WirelessBackend is the platform radio contract the wireless
	// transport drives.
	WirelessBackend = wireless.Backend
	// Advertisement is one observed radio advertisement.
	Advertisement = wireless.Advertisement

	// Config is the root YAML configuration.
	Config = config.Config
	// HealthConfig carries the monitor's policy constants.
	HealthConfig = health.Config
)

const (
	TransportWireless = domain.TransportWireless
	TransportSocket   = domain.TransportSocket

	StatusDisconnected = domain.StatusDisconnected
	StatusConnecting   = domain.StatusConnecting
	StatusConnected    = domain.StatusConnected
	StatusStreaming    = domain.StatusStreaming
	StatusError        = domain.StatusError

	HealthUnknown      = domain.HealthUnknown
	HealthHealthy      = domain.HealthHealthy
	HealthUnhealthy    = domain.HealthUnhealthy
	HealthConnecting   = domain.HealthConnecting
	HealthReconnecting = domain.HealthReconnecting
	HealthDisconnected = domain.HealthDisconnected
	HealthError        = domain.HealthError
	HealthFailed       = domain.HealthFailed

	PressureNone     = ports.PressureNone
	PressureModerate = ports.PressureModerate
	PressureCritical = ports.PressureCritical
)

// Re-exported errors for convenience.
var (
	ErrIncompatibleTransport = domain.ErrIncompatibleTransport
	ErrCapabilityUnavailable = domain.ErrCapabilityUnavailable
	ErrConnectionTimeout     = domain.ErrConnectionTimeout
	ErrConnectionRejected    = domain.ErrConnectionRejected
	ErrNoActiveConnection    = domain.ErrNoActiveConnection
	ErrNoDataToSave          = domain.ErrNoDataToSave
	ErrDeviceNotReachable    = domain.ErrDeviceNotReachable
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
