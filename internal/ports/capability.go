package ports

// Capability is the external permission/feature check consulted before any
// scan or connect attempt. Implementations come from the host platform; the
// core only reads them.
type Capability interface {
	RadioSupported() bool
	RadioEnabled() bool
	NetworkAllowed() bool
}

// PressureLevel is the memory-pressure signal reported by an external
// collaborator. The streaming buffer sizes itself from it without caring
// where the signal comes from.
type PressureLevel int

const (
	PressureNone PressureLevel = iota
	PressureModerate
	PressureCritical
)

// MemoryPressureSource reports the current pressure level.
type MemoryPressureSource interface {
	Pressure() PressureLevel
}
