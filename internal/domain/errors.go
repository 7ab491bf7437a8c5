package domain

import "errors"

// Sentinel errors for the connection and persistence layers. Callers match
// them with errors.Is; wrapping adds context without losing identity.
var (
	// ErrIncompatibleTransport is returned when a device is routed to a
	// connector of the wrong transport kind. No I/O is attempted.
	ErrIncompatibleTransport = errors.New("incompatible transport for device")

	// ErrCapabilityUnavailable is returned when a required capability
	// (radio enabled, permission granted) is missing before connect.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrConnectionTimeout is returned when a connection attempt exceeds
	// the configured deadline.
	ErrConnectionTimeout = errors.New("connection timed out")

	// ErrConnectionRejected is returned when the underlying link refused
	// the connection.
	ErrConnectionRejected = errors.New("connection rejected")

	// ErrNoActiveConnection is returned by operations that require a live
	// connection when none exists. The message is part of the contract.
	ErrNoActiveConnection = errors.New("No active connection")

	// ErrNoDataToSave is returned when a save is requested while the
	// session buffer is empty.
	ErrNoDataToSave = errors.New("no data to save")

	// ErrDeviceNotReachable is returned by a refresh when the connected
	// device no longer answers reachability probes.
	ErrDeviceNotReachable = errors.New("device not reachable")
)

// FormatError reports a structurally invalid persisted artifact. It is
// distinct from I/O-level failures so callers can tell corruption apart
// from a missing disk.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return "malformed artifact: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed artifact: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// StorageError reports an I/O-level persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }
