package ports

import (
	"context"

	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/watch"
)

// Transport owns one physical link to one sensor device. The two
// implementations (short-range wireless, local-network socket) are
// independent state owners sharing this contract; the connection manager
// composes them and never assumes anything beyond it.
type Transport interface {
	// Kind reports which transport this connector serves.
	Kind() domain.TransportKind

	// Scan starts discovery and returns a channel of device-list
	// snapshots. A new snapshot is emitted whenever a device appears or
	// changes; the channel closes when ctx is cancelled or the transport
	// gives up. Scan failures are silent at this level so one transport
	// cannot suppress another's results.
	Scan(ctx context.Context) (<-chan []domain.Device, error)

	// Connect establishes a link to the device. It fails with
	// domain.ErrIncompatibleTransport when the device belongs to another
	// transport, before any I/O.
	Connect(ctx context.Context, dev domain.Device) error

	// Disconnect is idempotent and always leaves the connector in the
	// disconnected status, even when teardown reports an error.
	Disconnect(ctx context.Context) error

	// StartStreaming asks the device to stream readings. It is only
	// effective from the connected status; from any other status it
	// returns a closed channel and no error, so streaming stays optional.
	StartStreaming(ctx context.Context) (<-chan domain.Reading, error)

	// StopStreaming sends the stop directive and returns the connector to
	// the connected status.
	StopStreaming(ctx context.Context) error

	// SendCommand passes a raw directive to the device. It fails with
	// domain.ErrNoActiveConnection when no transport session exists.
	SendCommand(ctx context.Context, cmd string) error

	// IsCompatible is a pure predicate on the device's transport kind.
	IsCompatible(dev domain.Device) bool

	// Reachable runs a lightweight liveness probe independent of the full
	// connect handshake. Network errors report false, never propagate.
	Reachable(ctx context.Context, dev domain.Device) bool

	// Status exposes the connector's totally-ordered status transitions.
	Status() *watch.Value[domain.ConnectionStatus]
}
