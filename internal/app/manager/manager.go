// Package manager holds the single logical device connection. It composes
// the transport connectors, fans their discovery results into one merged
// stream, and enforces that at most one device is connected at a time.
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/ports"
	"github.com/avetra/sensorlink/internal/watch"
)

// DefaultAuthToken is sent when AuthenticateDevice is called without an
// explicit token.
const DefaultAuthToken = "sensorlink-default"

// AllowAll is the permissive capability check used when the host platform
// does not provide one.
type AllowAll struct{}

func (AllowAll) RadioSupported() bool { return true }
func (AllowAll) RadioEnabled() bool   { return true }
func (AllowAll) NetworkAllowed() bool { return true }

// Manager is the connection orchestrator.
type Manager struct {
	transports []ports.Transport
	caps       ports.Capability
	obs        ports.Observability
	status     *watch.Value[domain.ConnectionStatus]

	// connMu serializes connect, disconnect, and refresh end to end, so a
	// reconnection task can never run a second Connect on a connector while
	// a user connect is in flight. mu guards the state fields only and is
	// always taken after connMu.
	connMu sync.Mutex

	mu            sync.Mutex
	connected     *domain.Device
	active        ports.Transport
	statusForward context.CancelFunc
}

func New(transports []ports.Transport, caps ports.Capability, obs ports.Observability) *Manager {
	if caps == nil {
		caps = AllowAll{}
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Manager{
		transports: transports,
		caps:       caps,
		obs:        obs,
		status:     watch.NewValue(domain.StatusDisconnected),
	}
}

// ScanForDevices merges every transport's discovery stream into one
// sequence of snapshot lists, unioned by device id with the most recent
// observation winning. A transport whose scan fails is dropped from the
// merge; the others keep emitting.
func (m *Manager) ScanForDevices(ctx context.Context) <-chan []domain.Device {
	out := make(chan []domain.Device, 4)

	type update struct {
		index   int
		devices []domain.Device
	}
	updates := make(chan update)

	var wg sync.WaitGroup
	active := 0
	for i, t := range m.transports {
		ch, err := t.Scan(ctx)
		if err != nil {
			m.obs.LogError("scan_start_failed", err, ports.Field{Key: "transport", Value: string(t.Kind())})
			continue
		}
		active++
		wg.Add(1)
		go func(index int, ch <-chan []domain.Device) {
			defer wg.Done()
			for snapshot := range ch {
				select {
				case <-ctx.Done():
					return
				case updates <- update{index: index, devices: snapshot}:
				}
			}
		}(i, ch)
	}

	go func() {
		wg.Wait()
		close(updates)
	}()

	go func() {
		defer close(out)
		if active == 0 {
			return
		}
		latest := make(map[int][]domain.Device, len(m.transports))
		for u := range updates {
			latest[u.index] = u.devices
			merged := mergeSnapshots(m.transports, latest, u.index)
			select {
			case <-ctx.Done():
				return
			case out <- merged:
			}
		}
	}()

	return out
}

// mergeSnapshots unions the per-transport snapshots by device id. The
// transport that produced the triggering update is applied last so its
// observations win ties.
func mergeSnapshots(transports []ports.Transport, latest map[int][]domain.Device, winner int) []domain.Device {
	var order []string
	byID := make(map[string]domain.Device)

	apply := func(devs []domain.Device) {
		for _, d := range devs {
			if d.Validate() != nil {
				continue
			}
			if _, seen := byID[d.ID]; !seen {
				order = append(order, d.ID)
			}
			byID[d.ID] = d
		}
	}

	for i := range transports {
		if i == winner {
			continue
		}
		apply(latest[i])
	}
	apply(latest[winner])

	merged := make([]domain.Device, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	return merged
}

// ConnectToDevice routes the device to its transport after checking
// capability preconditions. A different connected device is torn down
// first, best-effort.
func (m *Manager) ConnectToDevice(ctx context.Context, dev domain.Device) error {
	if err := dev.Validate(); err != nil {
		return err
	}
	if err := m.checkCapabilities(dev); err != nil {
		return err
	}

	t := m.transportFor(dev)
	if t == nil {
		return fmt.Errorf("no connector for %s device %s: %w", dev.Kind, dev.ID, domain.ErrIncompatibleTransport)
	}

	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected != nil && m.connected.ID != dev.ID {
		// Best-effort teardown; a stuck old link must not block the new
		// connection.
		if err := m.disconnectLocked(ctx); err != nil {
			m.obs.LogError("previous_disconnect_failed", err)
		}
	}

	m.status.Set(domain.StatusConnecting)
	if err := t.Connect(ctx, dev); err != nil {
		m.status.Set(domain.StatusError)
		return err
	}

	d := dev
	m.connected = &d
	m.active = t
	m.forwardStatusLocked(t)
	m.obs.LogInfo("device_connected",
		ports.Field{Key: "device", Value: dev.ID},
		ports.Field{Key: "transport", Value: string(dev.Kind)})
	return nil
}

// forwardStatusLocked mirrors the active transport's status stream into the
// manager's logical status until the next connect/disconnect.
func (m *Manager) forwardStatusLocked(t ports.Transport) {
	if m.statusForward != nil {
		m.statusForward()
	}
	fwdCtx, cancel := context.WithCancel(context.Background())
	m.statusForward = cancel

	ch, unsubscribe := t.Status().Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-fwdCtx.Done():
				return
			case st, ok := <-ch:
				if !ok {
					return
				}
				m.status.Set(st)
			}
		}
	}()
}

func (m *Manager) checkCapabilities(dev domain.Device) error {
	switch dev.Kind {
	case domain.TransportWireless:
		if !m.caps.RadioSupported() {
			return fmt.Errorf("wireless radio not supported on this host: %w", domain.ErrCapabilityUnavailable)
		}
		if !m.caps.RadioEnabled() {
			return fmt.Errorf("wireless radio is disabled: %w", domain.ErrCapabilityUnavailable)
		}
	case domain.TransportSocket:
		if !m.caps.NetworkAllowed() {
			return fmt.Errorf("network permission missing: %w", domain.ErrCapabilityUnavailable)
		}
	}
	return nil
}

func (m *Manager) transportFor(dev domain.Device) ports.Transport {
	for _, t := range m.transports {
		if t.IsCompatible(dev) {
			return t
		}
	}
	return nil
}

// DisconnectFromDevice tears down the active connection. Idempotent.
func (m *Manager) DisconnectFromDevice(ctx context.Context) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectLocked(ctx)
}

func (m *Manager) disconnectLocked(ctx context.Context) error {
	if m.statusForward != nil {
		m.statusForward()
		m.statusForward = nil
	}

	var err error
	if m.active != nil {
		err = m.active.Disconnect(ctx)
	}
	m.connected = nil
	m.active = nil
	m.status.Set(domain.StatusDisconnected)
	return err
}

// ConnectedDevice returns a copy of the currently connected device, or nil.
func (m *Manager) ConnectedDevice() *domain.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected == nil {
		return nil
	}
	d := *m.connected
	return &d
}

// SignalStrength reports the connected device's signal quality; nil when
// nothing is connected.
func (m *Manager) SignalStrength() *int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected == nil {
		return nil
	}
	q := m.connected.SignalQuality
	return &q
}

// Status returns the manager's current logical connection status.
func (m *Manager) Status() domain.ConnectionStatus {
	return m.status.Get()
}

// StatusWatch exposes the logical status stream for observers.
func (m *Manager) StatusWatch() *watch.Value[domain.ConnectionStatus] {
	return m.status
}

// RefreshConnection probes the connected device and re-establishes the
// link when it is reachable but faulted.
func (m *Manager) RefreshConnection(ctx context.Context) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.mu.Lock()
	dev := m.connected
	t := m.active
	m.mu.Unlock()

	if dev == nil || t == nil {
		return domain.ErrNoActiveConnection
	}
	if !t.Reachable(ctx, *dev) {
		return fmt.Errorf("refresh %s: %w", dev.ID, domain.ErrDeviceNotReachable)
	}

	switch t.Status().Get() {
	case domain.StatusError, domain.StatusDisconnected:
		return t.Connect(ctx, *dev)
	default:
		return nil
	}
}

// IsDeviceReachable runs the transport-specific liveness probe. Errors are
// reported as false, never propagated.
func (m *Manager) IsDeviceReachable(ctx context.Context, dev domain.Device) bool {
	t := m.transportFor(dev)
	if t == nil {
		return false
	}
	return t.Reachable(ctx, dev)
}

// AuthenticateDevice sends the authentication directive over the active
// connection. An empty token uses the default.
func (m *Manager) AuthenticateDevice(ctx context.Context, dev domain.Device, token string) error {
	m.mu.Lock()
	connected := m.connected
	t := m.active
	m.mu.Unlock()

	if connected == nil || t == nil {
		return domain.ErrNoActiveConnection
	}
	if token == "" {
		token = DefaultAuthToken
	}
	return t.SendCommand(ctx, "AUTH:"+token)
}

// StartStreaming begins streaming from the active connection.
func (m *Manager) StartStreaming(ctx context.Context) (<-chan domain.Reading, error) {
	m.mu.Lock()
	t := m.active
	m.mu.Unlock()
	if t == nil {
		return nil, domain.ErrNoActiveConnection
	}
	return t.StartStreaming(ctx)
}

// StopStreaming stops an in-progress stream.
func (m *Manager) StopStreaming(ctx context.Context) error {
	m.mu.Lock()
	t := m.active
	m.mu.Unlock()
	if t == nil {
		return domain.ErrNoActiveConnection
	}
	return t.StopStreaming(ctx)
}
