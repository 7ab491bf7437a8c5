package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avetra/sensorlink/internal/domain"
)

type fakeConn struct {
	mu         sync.Mutex
	status     domain.ConnectionStatus
	dev        *domain.Device
	reachable  bool
	refreshErr error
	connectErr error
	refreshes  int
	connects   int
}

func (f *fakeConn) Status() domain.ConnectionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeConn) ConnectedDevice() *domain.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dev == nil {
		return nil
	}
	d := *f.dev
	return &d
}

func (f *fakeConn) RefreshConnection(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.status = domain.StatusConnected
	f.reachable = true
	return nil
}

func (f *fakeConn) ConnectToDevice(ctx context.Context, dev domain.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	d := dev
	f.dev = &d
	f.status = domain.StatusConnected
	f.reachable = true
	return nil
}

func (f *fakeConn) IsDeviceReachable(ctx context.Context, dev domain.Device) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachable
}

func (f *fakeConn) set(fn func(*fakeConn)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeConn) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeConn) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func fastConfig() Config {
	return Config{
		Interval:       20 * time.Millisecond,
		ConnectTimeout: 100 * time.Millisecond,
		Backoff:        5 * time.Millisecond,
		MaxAttempts:    2,
	}
}

func testDev() *domain.Device {
	return &domain.Device{ID: "AA:BB:CC:DD:EE:01", Kind: domain.TransportWireless}
}

func startMonitor(t *testing.T, m *Monitor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitHealth(t *testing.T, m *Monitor, want domain.Health) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for m.CurrentHealth() != want {
		if time.Now().After(deadline) {
			t.Fatalf("health = %v, want %v", m.CurrentHealth(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthyConnection(t *testing.T) {
	conn := &fakeConn{status: domain.StatusConnected, dev: testDev(), reachable: true}
	m := NewMonitor(fastConfig(), conn, nil)
	startMonitor(t, m)

	waitHealth(t, m, domain.HealthHealthy)
}

func TestUnreachableDeviceTriggersReconnection(t *testing.T) {
	conn := &fakeConn{status: domain.StatusConnected, dev: testDev(), reachable: false}
	m := NewMonitor(fastConfig(), conn, nil)
	startMonitor(t, m)

	// The refresh succeeds, so the monitor reports healthy without waiting
	// for the next periodic probe.
	waitHealth(t, m, domain.HealthHealthy)
	if conn.refreshCount() == 0 {
		t.Fatalf("no refresh was attempted")
	}
}

func TestBudgetExhaustionIsTerminal(t *testing.T) {
	boom := errors.New("link dead")
	conn := &fakeConn{
		status:     domain.StatusError,
		dev:        testDev(),
		refreshErr: boom,
		connectErr: boom,
	}
	m := NewMonitor(fastConfig(), conn, nil)
	startMonitor(t, m)

	waitHealth(t, m, domain.HealthFailed)

	// The retry budget bounds the reconnection passes.
	after := conn.refreshCount()
	if after == 0 || after > 2 {
		t.Fatalf("refresh attempts = %d, want 1..2", after)
	}

	// Failed is terminal: the periodic probe must not retry on its own.
	time.Sleep(100 * time.Millisecond)
	if got := conn.refreshCount(); got != after {
		t.Fatalf("monitor kept retrying after Failed: %d attempts", got)
	}
}

func TestTriggerReconnectionEscapesFailed(t *testing.T) {
	boom := errors.New("link dead")
	conn := &fakeConn{
		status:     domain.StatusError,
		dev:        testDev(),
		refreshErr: boom,
		connectErr: boom,
	}
	m := NewMonitor(fastConfig(), conn, nil)
	startMonitor(t, m)

	waitHealth(t, m, domain.HealthFailed)

	conn.set(func(f *fakeConn) {
		f.refreshErr = nil
		f.connectErr = nil
	})
	m.TriggerReconnection()
	waitHealth(t, m, domain.HealthHealthy)
}

func TestResetMonitoringClearsState(t *testing.T) {
	boom := errors.New("link dead")
	conn := &fakeConn{
		status:     domain.StatusError,
		dev:        testDev(),
		refreshErr: boom,
		connectErr: boom,
	}
	m := NewMonitor(fastConfig(), conn, nil)
	startMonitor(t, m)

	waitHealth(t, m, domain.HealthFailed)
	m.ResetMonitoring()

	if got := m.CurrentHealth(); got != domain.HealthUnknown {
		t.Fatalf("health after reset = %v, want unknown", got)
	}

	// The retry budget is restored: with the fault cleared the monitor
	// recovers on its own.
	conn.set(func(f *fakeConn) {
		f.refreshErr = nil
		f.connectErr = nil
	})
	waitHealth(t, m, domain.HealthHealthy)
}

func TestDisconnectedWithKnownDeviceReconnects(t *testing.T) {
	conn := &fakeConn{status: domain.StatusConnected, dev: testDev(), reachable: true}
	m := NewMonitor(fastConfig(), conn, nil)
	startMonitor(t, m)

	waitHealth(t, m, domain.HealthHealthy)

	// The device drops off entirely; the monitor remembers it and redials.
	conn.set(func(f *fakeConn) {
		f.status = domain.StatusDisconnected
		f.dev = nil
		f.reachable = false
		f.refreshErr = domain.ErrNoActiveConnection
	})

	// Health was already healthy before the drop, so wait for the redial
	// itself rather than for a health value.
	deadline := time.Now().Add(3 * time.Second)
	for conn.connectCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("monitor never redialed the remembered device")
		}
		time.Sleep(5 * time.Millisecond)
	}
	waitHealth(t, m, domain.HealthHealthy)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.dev == nil || conn.dev.ID != testDev().ID {
		t.Fatalf("reconnected to the wrong device: %+v", conn.dev)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Interval != 10*time.Second {
		t.Fatalf("interval default = %v", cfg.Interval)
	}
	if cfg.ConnectTimeout != 30*time.Second {
		t.Fatalf("connect timeout default = %v", cfg.ConnectTimeout)
	}
	if cfg.Backoff != 5*time.Second {
		t.Fatalf("backoff default = %v", cfg.Backoff)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("max attempts default = %d", cfg.MaxAttempts)
	}
}
