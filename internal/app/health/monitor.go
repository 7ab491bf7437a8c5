// Package health classifies the liveness of the active connection and
// drives autonomous reconnection with a bounded retry budget.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/ports"
	"github.com/avetra/sensorlink/internal/watch"
)

// Connection is the slice of the connection manager the monitor drives.
type Connection interface {
	Status() domain.ConnectionStatus
	ConnectedDevice() *domain.Device
	RefreshConnection(ctx context.Context) error
	ConnectToDevice(ctx context.Context, dev domain.Device) error
	IsDeviceReachable(ctx context.Context, dev domain.Device) bool
}

// Config carries the monitor's policy constants. They are policy, not
// architecture: every one of them is overridable.
type Config struct {
	Interval       time.Duration `yaml:"interval"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Backoff        time.Duration `yaml:"backoff"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

// Monitor samples the connection on a fixed interval and keeps the derived
// health value current. At most one reconnection task is in flight; a new
// trigger cancels and restarts it.
type Monitor struct {
	cfg    Config
	conn   Connection
	obs    ports.Observability
	health *watch.Value[domain.Health]

	mu            sync.Mutex
	attempts      int
	lastDevice    *domain.Device
	lastHealthyAt time.Time
	runCtx        context.Context
	reconCancel   context.CancelFunc
	reconDone     chan struct{}
}

func NewMonitor(cfg Config, conn Connection, obs ports.Observability) *Monitor {
	cfg.ApplyDefaults()
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Monitor{
		cfg:    cfg,
		conn:   conn,
		obs:    obs,
		health: watch.NewValue(domain.HealthUnknown),
	}
}

// Health exposes the broadcast health value.
func (m *Monitor) Health() *watch.Value[domain.Health] { return m.health }

// CurrentHealth returns the latest classification.
func (m *Monitor) CurrentHealth() domain.Health { return m.health.Get() }

// Start runs the periodic probe loop until ctx is cancelled. It blocks.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.cancelReconnection()
			return
		case <-ticker.C:
			m.evaluate(ctx)
		}
	}
}

// evaluate is one probe: sample status plus reachability, classify, and
// decide whether to kick reconnection.
func (m *Monitor) evaluate(ctx context.Context) {
	if m.health.Get() == domain.HealthFailed {
		// Terminal until TriggerReconnection or ResetMonitoring.
		return
	}

	status := m.conn.Status()
	dev := m.conn.ConnectedDevice()
	if dev != nil {
		m.mu.Lock()
		d := *dev
		m.lastDevice = &d
		m.mu.Unlock()
	}

	switch status {
	case domain.StatusConnected, domain.StatusStreaming:
		if dev != nil && m.conn.IsDeviceReachable(ctx, *dev) {
			m.markHealthy()
			return
		}
		m.health.Set(domain.HealthUnhealthy)
		m.startReconnection(ctx)

	case domain.StatusConnecting:
		m.mu.Lock()
		stuck := !m.lastHealthyAt.IsZero() && time.Since(m.lastHealthyAt) > m.cfg.ConnectTimeout ||
			m.lastHealthyAt.IsZero()
		m.mu.Unlock()
		if stuck {
			m.health.Set(domain.HealthUnhealthy)
			m.startReconnection(ctx)
			return
		}
		m.health.Set(domain.HealthConnecting)

	case domain.StatusDisconnected:
		m.mu.Lock()
		known := m.lastDevice != nil
		budget := m.attempts < m.cfg.MaxAttempts
		m.mu.Unlock()
		if known && budget {
			m.startReconnection(ctx)
			return
		}
		m.health.Set(domain.HealthDisconnected)

	case domain.StatusError:
		m.mu.Lock()
		budget := m.attempts < m.cfg.MaxAttempts
		m.mu.Unlock()
		if budget {
			m.startReconnection(ctx)
			return
		}
		m.health.Set(domain.HealthError)
	}
}

func (m *Monitor) markHealthy() {
	m.mu.Lock()
	m.attempts = 0
	m.lastHealthyAt = time.Now()
	m.mu.Unlock()
	m.cancelReconnection()
	m.health.Set(domain.HealthHealthy)
}

// TriggerReconnection is the operator override: it zeroes the retry
// counter and forces a fresh reconnection attempt, even from Failed.
func (m *Monitor) TriggerReconnection() {
	m.mu.Lock()
	m.attempts = 0
	ctx := m.runCtx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	m.startReconnection(ctx)
}

// ResetMonitoring clears counters and health back to unknown without
// stopping the probe timer.
func (m *Monitor) ResetMonitoring() {
	m.cancelReconnection()
	m.mu.Lock()
	m.attempts = 0
	m.lastHealthyAt = time.Time{}
	m.mu.Unlock()
	m.health.Set(domain.HealthUnknown)
}

// startReconnection launches the single reconnection task, cancelling any
// in-flight instance first.
func (m *Monitor) startReconnection(ctx context.Context) {
	m.cancelReconnection()

	m.mu.Lock()
	reconCtx, cancel := context.WithCancel(ctx)
	m.reconCancel = cancel
	done := make(chan struct{})
	m.reconDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.reconnect(reconCtx)
	}()
}

func (m *Monitor) cancelReconnection() {
	m.mu.Lock()
	cancel := m.reconCancel
	done := m.reconDone
	m.reconCancel = nil
	m.reconDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// reconnect is one pass of the reconnection procedure: consume one retry,
// back off, refresh, and fall back to a full connect.
func (m *Monitor) reconnect(ctx context.Context) {
	m.mu.Lock()
	if m.attempts >= m.cfg.MaxAttempts {
		m.mu.Unlock()
		m.health.Set(domain.HealthFailed)
		return
	}
	m.attempts++
	attempt := m.attempts
	dev := m.lastDevice
	m.mu.Unlock()

	m.health.Set(domain.HealthReconnecting)
	m.obs.IncCounter("sensorlink_reconnect_attempts_total", 1)
	m.obs.LogInfo("reconnect_attempt",
		ports.Field{Key: "attempt", Value: attempt},
		ports.Field{Key: "max", Value: m.cfg.MaxAttempts})

	select {
	case <-ctx.Done():
		return
	case <-time.After(m.cfg.Backoff):
	}

	if err := m.conn.RefreshConnection(ctx); err == nil {
		m.succeed()
		return
	} else if ctx.Err() != nil {
		return
	} else {
		m.obs.LogError("reconnect_refresh_failed", err)
	}

	if dev != nil {
		if err := m.conn.ConnectToDevice(ctx, *dev); err == nil {
			m.succeed()
			return
		} else if ctx.Err() != nil {
			return
		} else {
			m.obs.LogError("reconnect_connect_failed", err)
		}
	}

	m.mu.Lock()
	exhausted := m.attempts >= m.cfg.MaxAttempts
	m.mu.Unlock()
	if exhausted {
		m.health.Set(domain.HealthFailed)
		return
	}
	m.health.Set(domain.HealthUnhealthy)
}

// succeed resets the budget and reports healthy immediately rather than
// waiting for the next periodic probe.
func (m *Monitor) succeed() {
	m.mu.Lock()
	m.attempts = 0
	m.lastHealthyAt = time.Now()
	m.mu.Unlock()
	m.health.Set(domain.HealthHealthy)
}
