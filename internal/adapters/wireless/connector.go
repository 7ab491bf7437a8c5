package wireless

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/parser"
	"github.com/avetra/sensorlink/internal/ports"
	"github.com/avetra/sensorlink/internal/watch"
)

// Connector owns at most one wireless link to one sensor device.
type Connector struct {
	cfg     Config
	backend Backend
	obs     ports.Observability
	status  *watch.Value[domain.ConnectionStatus]

	mu           sync.Mutex
	dev          *domain.Device
	streamCancel context.CancelFunc
	streamWG     sync.WaitGroup
}

func NewConnector(cfg Config, backend Backend, obs ports.Observability) *Connector {
	cfg.ApplyDefaults()
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Connector{
		cfg:     cfg,
		backend: backend,
		obs:     obs,
		status:  watch.NewValue(domain.StatusDisconnected),
	}
}

func (c *Connector) Kind() domain.TransportKind { return domain.TransportWireless }

func (c *Connector) IsCompatible(dev domain.Device) bool {
	return dev.Kind == domain.TransportWireless
}

func (c *Connector) Status() *watch.Value[domain.ConnectionStatus] { return c.status }

// Scan watches advertisements and emits an updated snapshot whenever a
// device appears, renames itself, or moves enough for its signal to change
// meaningfully. The channel closes when ctx is cancelled or the radio is
// unavailable; errors stay local to this transport.
func (c *Connector) Scan(ctx context.Context) (<-chan []domain.Device, error) {
	out := make(chan []domain.Device, 4)

	if !c.backend.Supported() || !c.backend.Enabled() {
		c.obs.LogInfo("wireless_scan_unavailable")
		close(out)
		return out, nil
	}

	advCh := make(chan Advertisement, 32)
	go func() {
		err := c.backend.Scan(ctx, func(adv Advertisement) {
			select {
			case advCh <- adv:
			default:
				// Backend callbacks must never block; a dropped
				// advertisement reappears on the next beacon.
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.obs.LogError("wireless_scan_failed", err)
		}
		close(advCh)
	}()

	go func() {
		defer close(out)
		seen := make(map[string]domain.Device)
		for {
			select {
			case <-ctx.Done():
				return
			case adv, ok := <-advCh:
				if !ok {
					return
				}
				dev, changed := c.observe(seen, adv)
				if !changed {
					continue
				}
				seen[dev.ID] = dev
				select {
				case <-ctx.Done():
					return
				case out <- snapshotOf(seen):
				}
			}
		}
	}()

	return out, nil
}

func (c *Connector) observe(seen map[string]domain.Device, adv Advertisement) (domain.Device, bool) {
	dev := domain.Device{
		ID:            strings.ToUpper(adv.Address),
		Name:          resolveName(adv),
		Kind:          domain.TransportWireless,
		SignalQuality: adv.RSSI,
	}
	if err := dev.Validate(); err != nil {
		c.obs.LogError("wireless_scan_invalid_device", err)
		return dev, false
	}

	prev, ok := seen[dev.ID]
	if !ok {
		return dev, true
	}
	if prev.Name != dev.Name {
		return dev, true
	}
	if delta := prev.SignalQuality - dev.SignalQuality; delta >= c.cfg.MinRSSIDelta || -delta >= c.cfg.MinRSSIDelta {
		return dev, true
	}
	return dev, false
}

func snapshotOf(seen map[string]domain.Device) []domain.Device {
	list := make([]domain.Device, 0, len(seen))
	for _, dev := range seen {
		list = append(list, dev)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Connect establishes the GATT link within the configured timeout.
func (c *Connector) Connect(ctx context.Context, dev domain.Device) error {
	if !c.IsCompatible(dev) {
		return fmt.Errorf("wireless connector cannot serve %s device %s: %w",
			dev.Kind, dev.ID, domain.ErrIncompatibleTransport)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		c.teardownLocked()
	}

	c.status.Set(domain.StatusConnecting)

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := c.backend.Connect(connectCtx, dev.ID); err != nil {
		c.status.Set(domain.StatusError)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("connect %s: %w", dev.ID, domain.ErrConnectionTimeout)
		}
		return fmt.Errorf("connect %s: %v: %w", dev.ID, err, domain.ErrConnectionRejected)
	}

	d := dev
	c.dev = &d
	c.status.Set(domain.StatusConnected)
	c.obs.LogInfo("wireless_connected", ports.Field{Key: "device", Value: dev.ID})
	return nil
}

// Disconnect is idempotent; teardown errors are reported but state resets
// regardless.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardownLocked()
}

func (c *Connector) teardownLocked() error {
	if c.dev == nil {
		c.status.Set(domain.StatusDisconnected)
		return nil
	}

	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
	addr := c.dev.ID

	c.mu.Unlock()
	c.streamWG.Wait()
	c.mu.Lock()

	err := c.backend.Disconnect(addr)
	c.dev = nil
	c.status.Set(domain.StatusDisconnected)
	return err
}

// StartStreaming enables notifications and sends the start directive. From
// any status other than connected it returns a closed channel and no error.
func (c *Connector) StartStreaming(ctx context.Context) (<-chan domain.Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil || c.status.Get() != domain.StatusConnected {
		ch := make(chan domain.Reading)
		close(ch)
		return ch, nil
	}
	addr := c.dev.ID
	dev := *c.dev

	out := make(chan domain.Reading, 64)
	streamCtx, cancel := context.WithCancel(ctx)

	// Unsubscribe does not wait for in-flight notification callbacks, so
	// delivery and close share a mutex: a notification that lands after the
	// stop must find the closed flag, never the closed channel.
	var deliverMu sync.Mutex
	stopped := false
	closeOut := func() {
		deliverMu.Lock()
		defer deliverMu.Unlock()
		if !stopped {
			stopped = true
			close(out)
		}
	}

	notify := func(payload []byte) {
		reading, err := parser.ParseFrame(string(payload))
		if err != nil {
			c.obs.IncCounter("sensorlink_frames_dropped_total", 1)
			return
		}
		if reading.DeviceID == "" {
			reading.DeviceID = dev.ID
		}
		if reading.Timestamp.IsZero() {
			reading.Timestamp = time.Now().UTC()
		}
		deliverMu.Lock()
		defer deliverMu.Unlock()
		if stopped {
			return
		}
		select {
		case <-streamCtx.Done():
		case out <- reading:
			c.obs.IncCounter("sensorlink_readings_received_total", 1)
		}
	}

	if err := c.backend.Subscribe(addr, ServiceUUID, NotifyCharUUID, notify); err != nil {
		cancel()
		closeOut()
		c.obs.LogError("wireless_subscribe_failed", err)
		return out, nil
	}
	if err := c.backend.Write(addr, ServiceUUID, WriteCharUUID, []byte(DirectiveStartStream)); err != nil {
		_ = c.backend.Unsubscribe(addr, ServiceUUID, NotifyCharUUID)
		cancel()
		closeOut()
		c.obs.LogError("wireless_start_stream_failed", err)
		return out, nil
	}

	c.streamCancel = cancel
	c.status.Set(domain.StatusStreaming)

	c.streamWG.Add(1)
	go func() {
		defer c.streamWG.Done()
		<-streamCtx.Done()
		_ = c.backend.Unsubscribe(addr, ServiceUUID, NotifyCharUUID)
		_ = c.backend.Write(addr, ServiceUUID, WriteCharUUID, []byte(DirectiveStopStream))
		closeOut()

		c.mu.Lock()
		if c.dev != nil && c.dev.ID == addr && c.status.Get() == domain.StatusStreaming {
			c.status.Set(domain.StatusConnected)
		}
		c.mu.Unlock()
	}()

	return out, nil
}

// StopStreaming cancels the stream and returns to connected.
func (c *Connector) StopStreaming(ctx context.Context) error {
	c.mu.Lock()
	if c.dev == nil {
		c.mu.Unlock()
		return domain.ErrNoActiveConnection
	}
	cancel := c.streamCancel
	c.streamCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.streamWG.Wait()
	return nil
}

// SendCommand writes one directive to the write characteristic.
func (c *Connector) SendCommand(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return domain.ErrNoActiveConnection
	}
	return c.backend.Write(c.dev.ID, ServiceUUID, WriteCharUUID, []byte(cmd))
}

// Reachable listens for the device's advertisement within the probe window.
// A device that is not advertising is reported unreachable; radio errors
// also report false.
func (c *Connector) Reachable(ctx context.Context, dev domain.Device) bool {
	if !c.IsCompatible(dev) {
		return false
	}
	if !c.backend.Supported() || !c.backend.Enabled() {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeWindow)
	defer cancel()

	found := make(chan struct{}, 1)
	go func() {
		_ = c.backend.Scan(probeCtx, func(adv Advertisement) {
			if strings.EqualFold(adv.Address, dev.ID) {
				select {
				case found <- struct{}{}:
				default:
				}
				cancel()
			}
		})
	}()

	select {
	case <-found:
		return true
	case <-probeCtx.Done():
		select {
		case <-found:
			return true
		default:
			return false
		}
	}
}

var _ ports.Transport = (*Connector)(nil)
