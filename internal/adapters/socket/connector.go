// Package socket implements the local-network-socket transport: a
// line-oriented text protocol over TCP. The client sends one command per
// line (CONNECT, PING, START_STREAM, STOP_STREAM, DISCONNECT); the device
// replies CONNECTED/PONG/OK/UNKNOWN_COMMAND and, while streaming, pushes
// one reading frame per line.
package socket

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/parser"
	"github.com/avetra/sensorlink/internal/ports"
	"github.com/avetra/sensorlink/internal/watch"
)

const (
	cmdConnect     = "CONNECT"
	cmdPing        = "PING"
	cmdStartStream = "START_STREAM"
	cmdStopStream  = "STOP_STREAM"
	cmdDisconnect  = "DISCONNECT"

	replyConnected = "CONNECTED"
	replyPong      = "PONG"
)

// Config carries the socket transport's policy knobs.
type Config struct {
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	DiscoveryAddrs    []string      `yaml:"discovery_addrs"`
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`
}

func (c *Config) ApplyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = 2 * time.Second
	}
}

// Connector owns at most one TCP link to one sensor device.
type Connector struct {
	cfg    Config
	obs    ports.Observability
	status *watch.Value[domain.ConnectionStatus]

	mu           sync.Mutex
	conn         net.Conn
	reader       *bufio.Reader
	dev          *domain.Device
	streamCancel context.CancelFunc
	streamWG     sync.WaitGroup
}

func NewConnector(cfg Config, obs ports.Observability) *Connector {
	cfg.ApplyDefaults()
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Connector{
		cfg:    cfg,
		obs:    obs,
		status: watch.NewValue(domain.StatusDisconnected),
	}
}

func (c *Connector) Kind() domain.TransportKind { return domain.TransportSocket }

func (c *Connector) IsCompatible(dev domain.Device) bool {
	return dev.Kind == domain.TransportSocket
}

func (c *Connector) Status() *watch.Value[domain.ConnectionStatus] { return c.status }

// Connect dials the device address and performs the CONNECT handshake.
func (c *Connector) Connect(ctx context.Context, dev domain.Device) error {
	if !c.IsCompatible(dev) {
		return fmt.Errorf("socket connector cannot serve %s device %s: %w",
			dev.Kind, dev.ID, domain.ErrIncompatibleTransport)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.teardownLocked(ctx)
	}

	c.status.Set(domain.StatusConnecting)

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", dev.ID)
	if err != nil {
		c.status.Set(domain.StatusError)
		return classifyDialError(dev.ID, err)
	}

	reader := bufio.NewReader(conn)
	if err := writeLine(conn, c.cfg.WriteTimeout, cmdConnect); err != nil {
		conn.Close()
		c.status.Set(domain.StatusError)
		return fmt.Errorf("handshake with %s: %w", dev.ID, domain.ErrConnectionRejected)
	}
	reply, err := readLine(conn, reader, c.cfg.DialTimeout)
	if err != nil || reply != replyConnected {
		conn.Close()
		c.status.Set(domain.StatusError)
		return fmt.Errorf("device %s refused handshake (reply %q): %w", dev.ID, reply, domain.ErrConnectionRejected)
	}

	d := dev
	c.conn = conn
	c.reader = reader
	c.dev = &d
	c.status.Set(domain.StatusConnected)
	c.obs.LogInfo("socket_connected", ports.Field{Key: "device", Value: dev.ID})
	return nil
}

// Disconnect is idempotent. Teardown errors are reported but local state is
// reset regardless, so the connector can never get stuck half-closed.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardownLocked(ctx)
}

func (c *Connector) teardownLocked(_ context.Context) error {
	if c.conn == nil {
		c.status.Set(domain.StatusDisconnected)
		return nil
	}

	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}

	var errs []error
	if err := writeLine(c.conn, c.cfg.WriteTimeout, cmdDisconnect); err != nil {
		errs = append(errs, err)
	}
	if err := c.conn.Close(); err != nil {
		errs = append(errs, err)
	}

	c.mu.Unlock()
	c.streamWG.Wait()
	c.mu.Lock()

	c.conn = nil
	c.reader = nil
	c.dev = nil
	c.status.Set(domain.StatusDisconnected)
	return errors.Join(errs...)
}

// StartStreaming sends START_STREAM and returns a channel of parsed
// readings. From any status other than connected it returns a closed
// channel: streaming is optional and must not fail connection use.
func (c *Connector) StartStreaming(ctx context.Context) (<-chan domain.Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.status.Get() != domain.StatusConnected {
		ch := make(chan domain.Reading)
		close(ch)
		return ch, nil
	}

	if err := writeLine(c.conn, c.cfg.WriteTimeout, cmdStartStream); err != nil {
		c.obs.LogError("socket_start_stream_failed", err)
		ch := make(chan domain.Reading)
		close(ch)
		return ch, nil
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.streamCancel = cancel
	c.status.Set(domain.StatusStreaming)

	out := make(chan domain.Reading, 64)
	conn, reader, dev := c.conn, c.reader, *c.dev

	c.streamWG.Add(1)
	go c.readFrames(streamCtx, conn, reader, dev, out)
	return out, nil
}

func (c *Connector) readFrames(ctx context.Context, conn net.Conn, reader *bufio.Reader, dev domain.Device, out chan<- domain.Reading) {
	defer c.streamWG.Done()
	defer close(out)

	// Unblock the pending read when the stream is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			c.endStream(ctx, err)
			return
		}
		if !parser.IsFrame(line) {
			continue
		}
		reading, err := parser.ParseFrame(line)
		if err != nil {
			c.obs.IncCounter("sensorlink_frames_dropped_total", 1)
			c.obs.LogError("socket_frame_invalid", err)
			continue
		}
		if reading.DeviceID == "" {
			reading.DeviceID = dev.ID
		}
		if reading.Timestamp.IsZero() {
			reading.Timestamp = time.Now().UTC()
		}

		select {
		case <-ctx.Done():
			c.endStream(ctx, nil)
			return
		case out <- reading:
			c.obs.IncCounter("sensorlink_readings_received_total", 1)
		}
	}
}

// endStream restores the connector state after the frame loop exits,
// whether by cancellation or by a transport fault.
func (c *Connector) endStream(ctx context.Context, readErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Sample before cancelling our own stream context, otherwise a
	// transport fault is indistinguishable from a requested stop.
	stopped := ctx.Err() != nil

	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
	if c.conn == nil {
		return
	}

	c.conn.SetReadDeadline(time.Time{})
	if stopped {
		// Consumer stopped the stream; the link itself is still good.
		_ = writeLine(c.conn, c.cfg.WriteTimeout, cmdStopStream)
		c.status.Set(domain.StatusConnected)
		return
	}
	if readErr != nil {
		c.obs.LogError("socket_stream_lost", readErr)
		c.status.Set(domain.StatusError)
	}
}

// StopStreaming sends the stop directive and returns to connected.
func (c *Connector) StopStreaming(ctx context.Context) error {
	c.mu.Lock()
	if c.conn == nil {
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

// SendCommand writes one raw directive line.
func (c *Connector) SendCommand(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return domain.ErrNoActiveConnection
	}
	return writeLine(c.conn, c.cfg.WriteTimeout, cmd)
}

// Reachable probes the device with a dedicated PING dial, independent of
// the established session. Any network error reports false.
func (c *Connector) Reachable(ctx context.Context, dev domain.Device) bool {
	if !c.IsCompatible(dev) {
		return false
	}
	dialer := net.Dialer{Timeout: c.cfg.ProbeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", dev.ID)
	if err != nil {
		return false
	}
	defer conn.Close()

	if err := writeLine(conn, c.cfg.ProbeTimeout, cmdPing); err != nil {
		return false
	}
	reply, err := readLine(conn, bufio.NewReader(conn), c.cfg.ProbeTimeout)
	return err == nil && reply == replyPong
}

func classifyDialError(addr string, err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("dial %s: %w", addr, domain.ErrConnectionTimeout)
	}
	return fmt.Errorf("dial %s: %v: %w", addr, err, domain.ErrConnectionRejected)
}

func writeLine(conn net.Conn, timeout time.Duration, line string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(conn, "%s\n", line)
	return err
}

func readLine(conn net.Conn, reader *bufio.Reader, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	defer conn.SetReadDeadline(time.Time{})
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return trimEOL(line), nil
}

func trimEOL(line string) string {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

var _ ports.Transport = (*Connector)(nil)
