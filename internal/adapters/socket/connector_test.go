package socket

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/ports"
)

// recordingObs captures error log keys for assertions.
type recordingObs struct {
	ports.NopObservability
	mu   sync.Mutex
	errs []string
}

func (o *recordingObs) LogError(msg string, err error, fields ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, msg)
}

func (o *recordingObs) sawError(msg string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, m := range o.errs {
		if m == msg {
			return true
		}
	}
	return false
}

// fakeDevice is a loopback TCP sensor speaking the line protocol.
type fakeDevice struct {
	ln       net.Listener
	identity string
	frames   []string

	mu         sync.Mutex
	rejectNext bool
	closeAfter int // close the connection after sending this many frames; 0 = keep open
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeDevice{ln: ln}
	f.identity = "socket|TasteProbe Bench|" + ln.Addr().String()
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeDevice) addr() string { return f.ln.Addr().String() }

func (f *fakeDevice) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeDevice) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "CONNECT":
			f.mu.Lock()
			reject := f.rejectNext
			f.rejectNext = false
			f.mu.Unlock()
			if reject {
				fmt.Fprintf(conn, "BUSY\n")
				return
			}
			fmt.Fprintf(conn, "CONNECTED\n")
		case "PING":
			fmt.Fprintf(conn, "PONG\n")
		case "DISCOVER":
			fmt.Fprintf(conn, "%s\n", f.identity)
			return
		case "START_STREAM":
			fmt.Fprintf(conn, "OK\n")
			f.mu.Lock()
			frames := f.frames
			closeAfter := f.closeAfter
			f.mu.Unlock()
			for i, frame := range frames {
				fmt.Fprintf(conn, "%s\n", frame)
				if closeAfter > 0 && i+1 >= closeAfter {
					return
				}
			}
		case "STOP_STREAM", "AUTH:sensorlink-default":
			fmt.Fprintf(conn, "OK\n")
		case "DISCONNECT":
			return
		default:
			fmt.Fprintf(conn, "UNKNOWN_COMMAND\n")
		}
	}
}

func testConfig() Config {
	return Config{
		DialTimeout:       2 * time.Second,
		ProbeTimeout:      time.Second,
		WriteTimeout:      time.Second,
		DiscoveryInterval: 20 * time.Millisecond,
	}
}

func socketDevice(addr string) domain.Device {
	return domain.Device{ID: addr, Name: "bench", Kind: domain.TransportSocket}
}

func TestConnectHandshake(t *testing.T) {
	dev := newFakeDevice(t)
	c := NewConnector(testConfig(), nil)

	if err := c.Connect(context.Background(), socketDevice(dev.addr())); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect(context.Background())

	if got := c.Status().Get(); got != domain.StatusConnected {
		t.Fatalf("status = %v, want connected", got)
	}
}

func TestConnectRejectsIncompatibleDeviceBeforeIO(t *testing.T) {
	c := NewConnector(testConfig(), nil)

	// The address is unreachable on purpose: an incompatible device must be
	// rejected before any dial is attempted.
	wireless := domain.Device{ID: "AA:BB:CC:DD:EE:FF", Kind: domain.TransportWireless}
	err := c.Connect(context.Background(), wireless)
	if !errors.Is(err, domain.ErrIncompatibleTransport) {
		t.Fatalf("expected ErrIncompatibleTransport, got %v", err)
	}
	if got := c.Status().Get(); got != domain.StatusDisconnected {
		t.Fatalf("status should stay disconnected, got %v", got)
	}
}

func TestConnectRefusedHandshake(t *testing.T) {
	dev := newFakeDevice(t)
	dev.mu.Lock()
	dev.rejectNext = true
	dev.mu.Unlock()

	c := NewConnector(testConfig(), nil)
	err := c.Connect(context.Background(), socketDevice(dev.addr()))
	if !errors.Is(err, domain.ErrConnectionRejected) {
		t.Fatalf("expected ErrConnectionRejected, got %v", err)
	}
	if got := c.Status().Get(); got != domain.StatusError {
		t.Fatalf("status = %v, want error", got)
	}
}

func TestConnectDeadAddressRejected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewConnector(testConfig(), nil)
	err = c.Connect(context.Background(), socketDevice(addr))
	if err == nil {
		t.Fatalf("expected error dialing a closed port")
	}
	if !errors.Is(err, domain.ErrConnectionRejected) && !errors.Is(err, domain.ErrConnectionTimeout) {
		t.Fatalf("expected a connection error sentinel, got %v", err)
	}
}

func TestStreamingDeliversParsedReadings(t *testing.T) {
	dev := newFakeDevice(t)
	dev.mu.Lock()
	dev.frames = []string{
		"DATA|ts=1714060800000|ph=6.9|tds=301",
		"OK", // control noise interleaved with frames must be skipped
		"DATA|ts=1714060801000|ph=7.1|tds=299",
	}
	dev.mu.Unlock()

	c := NewConnector(testConfig(), nil)
	if err := c.Connect(context.Background(), socketDevice(dev.addr())); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect(context.Background())

	stream, err := c.StartStreaming(context.Background())
	if err != nil {
		t.Fatalf("start streaming: %v", err)
	}
	if got := c.Status().Get(); got != domain.StatusStreaming {
		t.Fatalf("status = %v, want streaming", got)
	}

	var got []domain.Reading
	timeout := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case r := <-stream:
			got = append(got, r)
		case <-timeout:
			t.Fatalf("timed out with %d readings", len(got))
		}
	}

	if got[0].PH != 6.9 || got[1].PH != 7.1 {
		t.Fatalf("unexpected readings: %+v", got)
	}
	// The device omitted its id; the connector stamps the session device.
	if got[0].DeviceID != dev.addr() {
		t.Fatalf("device id = %q, want %q", got[0].DeviceID, dev.addr())
	}

	if err := c.StopStreaming(context.Background()); err != nil {
		t.Fatalf("stop streaming: %v", err)
	}
	if got := c.Status().Get(); got != domain.StatusConnected {
		t.Fatalf("status after stop = %v, want connected", got)
	}
}

func TestStreamingWithoutConnectionYieldsClosedChannel(t *testing.T) {
	c := NewConnector(testConfig(), nil)
	stream, err := c.StartStreaming(context.Background())
	if err != nil {
		t.Fatalf("start streaming: %v", err)
	}
	if _, ok := <-stream; ok {
		t.Fatalf("expected a closed channel when not connected")
	}
}

func TestStartStreamWriteFailureLoggedAndKeepsConnection(t *testing.T) {
	dev := newFakeDevice(t)
	obs := &recordingObs{}
	c := NewConnector(testConfig(), obs)

	if err := c.Connect(context.Background(), socketDevice(dev.addr())); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect(context.Background())

	// An expired write deadline makes the START_STREAM write fail without
	// touching the established link.
	c.mu.Lock()
	c.cfg.WriteTimeout = -time.Second
	c.mu.Unlock()

	stream, err := c.StartStreaming(context.Background())
	if err != nil {
		t.Fatalf("start streaming: %v", err)
	}
	if _, ok := <-stream; ok {
		t.Fatalf("expected a closed channel after a failed stream start")
	}
	if !obs.sawError("socket_start_stream_failed") {
		t.Fatalf("failed stream start was not logged")
	}
	if got := c.Status().Get(); got != domain.StatusConnected {
		t.Fatalf("status = %v, want connected", got)
	}
}

func TestStreamLossFlagsError(t *testing.T) {
	dev := newFakeDevice(t)
	dev.mu.Lock()
	dev.frames = []string{"DATA|ph=6.5"}
	dev.closeAfter = 1
	dev.mu.Unlock()

	c := NewConnector(testConfig(), nil)
	if err := c.Connect(context.Background(), socketDevice(dev.addr())); err != nil {
		t.Fatalf("connect: %v", err)
	}

	stream, err := c.StartStreaming(context.Background())
	if err != nil {
		t.Fatalf("start streaming: %v", err)
	}
	for range stream {
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Status().Get() != domain.StatusError {
		if time.Now().After(deadline) {
			t.Fatalf("status = %v, want error after stream loss", c.Status().Get())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSendCommandRequiresConnection(t *testing.T) {
	c := NewConnector(testConfig(), nil)
	err := c.SendCommand(context.Background(), "AUTH:x")
	if !errors.Is(err, domain.ErrNoActiveConnection) {
		t.Fatalf("expected ErrNoActiveConnection, got %v", err)
	}
}

func TestReachableProbe(t *testing.T) {
	dev := newFakeDevice(t)
	c := NewConnector(testConfig(), nil)

	if !c.Reachable(context.Background(), socketDevice(dev.addr())) {
		t.Fatalf("live device should be reachable")
	}

	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	deadAddr := ln.Addr().String()
	ln.Close()
	if c.Reachable(context.Background(), socketDevice(deadAddr)) {
		t.Fatalf("closed port should not be reachable")
	}

	wireless := domain.Device{ID: "AA:BB:CC:DD:EE:FF", Kind: domain.TransportWireless}
	if c.Reachable(context.Background(), wireless) {
		t.Fatalf("incompatible device should not be reachable over sockets")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	dev := newFakeDevice(t)
	c := NewConnector(testConfig(), nil)

	if err := c.Connect(context.Background(), socketDevice(dev.addr())); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("first disconnect: %v", err)
	}
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	if got := c.Status().Get(); got != domain.StatusDisconnected {
		t.Fatalf("status = %v, want disconnected", got)
	}
}
