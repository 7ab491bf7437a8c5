package wireless

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avetra/sensorlink/internal/domain"
)

// fakeBackend is an in-memory radio stack driven by the test.
type fakeBackend struct {
	mu           sync.Mutex
	supported    bool
	enabled      bool
	advCh        chan Advertisement
	connectErr   error
	connectDelay time.Duration
	connected    map[string]bool
	notify       func([]byte)
	writes       []string
	subscribed   bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		supported: true,
		enabled:   true,
		advCh:     make(chan Advertisement, 16),
		connected: make(map[string]bool),
	}
}

func (b *fakeBackend) Supported() bool { b.mu.Lock(); defer b.mu.Unlock(); return b.supported }
func (b *fakeBackend) Enabled() bool   { b.mu.Lock(); defer b.mu.Unlock(); return b.enabled }

func (b *fakeBackend) Scan(ctx context.Context, found func(Advertisement)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case adv, ok := <-b.advCh:
			if !ok {
				return nil
			}
			found(adv)
		}
	}
}

func (b *fakeBackend) Connect(ctx context.Context, address string) error {
	if b.connectDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.connectDelay):
		}
	}
	if b.connectErr != nil {
		return b.connectErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected[address] = true
	return nil
}

func (b *fakeBackend) Disconnect(address string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.connected, address)
	return nil
}

func (b *fakeBackend) Subscribe(address, serviceUUID, charUUID string, notify func([]byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notify = notify
	b.subscribed = true
	return nil
}

func (b *fakeBackend) Unsubscribe(address, serviceUUID, charUUID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notify = nil
	b.subscribed = false
	return nil
}

func (b *fakeBackend) Write(address, serviceUUID, charUUID string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, string(data))
	return nil
}

func (b *fakeBackend) pushNotification(payload string) {
	b.mu.Lock()
	notify := b.notify
	b.mu.Unlock()
	if notify != nil {
		notify([]byte(payload))
	}
}

func (b *fakeBackend) wroteDirective(directive string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.writes {
		if w == directive {
			return true
		}
	}
	return false
}

func testConfig() Config {
	return Config{
		ConnectTimeout: 200 * time.Millisecond,
		ProbeWindow:    150 * time.Millisecond,
		MinRSSIDelta:   8,
	}
}

func wirelessDevice() domain.Device {
	return domain.Device{ID: "C4:D3:01:02:03:04", Name: "TasteProbe", Kind: domain.TransportWireless}
}

func waitSnapshot(t *testing.T, ch <-chan []domain.Device) []domain.Device {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("scan channel closed early")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatalf("no scan snapshot")
		return nil
	}
}

func TestScanSnapshotsOnNewDeviceAndChanges(t *testing.T) {
	backend := newFakeBackend()
	c := NewConnector(testConfig(), backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, err := c.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	backend.advCh <- Advertisement{Address: "c4:d3:01:02:03:04", Name: "Bench Probe", RSSI: -60}
	snap := waitSnapshot(t, snapshots)
	if len(snap) != 1 || snap[0].ID != "C4:D3:01:02:03:04" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap[0].Name != "Bench Probe" || snap[0].SignalQuality != -60 {
		t.Fatalf("unexpected device: %+v", snap[0])
	}

	// Small RSSI jitter is not an update; crossing the delta is.
	backend.advCh <- Advertisement{Address: "C4:D3:01:02:03:04", Name: "Bench Probe", RSSI: -63}
	backend.advCh <- Advertisement{Address: "C4:D3:01:02:03:04", Name: "Bench Probe", RSSI: -75}
	snap = waitSnapshot(t, snapshots)
	if snap[0].SignalQuality != -75 {
		t.Fatalf("expected the -75 update, got %+v", snap[0])
	}

	// A second device extends the snapshot, sorted by address.
	backend.advCh <- Advertisement{Address: "A8:10:00:00:00:01", RSSI: -50}
	snap = waitSnapshot(t, snapshots)
	if len(snap) != 2 || snap[0].ID != "A8:10:00:00:00:01" || snap[1].ID != "C4:D3:01:02:03:04" {
		t.Fatalf("unexpected merged snapshot: %+v", snap)
	}
}

func TestScanClosedWhenRadioUnavailable(t *testing.T) {
	backend := newFakeBackend()
	backend.enabled = false
	c := NewConnector(testConfig(), backend, nil)

	snapshots, err := c.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, ok := <-snapshots; ok {
		t.Fatalf("expected a closed channel when the radio is off")
	}
}

func TestConnectTimeout(t *testing.T) {
	backend := newFakeBackend()
	backend.connectDelay = time.Second
	c := NewConnector(testConfig(), backend, nil)

	err := c.Connect(context.Background(), wirelessDevice())
	if !errors.Is(err, domain.ErrConnectionTimeout) {
		t.Fatalf("expected ErrConnectionTimeout, got %v", err)
	}
	if got := c.Status().Get(); got != domain.StatusError {
		t.Fatalf("status = %v, want error", got)
	}
}

func TestConnectRejected(t *testing.T) {
	backend := newFakeBackend()
	backend.connectErr = errors.New("pairing refused")
	c := NewConnector(testConfig(), backend, nil)

	err := c.Connect(context.Background(), wirelessDevice())
	if !errors.Is(err, domain.ErrConnectionRejected) {
		t.Fatalf("expected ErrConnectionRejected, got %v", err)
	}
}

func TestConnectRejectsIncompatibleDevice(t *testing.T) {
	backend := newFakeBackend()
	c := NewConnector(testConfig(), backend, nil)

	socketDev := domain.Device{ID: "10.0.0.4:9000", Kind: domain.TransportSocket}
	err := c.Connect(context.Background(), socketDev)
	if !errors.Is(err, domain.ErrIncompatibleTransport) {
		t.Fatalf("expected ErrIncompatibleTransport, got %v", err)
	}
}

func TestStreamingRoundTrip(t *testing.T) {
	backend := newFakeBackend()
	c := NewConnector(testConfig(), backend, nil)

	if err := c.Connect(context.Background(), wirelessDevice()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	stream, err := c.StartStreaming(context.Background())
	if err != nil {
		t.Fatalf("start streaming: %v", err)
	}
	if !backend.wroteDirective(DirectiveStartStream) {
		t.Fatalf("start directive was not written")
	}
	if got := c.Status().Get(); got != domain.StatusStreaming {
		t.Fatalf("status = %v, want streaming", got)
	}

	backend.pushNotification("DATA|ts=1714060800000|ph=6.7|temp=24.8")
	select {
	case r := <-stream:
		if r.PH != 6.7 || r.Temperature != 24.8 {
			t.Fatalf("unexpected reading: %+v", r)
		}
		if r.DeviceID != wirelessDevice().ID {
			t.Fatalf("device id = %q", r.DeviceID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no reading delivered")
	}

	// A garbled payload is dropped, not fatal.
	backend.pushNotification("garbage")
	backend.pushNotification("DATA|ph=7.0")
	select {
	case r := <-stream:
		if r.PH != 7.0 {
			t.Fatalf("unexpected reading after garbage: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not survive a garbled payload")
	}

	if err := c.StopStreaming(context.Background()); err != nil {
		t.Fatalf("stop streaming: %v", err)
	}
	if !backend.wroteDirective(DirectiveStopStream) {
		t.Fatalf("stop directive was not written")
	}
	backend.mu.Lock()
	stillSubscribed := backend.subscribed
	backend.mu.Unlock()
	if stillSubscribed {
		t.Fatalf("notifications still enabled after stop")
	}
	if got := c.Status().Get(); got != domain.StatusConnected {
		t.Fatalf("status after stop = %v, want connected", got)
	}

	if _, ok := <-stream; ok {
		t.Fatalf("stream channel should be closed after stop")
	}
}

func TestLateNotificationAfterStopIsDropped(t *testing.T) {
	backend := newFakeBackend()
	c := NewConnector(testConfig(), backend, nil)

	if err := c.Connect(context.Background(), wirelessDevice()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	stream, err := c.StartStreaming(context.Background())
	if err != nil {
		t.Fatalf("start streaming: %v", err)
	}

	backend.mu.Lock()
	notify := backend.notify
	backend.mu.Unlock()
	if notify == nil {
		t.Fatalf("backend never subscribed")
	}

	if err := c.StopStreaming(context.Background()); err != nil {
		t.Fatalf("stop streaming: %v", err)
	}

	// A callback still in flight when the stop lands must be dropped, not
	// delivered into the closed channel.
	notify([]byte("DATA|ph=6.4"))

	if _, ok := <-stream; ok {
		t.Fatalf("late notification leaked into the stopped stream")
	}
	if got := c.Status().Get(); got != domain.StatusConnected {
		t.Fatalf("status after stop = %v, want connected", got)
	}
}

func TestStreamingWithoutConnection(t *testing.T) {
	backend := newFakeBackend()
	c := NewConnector(testConfig(), backend, nil)

	stream, err := c.StartStreaming(context.Background())
	if err != nil {
		t.Fatalf("start streaming: %v", err)
	}
	if _, ok := <-stream; ok {
		t.Fatalf("expected a closed channel when not connected")
	}
}

func TestSendCommandRequiresConnection(t *testing.T) {
	backend := newFakeBackend()
	c := NewConnector(testConfig(), backend, nil)

	err := c.SendCommand(context.Background(), DirectiveAuthPrefix+"token")
	if !errors.Is(err, domain.ErrNoActiveConnection) {
		t.Fatalf("expected ErrNoActiveConnection, got %v", err)
	}
}

func TestReachableSeesAdvertisingDevice(t *testing.T) {
	backend := newFakeBackend()
	c := NewConnector(testConfig(), backend, nil)

	go func() {
		backend.advCh <- Advertisement{Address: "c4:d3:01:02:03:04", RSSI: -58}
	}()
	if !c.Reachable(context.Background(), wirelessDevice()) {
		t.Fatalf("advertising device should be reachable")
	}
}

func TestReachableTimesOutForSilentDevice(t *testing.T) {
	backend := newFakeBackend()
	c := NewConnector(testConfig(), backend, nil)

	if c.Reachable(context.Background(), wirelessDevice()) {
		t.Fatalf("silent device should be unreachable")
	}
}

func TestDisconnectReleasesLink(t *testing.T) {
	backend := newFakeBackend()
	c := NewConnector(testConfig(), backend, nil)

	if err := c.Connect(context.Background(), wirelessDevice()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.connected) != 0 {
		t.Fatalf("backend link not released: %v", backend.connected)
	}
}
