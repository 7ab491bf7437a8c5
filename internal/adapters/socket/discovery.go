package socket

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/ports"
)

const cmdDiscover = "DISCOVER"

// Scan polls the configured discovery sockets and emits an updated device
// snapshot whenever a new or changed device is observed. The sequence is
// infinite and restartable; cancelling ctx closes the channel and releases
// the poller. Probe failures are silent here so a dead discovery socket
// never suppresses the other transport's results.
func (c *Connector) Scan(ctx context.Context) (<-chan []domain.Device, error) {
	out := make(chan []domain.Device, 4)

	go func() {
		defer close(out)

		ticker := time.NewTicker(c.cfg.DiscoveryInterval)
		defer ticker.Stop()

		var last []domain.Device
		for {
			devices := c.discoverOnce(ctx)
			if devices != nil && !sameDevices(last, devices) {
				last = devices
				select {
				case <-ctx.Done():
					return
				case out <- devices:
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out, nil
}

func (c *Connector) discoverOnce(ctx context.Context) []domain.Device {
	var found []domain.Device
	for _, addr := range c.cfg.DiscoveryAddrs {
		dev, err := c.queryIdentity(ctx, addr)
		if err != nil {
			c.obs.LogError("socket_discovery_probe_failed", err, ports.Field{Key: "addr", Value: addr})
			continue
		}
		if err := dev.Validate(); err != nil {
			c.obs.LogError("socket_discovery_invalid_device", err)
			continue
		}
		found = append(found, dev)
	}
	return found
}

func (c *Connector) queryIdentity(ctx context.Context, addr string) (domain.Device, error) {
	dialer := net.Dialer{Timeout: c.cfg.ProbeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return domain.Device{}, err
	}
	defer conn.Close()

	if err := writeLine(conn, c.cfg.ProbeTimeout, cmdDiscover); err != nil {
		return domain.Device{}, err
	}
	line, err := readLine(conn, bufio.NewReader(conn), c.cfg.ProbeTimeout)
	if err != nil {
		return domain.Device{}, err
	}
	return ParseIdentity(line)
}

// ParseIdentity decodes the pipe-delimited identity record a discovery
// socket answers with: kind|name|address.
func ParseIdentity(line string) (domain.Device, error) {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) != 3 {
		return domain.Device{}, fmt.Errorf("malformed identity record %q", line)
	}
	kind := domain.TransportKind(parts[0])
	if kind != domain.TransportSocket && kind != domain.TransportWireless {
		return domain.Device{}, fmt.Errorf("identity record has unknown kind %q", parts[0])
	}
	return domain.Device{
		ID:   parts[2],
		Name: parts[1],
		Kind: kind,
	}, nil
}

func sameDevices(a, b []domain.Device) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
