package domain

// ConnectionStatus is the raw link state of a single transport connection.
// Exactly one value is owned by the connection manager at a time.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusStreaming
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusStreaming:
		return "streaming"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Health is the derived liveness classification of the active connection.
// It has an independent lifecycle from ConnectionStatus and is owned by the
// health monitor.
type Health int

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthUnhealthy
	HealthConnecting
	HealthReconnecting
	HealthDisconnected
	HealthError
	HealthFailed
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthConnecting:
		return "connecting"
	case HealthReconnecting:
		return "reconnecting"
	case HealthDisconnected:
		return "disconnected"
	case HealthError:
		return "error"
	case HealthFailed:
		return "failed"
	default:
		return "unknown"
	}
}
