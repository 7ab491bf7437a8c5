package ports

// Observability is how the core reports logs and metrics without binding to
// a telemetry backend.
type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	SetGauge(name string, v float64)
	ObserveLatency(name string, seconds float64)
}

// Field is a structured log field.
type Field struct {
	Key   string
	Value any
}

// NopObservability discards everything. Useful as a default and in tests.
type NopObservability struct{}

func (NopObservability) LogInfo(string, ...Field)         {}
func (NopObservability) LogError(string, error, ...Field) {}
func (NopObservability) IncCounter(string, float64)       {}
func (NopObservability) SetGauge(string, float64)         {}
func (NopObservability) ObserveLatency(string, float64)   {}
