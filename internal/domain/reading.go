package domain

import "time"

// Default channel values substituted when a frame omits a field. Every
// channel is always present on a Reading so downstream consumers never
// branch on optional fields.
const (
	DefaultPH          = 7.0
	DefaultTemperature = 25.0
)

// ColorSample is one reading of the on-board color sensor. Red, green and
// blue are 8-bit channel values; Clear is the unfiltered photodiode count.
type ColorSample struct {
	Red   int `json:"red"`
	Green int `json:"green"`
	Blue  int `json:"blue"`
	Clear int `json:"clear"`
}

// ElectrodeSet holds one voltage per electrode material in the sensing
// array, in volts on a 0-5 V scale.
type ElectrodeSet struct {
	SS float64 `json:"ss"`
	Cu float64 `json:"cu"`
	Zn float64 `json:"zn"`
	Ag float64 `json:"ag"`
	Pt float64 `json:"pt"`
}

// Reading is one timestamped measurement emitted by a sensor device.
// Timestamps are monotonically increasing within a session but not
// globally unique across sessions.
type Reading struct {
	Timestamp    time.Time    `json:"ts"`
	DeviceID     string       `json:"device_id"`
	PH           float64      `json:"ph"`
	TDS          float64      `json:"tds"`
	UVAbsorbance float64      `json:"uv_absorbance"`
	Temperature  float64      `json:"temperature"`
	Moisture     float64      `json:"moisture"`
	Color        ColorSample  `json:"color"`
	Electrodes   ElectrodeSet `json:"electrodes"`
}

// NewReading returns a Reading with all channels set to their defaults.
func NewReading(deviceID string, ts time.Time) Reading {
	return Reading{
		Timestamp:   ts,
		DeviceID:    deviceID,
		PH:          DefaultPH,
		Temperature: DefaultTemperature,
	}
}
