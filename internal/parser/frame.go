// Package parser converts raw text frames received from either transport
// into typed sensor readings. It is a pure translation layer: no state, no
// clock, no I/O.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avetra/sensorlink/internal/domain"
)

// FramePrefix marks a reading frame on the wire. Frames are pipe-delimited
// key=value fields after the prefix:
//
//	DATA|id=AA:BB:CC:DD:EE:FF|ts=1714060800123|ph=6.82|tds=312.5|uv=0.42|
//	temp=25.1|moist=51.2|col=128,64,32,400|el=1.21,0.98,1.05,1.33,1.48
//
// Missing channels are filled with defaults so every field of the returned
// Reading is always populated. A missing ts leaves the timestamp zero; the
// receiving connector stamps arrival time in that case.
const FramePrefix = "DATA"

// ParseFrame decodes one reading frame. It returns an error for anything
// that is not a reading frame; control lines (OK, PONG, ...) are the
// caller's business.
func ParseFrame(line string) (domain.Reading, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "|")
	if len(fields) == 0 || fields[0] != FramePrefix {
		return domain.Reading{}, fmt.Errorf("not a reading frame: %q", line)
	}

	r := domain.NewReading("", time.Time{})
	for _, field := range fields[1:] {
		if field == "" {
			continue
		}
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			return domain.Reading{}, fmt.Errorf("malformed field %q", field)
		}
		if err := applyField(&r, key, val); err != nil {
			return domain.Reading{}, err
		}
	}
	return r, nil
}

func applyField(r *domain.Reading, key, val string) error {
	switch key {
	case "id":
		r.DeviceID = val
		return nil
	case "ts":
		ms, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("field ts: %w", err)
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		return nil
	case "col":
		c, err := parseColor(val)
		if err != nil {
			return err
		}
		r.Color = c
		return nil
	case "el":
		e, err := parseElectrodes(val)
		if err != nil {
			return err
		}
		r.Electrodes = e
		return nil
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	switch key {
	case "ph":
		r.PH = f
	case "tds":
		r.TDS = f
	case "uv":
		r.UVAbsorbance = f
	case "temp":
		r.Temperature = f
	case "moist":
		r.Moisture = f
	default:
		// Unknown fields are ignored for forward compatibility with
		// newer firmware.
	}
	return nil
}

func parseColor(val string) (domain.ColorSample, error) {
	parts := strings.Split(val, ",")
	if len(parts) != 4 {
		return domain.ColorSample{}, fmt.Errorf("field col: want 4 components, got %d", len(parts))
	}
	nums := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return domain.ColorSample{}, fmt.Errorf("field col: %w", err)
		}
		nums[i] = n
	}
	return domain.ColorSample{Red: nums[0], Green: nums[1], Blue: nums[2], Clear: nums[3]}, nil
}

func parseElectrodes(val string) (domain.ElectrodeSet, error) {
	parts := strings.Split(val, ",")
	if len(parts) != 5 {
		return domain.ElectrodeSet{}, fmt.Errorf("field el: want 5 voltages, got %d", len(parts))
	}
	nums := make([]float64, 5)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.ElectrodeSet{}, fmt.Errorf("field el: %w", err)
		}
		nums[i] = f
	}
	return domain.ElectrodeSet{SS: nums[0], Cu: nums[1], Zn: nums[2], Ag: nums[3], Pt: nums[4]}, nil
}

// IsFrame reports whether a line looks like a reading frame without fully
// parsing it.
func IsFrame(line string) bool {
	return strings.HasPrefix(line, FramePrefix+"|") || strings.TrimRight(line, "\r\n") == FramePrefix
}
