package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawDuration is an interval length in seconds exactly as the tracking agent
// reported it. Malformed values (strings, null, negatives) decode without
// error and are coerced only when summed.
type RawDuration struct {
	value float64
	valid bool
}

// Seconds builds a well-formed duration.
func Seconds(v float64) RawDuration {
	return RawDuration{value: v, valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
}

// InvalidDuration is a non-numeric duration.
func InvalidDuration() RawDuration {
	return RawDuration{}
}

// Value returns the raw number and whether it was numeric at all.
func (d RawDuration) Value() (float64, bool) {
	return d.value, d.valid
}

// Coerce returns max(0, floor(value)), 0 for a non-numeric value. The second
// result is false when the input needed correcting.
func (d RawDuration) Coerce() (int64, bool) {
	if !d.valid {
		return 0, false
	}
	if d.value < 0 {
		return 0, false
	}
	f := math.Floor(d.value)
	if f > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}

func (d *RawDuration) UnmarshalJSON(data []byte) error {
	*d = RawDuration{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*d = Seconds(v)
		}
		return nil
	}
	if v, err := strconv.ParseFloat(string(data), 64); err == nil {
		*d = Seconds(v)
	}
	return nil
}

func (d RawDuration) MarshalJSON() ([]byte, error) {
	if !d.valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(d.value, 'f', -1, 64)), nil
}
