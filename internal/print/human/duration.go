package human

import (
	"encoding"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	Nanosecond  Duration = 1
	Microsecond Duration = 1000 * Nanosecond
	Millisecond Duration = 1000 * Microsecond
	Second      Duration = 1000 * Millisecond
	Minute      Duration = 60 * Second
	Hour        Duration = 60 * Minute
	Day         Duration = 24 * Hour
	Week        Duration = 7 * Day
)

// Duration is a time.Duration which also parses days, weeks, and unit names
// separated from the number by spaces:
//
//	5m30s
//	1.5h
//	2d
//	4 weeks
type Duration time.Duration

var durationUnits = map[string]Duration{
	"ns":          Nanosecond,
	"nanosecond":  Nanosecond,
	"us":          Microsecond,
	"µs":          Microsecond,
	"microsecond": Microsecond,
	"ms":          Millisecond,
	"millisecond": Millisecond,
	"s":           Second,
	"sec":         Second,
	"second":      Second,
	"m":           Minute,
	"min":         Minute,
	"minute":      Minute,
	"h":           Hour,
	"hour":        Hour,
	"d":           Day,
	"day":         Day,
	"w":           Week,
	"week":        Week,
}

// ParseDuration parses a duration. Values accepted by time.ParseDuration are
// always valid.
func ParseDuration(s string) (Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return Duration(d), nil
	}

	number, unit := splitNumber(s)
	unit = strings.ToLower(unit)
	scale, ok := durationUnits[unit]
	if !ok && len(unit) > 1 {
		scale, ok = durationUnits[strings.TrimSuffix(unit, "s")]
	}
	if !ok {
		return 0, fmt.Errorf("malformed duration: %q", s)
	}
	n, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed duration: %q", s)
	}
	n = math.Round(n * float64(scale))
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("duration out of range: %q", s)
	}
	return Duration(n), nil
}

// String returns a compact representation of the duration, omitting the
// trailing zero units of time.Duration (1m instead of 1m0s), and using days
// for multiples of 24 hours.
func (d Duration) String() string {
	switch {
	case d == 0:
		return "0s"
	case d%Day == 0:
		return strconv.FormatInt(int64(d/Day), 10) + "d"
	}
	s := time.Duration(d).String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

func (d Duration) Format(w fmt.State, v rune) {
	if v == 'd' {
		_, _ = io.WriteString(w, strconv.FormatInt(int64(d), 10))
		return
	}
	_, _ = io.WriteString(w, d.String())
}

func (d *Duration) Set(s string) error {
	p, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = p
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d))
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		return d.Set(s)
	}
	return json.Unmarshal(b, (*time.Duration)(d))
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(y *yaml.Node) error {
	var s string
	if err := y.Decode(&s); err != nil {
		return err
	}
	return d.Set(s)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	return d.Set(string(b))
}

var (
	_ fmt.Formatter = Duration(0)
	_ flag.Value    = (*Duration)(nil)

	_ json.Marshaler   = Duration(0)
	_ json.Unmarshaler = (*Duration)(nil)

	_ yaml.Marshaler   = Duration(0)
	_ yaml.Unmarshaler = (*Duration)(nil)

	_ encoding.TextMarshaler   = Duration(0)
	_ encoding.TextUnmarshaler = (*Duration)(nil)
)
