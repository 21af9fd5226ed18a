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

	"gopkg.in/yaml.v3"
)

// Bytes is a size in bytes. Sizes are formatted with binary units, and parsed
// from either decimal (KB, MB, ...) or binary (KiB, MiB, ...) units:
//
//	512
//	64 KiB
//	1.5MB
type Bytes uint64

const (
	B  Bytes = 1
	KB       = 1000 * B
	MB       = 1000 * KB
	GB       = 1000 * MB
	TB       = 1000 * GB

	KiB = 1024 * B
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

var byteUnits = map[string]Bytes{
	"":    B,
	"b":   B,
	"k":   KB,
	"kb":  KB,
	"m":   MB,
	"mb":  MB,
	"g":   GB,
	"gb":  GB,
	"t":   TB,
	"tb":  TB,
	"ki":  KiB,
	"kib": KiB,
	"mi":  MiB,
	"mib": MiB,
	"gi":  GiB,
	"gib": GiB,
	"ti":  TiB,
	"tib": TiB,
}

// ParseBytes parses a size.
func ParseBytes(s string) (Bytes, error) {
	number, unit := splitNumber(s)
	scale, ok := byteUnits[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("malformed size: %q: unknown unit %q", s, unit)
	}
	n, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed size: %q", s)
	}
	n = math.Round(n * float64(scale))
	if n >= math.MaxUint64 {
		return 0, fmt.Errorf("size out of range: %q", s)
	}
	return Bytes(n), nil
}

var binaryUnits = [...]struct {
	unit  string
	scale Bytes
}{
	{"TiB", TiB},
	{"GiB", GiB},
	{"MiB", MiB},
	{"KiB", KiB},
}

func (b Bytes) String() string {
	for _, u := range binaryUnits {
		if b >= u.scale {
			return ftoa(float64(b)/float64(u.scale)) + " " + u.unit
		}
	}
	return strconv.FormatUint(uint64(b), 10) + " B"
}

// Format satisfies fmt.Formatter. The d verb prints the exact number of
// bytes, other verbs print the same value as String.
func (b Bytes) Format(w fmt.State, v rune) {
	if v == 'd' {
		_, _ = io.WriteString(w, strconv.FormatUint(uint64(b), 10))
		return
	}
	_, _ = io.WriteString(w, b.String())
}

func (b *Bytes) Set(s string) error {
	p, err := ParseBytes(s)
	if err != nil {
		return err
	}
	*b = p
	return nil
}

func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(b))
}

func (b *Bytes) UnmarshalJSON(j []byte) error {
	var s string
	if json.Unmarshal(j, &s) == nil {
		return b.Set(s)
	}
	return json.Unmarshal(j, (*uint64)(b))
}

func (b Bytes) MarshalYAML() (any, error) {
	return uint64(b), nil
}

func (b *Bytes) UnmarshalYAML(y *yaml.Node) error {
	return b.Set(y.Value)
}

func (b Bytes) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Bytes) UnmarshalText(t []byte) error {
	return b.Set(string(t))
}

var (
	_ fmt.Formatter = Bytes(0)
	_ flag.Value    = (*Bytes)(nil)

	_ json.Marshaler   = Bytes(0)
	_ json.Unmarshaler = (*Bytes)(nil)

	_ yaml.Marshaler   = Bytes(0)
	_ yaml.Unmarshaler = (*Bytes)(nil)

	_ encoding.TextMarshaler   = Bytes(0)
	_ encoding.TextUnmarshaler = (*Bytes)(nil)
)

// ByteArray formats a byte slice as a list of bytes in base 10 (d verb) or
// base 16 (x verb). The width limits the number of bytes shown, the output
// ends with "..." when bytes were omitted:
//
//	fmt.Sprintf("%2x", ByteArray("hello")) == "[0x68 0x65...]"
type ByteArray []byte

func (b ByteArray) Format(w fmt.State, v rune) {
	n, ok := w.Width()
	if !ok || n > len(b) {
		n = len(b)
	}

	verb := "%d"
	if v == 'x' {
		verb = "%#02x"
	}

	var s strings.Builder
	s.WriteByte('[')
	for i, x := range b[:n] {
		if i > 0 {
			s.WriteByte(' ')
		}
		fmt.Fprintf(&s, verb, x)
	}
	if n < len(b) {
		s.WriteString("...")
	}
	s.WriteByte(']')
	_, _ = io.WriteString(w, s.String())
}
