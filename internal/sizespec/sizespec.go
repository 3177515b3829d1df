// Package sizespec turns a user supplied size token ("1024", "15M", "2G",
// "50%") into the number of bytes to consume.
package sizespec

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/cloudbedlam/eatmem/internal/sysmem"
)

const (
	Megabyte int64 = 1024 * 1024
	Gigabyte int64 = 1024 * Megabyte
)

var (
	// ErrInvalidFormat is returned when a token ends in a character that is
	// not a digit or a supported unit suffix.
	ErrInvalidFormat = errors.New("invalid size format")

	// ErrFreeMemory is returned when a percentage token cannot be resolved
	// because the free memory figure is unavailable.
	ErrFreeMemory = errors.New("free memory unavailable")
)

// Unit identifies how the magnitude of a token is interpreted
type Unit int

const (
	UnitBytes Unit = iota
	UnitMegabytes
	UnitGigabytes
	UnitPercent
)

// String returns the suffix that selects the unit, "B" for plain bytes
func (u Unit) String() string {
	switch u {
	case UnitBytes:
		return "B"
	case UnitMegabytes:
		return "M"
	case UnitGigabytes:
		return "G"
	case UnitPercent:
		return "%"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// MarshalText encodes the unit as its suffix
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// Spec is a resolved size token. Bytes is fixed at parse time.
type Spec struct {
	Token     string `json:"token"`
	Magnitude int64  `json:"magnitude"`
	Unit      Unit   `json:"unit"`
	Bytes     int64  `json:"bytes"`
}

// FreeMemoryFunc reports the memory currently available, in bytes
type FreeMemoryFunc func() (uint64, error)

// Parser resolves size tokens. Percent enables the "N%" form; Free is
// sampled on every percentage token, never cached.
type Parser struct {
	Percent bool
	Free    FreeMemoryFunc
}

// NewParser returns a parser backed by the operating system's memory figures.
func NewParser() *Parser {
	return &Parser{
		Percent: sysmem.PercentSupported,
		Free:    sysmem.FreeBytes,
	}
}

// Parse resolves token with the operating system's memory figures.
func Parse(token string) (Spec, error) {
	return NewParser().Parse(token)
}

// Parse resolves token into a byte count.
//
// Only the last character selects the unit. The numeric prefix is read the
// way C's atol reads it: leading blanks, an optional sign, then the longest
// run of digits. Anything unreadable counts as zero and negative values
// resolve to zero.
func (p *Parser) Parse(token string) (Spec, error) {
	if token == "" {
		return Spec{}, fmt.Errorf("%w: empty size", ErrInvalidFormat)
	}

	spec := Spec{Token: token}
	unit := token[len(token)-1]

	switch {
	case isDigit(unit):
		spec.Unit = UnitBytes
		spec.Magnitude = atol(token)
		spec.Bytes = spec.Magnitude
	case unit == 'M':
		spec.Unit = UnitMegabytes
		spec.Magnitude = atol(token[:len(token)-1])
		spec.Bytes = mulSaturate(spec.Magnitude, Megabyte)
	case unit == 'G':
		spec.Unit = UnitGigabytes
		spec.Magnitude = atol(token[:len(token)-1])
		spec.Bytes = mulSaturate(spec.Magnitude, Gigabyte)
	case unit == '%' && p.Percent:
		spec.Unit = UnitPercent
		spec.Magnitude = atol(token[:len(token)-1])
		if p.Free == nil {
			return Spec{}, fmt.Errorf("%w: no free memory source", ErrFreeMemory)
		}
		free, err := p.Free()
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %w", ErrFreeMemory, err)
		}
		spec.Bytes = percentOf(spec.Magnitude, free)
	default:
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidFormat, token)
	}

	return spec, nil
}

// Grammar returns the help text describing accepted size tokens.
func Grammar(percent bool) string {
	var b strings.Builder
	b.WriteString("Size can be specified in megabytes or gigabytes in the following way:\n")
	b.WriteString("#          # Bytes      example: 1024\n")
	b.WriteString("#M         # Megabytes  example: 15M\n")
	b.WriteString("#G         # Gigabytes  example: 2G\n")
	if percent {
		b.WriteString("#%         # Percent    example: 50%\n")
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// atol parses the leading integer of s, never failing. Negative results and
// empty prefixes yield 0; overflow saturates.
func atol(s string) int64 {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r' || s[i] == '\v' || s[i] == '\f') {
		i++
	}

	negative := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		negative = s[i] == '-'
		i++
	}

	var n int64
	for ; i < len(s) && isDigit(s[i]); i++ {
		d := int64(s[i] - '0')
		if n > (math.MaxInt64-d)/10 {
			n = math.MaxInt64
			// consume the rest of the digits
			continue
		}
		n = n*10 + d
	}

	if negative {
		return 0
	}
	return n
}

func mulSaturate(n, unit int64) int64 {
	if n != 0 && n > math.MaxInt64/unit {
		return math.MaxInt64
	}
	return n * unit
}

// percentOf returns floor(n * free / 100) without intermediate overflow.
func percentOf(n int64, free uint64) int64 {
	hi, lo := bits.Mul64(uint64(n), free)
	if hi >= 100 {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, 100)
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}
