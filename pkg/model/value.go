package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// Format is the value format of a characteristic. It is fixed when the
// characteristic is created.
type Format uint8

const (
	FormatBool Format = iota
	FormatInt
	FormatUint8
	FormatUint16
	FormatUint32
	FormatUint64
	FormatFloat
	FormatString
)

var formatNames = [...]string{"bool", "int", "uint8", "uint16", "uint32", "uint64", "float", "string"}

// String returns the wire name of the format.
func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

// ParseFormat returns the format with the given wire name.
func ParseFormat(name string) (Format, error) {
	for i, n := range formatNames {
		if n == name {
			return Format(i), nil
		}
	}
	return 0, fmt.Errorf("unknown format %q", name)
}

// Value errors.
var (
	ErrInvalidLiteral = errors.New("invalid value literal")
	ErrFormatMismatch = errors.New("value format mismatch")
)

// Value is a characteristic value tagged with its format.
type Value struct {
	format Format
	b      bool
	i      int64
	u      uint64
	f      float64
	s      string
}

// BoolValue returns a bool value.
func BoolValue(v bool) Value { return Value{format: FormatBool, b: v} }

// IntValue returns a 32-bit signed value.
func IntValue(v int32) Value { return Value{format: FormatInt, i: int64(v)} }

// Uint8Value returns an 8-bit unsigned value.
func Uint8Value(v uint8) Value { return Value{format: FormatUint8, u: uint64(v)} }

// Uint16Value returns a 16-bit unsigned value.
func Uint16Value(v uint16) Value { return Value{format: FormatUint16, u: uint64(v)} }

// Uint32Value returns a 32-bit unsigned value.
func Uint32Value(v uint32) Value { return Value{format: FormatUint32, u: uint64(v)} }

// Uint64Value returns a 64-bit unsigned value.
func Uint64Value(v uint64) Value { return Value{format: FormatUint64, u: v} }

// FloatValue returns a floating point value.
func FloatValue(v float64) Value { return Value{format: FormatFloat, f: v} }

// StringValue returns a text value.
func StringValue(v string) Value { return Value{format: FormatString, s: v} }

// ZeroValue returns the zero value of a format.
func ZeroValue(f Format) Value { return Value{format: f} }

// Format returns the value's format.
func (v Value) Format() Format { return v.format }

// Bool returns the value of a bool.
func (v Value) Bool() bool { return v.b }

// Int returns the value of an int.
func (v Value) Int() int64 { return v.i }

// Uint returns the value of any unsigned format.
func (v Value) Uint() uint64 { return v.u }

// Float returns the value of a float.
func (v Value) Float() float64 { return v.f }

// Text returns the value of a string.
func (v Value) Text() string { return v.s }

// ParseValue parses a literal according to the format. Bools accept
// 0/false/1/true, integers must fit the format's width exactly, floats must
// be finite, and strings are taken verbatim.
func ParseValue(f Format, lit string) (Value, error) {
	switch f {
	case FormatBool:
		switch lit {
		case "0", "false":
			return BoolValue(false), nil
		case "1", "true":
			return BoolValue(true), nil
		}
		return Value{}, fmt.Errorf("%w: %q is not a bool", ErrInvalidLiteral, lit)

	case FormatInt:
		n, err := strconv.ParseInt(lit, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidLiteral, err)
		}
		return IntValue(int32(n)), nil

	case FormatUint8, FormatUint16, FormatUint32, FormatUint64:
		n, err := strconv.ParseUint(lit, 10, uintBits(f))
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidLiteral, err)
		}
		return Value{format: f, u: n}, nil

	case FormatFloat:
		n, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidLiteral, err)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return Value{}, fmt.Errorf("%w: %q is not finite", ErrInvalidLiteral, lit)
		}
		return FloatValue(n), nil

	case FormatString:
		return StringValue(lit), nil
	}

	return Value{}, fmt.Errorf("%w: unknown format %d", ErrInvalidLiteral, f)
}

func uintBits(f Format) int {
	switch f {
	case FormatUint8:
		return 8
	case FormatUint16:
		return 16
	case FormatUint32:
		return 32
	default:
		return 64
	}
}

// AppendJSON appends the JSON literal of the value to dst.
// Floats use 6 significant digits in %g form.
func (v Value) AppendJSON(dst []byte) []byte {
	switch v.format {
	case FormatBool:
		return strconv.AppendBool(dst, v.b)
	case FormatInt:
		return strconv.AppendInt(dst, v.i, 10)
	case FormatUint8, FormatUint16, FormatUint32, FormatUint64:
		return strconv.AppendUint(dst, v.u, 10)
	case FormatFloat:
		return strconv.AppendFloat(dst, v.f, 'g', 6, 64)
	case FormatString:
		return AppendJSONString(dst, v.s)
	}
	return append(dst, "null"...)
}

// String returns the JSON literal of the value.
func (v Value) String() string {
	return string(v.AppendJSON(nil))
}

// Equal reports whether two values have the same format and content.
func (v Value) Equal(o Value) bool {
	return v == o
}

const hexDigits = "0123456789abcdef"

// AppendJSONString appends s as a quoted JSON string.
func AppendJSONString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				dst = append(dst, '\\', c)
			case c == '\n':
				dst = append(dst, '\\', 'n')
			case c == '\r':
				dst = append(dst, '\\', 'r')
			case c == '\t':
				dst = append(dst, '\\', 't')
			case c < 0x20:
				dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			default:
				dst = append(dst, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			dst = append(dst, "\ufffd"...)
		} else {
			dst = append(dst, s[i:i+size]...)
		}
		i += size
	}
	return append(dst, '"')
}
