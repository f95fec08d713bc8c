package model

import (
	"fmt"
	"strings"
)

// Perm is the permission bitmask of a characteristic.
type Perm uint8

const (
	// PermRead allows reading the value ("pr").
	PermRead Perm = 1 << iota

	// PermWrite allows writing the value ("pw").
	PermWrite

	// PermNotify allows subscribing to value changes ("ev").
	PermNotify

	// PermAdditionalAuth requires additional authorization data ("aa").
	PermAdditionalAuth

	// PermTimedWrite requires timed writes ("tw").
	PermTimedWrite

	// PermHidden hides the characteristic from users ("hd").
	PermHidden

	// PermWriteResponse allows write responses ("wr").
	PermWriteResponse

	// Common combinations.

	// PermReadNotify is read and notify.
	PermReadNotify = PermRead | PermNotify

	// PermReadWriteNotify is read, write, and notify.
	PermReadWriteNotify = PermRead | PermWrite | PermNotify
)

// permCodes are the short codes in bit order.
var permCodes = [...]string{"pr", "pw", "ev", "aa", "tw", "hd", "wr"}

// CanRead returns true if reading is allowed.
func (p Perm) CanRead() bool { return p&PermRead != 0 }

// CanWrite returns true if writing is allowed.
func (p Perm) CanWrite() bool { return p&PermWrite != 0 }

// CanNotify returns true if subscribing is allowed.
func (p Perm) CanNotify() bool { return p&PermNotify != 0 }

// Codes returns the short code of every set bit, in bit order.
func (p Perm) Codes() []string {
	codes := make([]string, 0, len(permCodes))
	for i, code := range permCodes {
		if p&(1<<i) != 0 {
			codes = append(codes, code)
		}
	}
	return codes
}

// String returns the permission codes joined by commas.
func (p Perm) String() string {
	if p == 0 {
		return "-"
	}
	return strings.Join(p.Codes(), ",")
}

// ParsePerms builds a permission mask from short codes.
func ParsePerms(codes []string) (Perm, error) {
	var p Perm
	for _, code := range codes {
		bit, ok := permBit(code)
		if !ok {
			return 0, fmt.Errorf("unknown permission %q", code)
		}
		p |= bit
	}
	return p, nil
}

func permBit(code string) (Perm, bool) {
	for i, c := range permCodes {
		if c == code {
			return 1 << i, true
		}
	}
	return 0, false
}
