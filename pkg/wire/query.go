package wire

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrMalformedQuery is returned when a read query cannot be parsed.
var ErrMalformedQuery = errors.New("malformed read query")

// ID addresses a characteristic by accessory id and instance id.
type ID struct {
	AID int
	IID int
}

// String returns the "aid.iid" form of the id.
func (id ID) String() string {
	return strconv.Itoa(id.AID) + "." + strconv.Itoa(id.IID)
}

// ParseID parses an "aid.iid" pair.
func ParseID(s string) (ID, error) {
	a, i, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return ID{}, fmt.Errorf("%w: id %q is not aid.iid", ErrMalformedQuery, s)
	}
	aid, err := strconv.Atoi(a)
	if err != nil {
		return ID{}, fmt.Errorf("%w: id %q: bad aid", ErrMalformedQuery, s)
	}
	iid, err := strconv.Atoi(i)
	if err != nil {
		return ID{}, fmt.Errorf("%w: id %q: bad iid", ErrMalformedQuery, s)
	}
	return ID{AID: aid, IID: iid}, nil
}

// ReadQuery is a parsed GET /characteristics query.
type ReadQuery struct {
	IDs []ID

	// Meta requests format and range metadata.
	Meta bool

	// Perms requests the permission list.
	Perms bool

	// Type requests the characteristic type.
	Type bool

	// Events requests the caller's current subscription state.
	Events bool
}

// ParseReadQuery parses the id list and optional flags of a read query.
func ParseReadQuery(q url.Values) (ReadQuery, error) {
	var rq ReadQuery

	raw := q.Get("id")
	if raw == "" {
		return rq, fmt.Errorf("%w: missing id", ErrMalformedQuery)
	}
	for _, part := range strings.Split(raw, ",") {
		id, err := ParseID(part)
		if err != nil {
			return rq, err
		}
		rq.IDs = append(rq.IDs, id)
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{"meta", &rq.Meta},
		{"perms", &rq.Perms},
		{"type", &rq.Type},
		{"ev", &rq.Events},
	}
	for _, f := range flags {
		v, err := parseFlag(q.Get(f.name))
		if err != nil {
			return rq, fmt.Errorf("%w: %s: %v", ErrMalformedQuery, f.name, err)
		}
		*f.dst = v
	}

	return rq, nil
}

func parseFlag(s string) (bool, error) {
	switch s {
	case "", "0", "false":
		return false, nil
	case "1", "true":
		return true, nil
	default:
		return false, fmt.Errorf("invalid flag %q", s)
	}
}
