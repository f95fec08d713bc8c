package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrMalformedBatch is returned when a write batch cannot be parsed.
// Nothing in a malformed batch is applied.
var ErrMalformedBatch = errors.New("malformed write batch")

// WriteItem is one entry of a write batch. Value and Ev hold the literal
// text sent by the controller; nil means the field was absent.
type WriteItem struct {
	AID   int
	IID   int
	Value *string
	Ev    *string
}

// HasValue reports whether the entry requests a value change.
func (w WriteItem) HasValue() bool { return w.Value != nil }

// HasEv reports whether the entry requests a notification change.
func (w WriteItem) HasEv() bool { return w.Ev != nil }

// ID returns the characteristic address of the entry.
func (w WriteItem) ID() ID { return ID{AID: w.AID, IID: w.IID} }

// field bits seen while parsing a single entry.
const (
	fieldAID = 1 << iota
	fieldIID
	fieldValue
	fieldEv
)

// ParseWriteRequest parses a write batch body. The first structural error
// rejects the whole batch.
func ParseWriteRequest(data []byte) ([]WriteItem, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	key, err := nextKey(dec)
	if err != nil {
		return nil, err
	}
	if key != "characteristics" {
		return nil, malformed("initial \"characteristics\" key not found")
	}
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	items := make([]WriteItem, 0, 4)
	for dec.More() {
		item, err := parseWriteItem(dec)
		if err != nil {
			return nil, fmt.Errorf("%w (entry %d)", err, len(items))
		}
		items = append(items, item)
	}

	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, malformed("unexpected property after characteristics")
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, malformed("trailing data after batch")
	}

	return items, nil
}

func parseWriteItem(dec *json.Decoder) (WriteItem, error) {
	var item WriteItem
	if err := expectDelim(dec, '{'); err != nil {
		return item, err
	}

	seen := 0
	for dec.More() {
		key, err := nextKey(dec)
		if err != nil {
			return item, err
		}

		switch key {
		case "aid":
			if item.AID, err = intToken(dec, key); err != nil {
				return item, err
			}
			seen |= fieldAID
		case "iid":
			if item.IID, err = intToken(dec, key); err != nil {
				return item, err
			}
			seen |= fieldIID
		case "value":
			lit, err := literalToken(dec, key)
			if err != nil {
				return item, err
			}
			item.Value = &lit
			seen |= fieldValue
		case "ev":
			lit, err := literalToken(dec, key)
			if err != nil {
				return item, err
			}
			item.Ev = &lit
			seen |= fieldEv
		default:
			return item, malformed("unexpected property %q", key)
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return item, err
	}

	if seen&(fieldAID|fieldIID) != fieldAID|fieldIID || seen&(fieldValue|fieldEv) == 0 {
		return item, malformed("missing required properties")
	}
	return item, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return malformed("expected %q: %v", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return malformed("expected %q, got %v", want, tok)
	}
	return nil
}

func nextKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", malformed("expected property name: %v", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", malformed("expected property name, got %v", tok)
	}
	return key, nil
}

func intToken(dec *json.Decoder, key string) (int, error) {
	tok, err := dec.Token()
	if err != nil {
		return 0, malformed("%s: %v", key, err)
	}
	num, ok := tok.(json.Number)
	if !ok {
		return 0, malformed("%s: expected integer, got %v", key, tok)
	}
	n, err := strconv.Atoi(num.String())
	if err != nil {
		return 0, malformed("%s: expected integer, got %s", key, num)
	}
	return n, nil
}

// literalToken turns a scalar token back into the text the controller sent.
func literalToken(dec *json.Decoder, key string) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", malformed("%s: %v", key, err)
	}
	switch v := tok.(type) {
	case json.Number:
		return v.String(), nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", malformed("%s: expected scalar, got %v", key, tok)
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedBatch, fmt.Sprintf(format, args...))
}
