package model

import (
	"fmt"
	"time"
)

// Range is the numeric range advertised for a characteristic.
type Range struct {
	Min  int
	Max  int
	Step int
}

// Characteristic is a single typed, permissioned value within a service.
type Characteristic struct {
	service *Service

	aid   int
	iid   int
	typ   string
	perms Perm

	// format is fixed at creation and never written again, so it may be
	// read from any goroutine.
	format Format

	// value is the committed value; newValue is staged by a pending write.
	value    Value
	newValue Value
	updated  bool

	description string
	rng         *Range
	autoOff     time.Duration

	// ev holds one subscription flag per connection slot.
	ev []bool
}

// CharacteristicOption configures a characteristic at creation.
type CharacteristicOption func(*Characteristic)

// WithDescription sets the human-readable description.
func WithDescription(desc string) CharacteristicOption {
	return func(c *Characteristic) { c.description = desc }
}

// WithAutoOff resets a bool characteristic to false this long after a write
// sets it to true. Used for momentary switches.
func WithAutoOff(d time.Duration) CharacteristicOption {
	return func(c *Characteristic) { c.autoOff = d }
}

// AID returns the id of the owning accessory.
func (c *Characteristic) AID() int { return c.aid }

// IID returns the instance id.
func (c *Characteristic) IID() int { return c.iid }

// Type returns the characteristic type.
func (c *Characteristic) Type() string { return c.typ }

// Perms returns the permission mask.
func (c *Characteristic) Perms() Perm { return c.perms }

// Format returns the fixed value format.
func (c *Characteristic) Format() Format { return c.format }

// Service returns the owning service.
func (c *Characteristic) Service() *Service { return c.service }

// Description returns the description, or "" if none was set.
func (c *Characteristic) Description() string { return c.description }

// Range returns the attached range, or nil.
func (c *Characteristic) Range() *Range { return c.rng }

// AutoOff returns the auto-off delay, or 0 if disabled.
func (c *Characteristic) AutoOff() time.Duration { return c.autoOff }

// Value returns the committed value.
func (c *Characteristic) Value() Value { return c.value }

// NewValue returns the staged value. It equals Value unless IsUpdated.
func (c *Characteristic) NewValue() Value { return c.newValue }

// IsUpdated returns true if a staged value awaits its service commit.
func (c *Characteristic) IsUpdated() bool { return c.updated }

// AttachRange attaches a numeric range. A characteristic has at most one.
func (c *Characteristic) AttachRange(min, max, step int) *Range {
	if c == nil {
		precondition("cannot attach a range without a characteristic")
	}
	c.service.accessory.db.mustBeOpen()
	if c.rng != nil {
		precondition(fmt.Sprintf("characteristic %d.%d already has a range", c.aid, c.iid))
	}
	c.rng = &Range{Min: min, Max: max, Step: step}
	return c.rng
}

// Stage sets the staged value and marks the characteristic updated.
func (c *Characteristic) Stage(v Value) error {
	if v.format != c.format {
		return fmt.Errorf("%w: %s into %s", ErrFormatMismatch, v.format, c.format)
	}
	c.newValue = v
	c.updated = true
	return nil
}

// Commit makes the staged value the committed value.
func (c *Characteristic) Commit() {
	c.value = c.newValue
	c.updated = false
}

// Revert discards the staged value.
func (c *Characteristic) Revert() {
	c.newValue = c.value
	c.updated = false
}

// SetValue replaces the committed value directly. It is used for changes
// that originate on the accessory itself rather than from a controller.
func (c *Characteristic) SetValue(v Value) error {
	if v.format != c.format {
		return fmt.Errorf("%w: %s into %s", ErrFormatMismatch, v.format, c.format)
	}
	c.value = v
	c.newValue = v
	c.updated = false
	return nil
}

// Notify reports whether the given slot is subscribed.
func (c *Characteristic) Notify(slot int) bool {
	if slot < 0 || slot >= len(c.ev) {
		return false
	}
	return c.ev[slot]
}

// SetNotify sets the subscription flag of a slot.
func (c *Characteristic) SetNotify(slot int, on bool) {
	c.ev[slot] = on
}

// Subscribed reports whether any slot other than except is subscribed.
// Pass a negative except to consider every slot.
func (c *Characteristic) Subscribed(except int) bool {
	for i, on := range c.ev {
		if on && i != except {
			return true
		}
	}
	return false
}
