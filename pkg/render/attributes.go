package render

import (
	"github.com/hapspan/hapspan-go/pkg/model"
)

// Flags select the optional fields of a characteristic object.
type Flags uint8

const (
	// WithType adds the characteristic type.
	WithType Flags = 1 << iota

	// WithMeta adds the format and, when attached, the range.
	WithMeta

	// WithPerms adds the permission code list.
	WithPerms

	// WithDesc adds the description when one is set.
	WithDesc

	// WithAID adds the owning accessory id.
	WithAID

	// WithEvent adds the subscription state of the querying slot.
	WithEvent

	// serviceFlags are used for characteristics nested in a service.
	serviceFlags = WithType | WithMeta | WithPerms | WithDesc
)

// Characteristic renders one characteristic object. slot selects the
// subscription flag reported by WithEvent.
func Characteristic(b *Buffer, c *model.Characteristic, flags Flags, slot int) {
	b.Raw(`{"iid":`)
	b.Int(c.IID())

	if flags&WithType != 0 {
		b.Raw(`,"type":`)
		b.Quote(c.Type())
	}

	if c.Perms().CanRead() {
		b.Raw(`,"value":`)
		b.Value(c.Value())
	}

	if flags&WithMeta != 0 {
		b.Raw(`,"format":"`)
		b.Raw(c.Format().String())
		b.Byte('"')

		if r := c.Range(); r != nil {
			b.Raw(`,"minValue":`)
			b.Int(r.Min)
			b.Raw(`,"maxValue":`)
			b.Int(r.Max)
			b.Raw(`,"minStep":`)
			b.Int(r.Step)
		}
	}

	if flags&WithDesc != 0 && c.Description() != "" {
		b.Raw(`,"description":`)
		b.Quote(c.Description())
	}

	if flags&WithPerms != 0 {
		b.Raw(`,"perms":[`)
		for i, code := range c.Perms().Codes() {
			if i > 0 {
				b.Byte(',')
			}
			b.Byte('"')
			b.Raw(code)
			b.Byte('"')
		}
		b.Byte(']')
	}

	if flags&WithAID != 0 {
		b.Raw(`,"aid":`)
		b.Int(c.AID())
	}

	if flags&WithEvent != 0 {
		b.Raw(`,"ev":`)
		b.Bool(c.Notify(slot))
	}

	b.Byte('}')
}

// Service renders a service with its characteristics.
func Service(b *Buffer, s *model.Service) {
	b.Raw(`{"iid":`)
	b.Int(s.IID())
	b.Raw(`,"type":`)
	b.Quote(s.Type())
	b.Byte(',')

	if s.Hidden() {
		b.Raw(`"hidden":true,`)
	}
	if s.Primary() {
		b.Raw(`"primary":true,`)
	}

	b.Raw(`"characteristics":[`)
	for i, c := range s.Characteristics() {
		if i > 0 {
			b.Byte(',')
		}
		Characteristic(b, c, serviceFlags, -1)
	}
	b.Raw("]}")
}

// Accessory renders an accessory with its services.
func Accessory(b *Buffer, a *model.Accessory) {
	b.Raw(`{"aid":`)
	b.Int(a.AID())
	b.Raw(`,"services":[`)
	for i, s := range a.Services() {
		if i > 0 {
			b.Byte(',')
		}
		Service(b, s)
	}
	b.Raw("]}")
}

// Database renders the whole attribute database.
func Database(b *Buffer, db *model.Database) {
	b.Raw(`{"accessories":[`)
	for i, a := range db.Accessories() {
		if i > 0 {
			b.Byte(',')
		}
		Accessory(b, a)
	}
	b.Raw("]}")
}
