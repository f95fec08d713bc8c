package render

import (
	"fmt"

	"github.com/hapspan/hapspan-go/pkg/model"
	"github.com/hapspan/hapspan-go/pkg/wire"
)

// ReadResult is the outcome of resolving one id of a read query.
type ReadResult struct {
	ID     wire.ID
	Char   *model.Characteristic
	Status wire.Status
}

// ResolveReads resolves every id of a read query. An id resolves when the
// characteristic exists and is readable. The second result is true if any
// id failed, in which case every object of the response carries a status.
func ResolveReads(db *model.Database, ids []wire.ID) ([]ReadResult, bool) {
	results := make([]ReadResult, len(ids))
	failed := false
	for i, id := range ids {
		results[i].ID = id
		c := db.Find(id.AID, id.IID)
		switch {
		case c == nil:
			results[i].Status = wire.StatusUnknownResource
			failed = true
		case !c.Perms().CanRead():
			results[i].Status = wire.StatusWriteOnly
			failed = true
		default:
			results[i].Char = c
			results[i].Status = wire.StatusOK
		}
	}
	return results, failed
}

// ReadCharacteristics renders a read-multiple response. Resolved entries use
// flags plus the accessory id; unresolved ones only carry their ids. With
// withStatus set, each object also carries its status.
func ReadCharacteristics(b *Buffer, results []ReadResult, withStatus bool, flags Flags, slot int) {
	b.Raw(`{"characteristics":[`)
	for i, r := range results {
		if i > 0 {
			b.Byte(',')
		}

		if r.Char != nil {
			Characteristic(b, r.Char, flags|WithAID, slot)
		} else {
			b.Raw(`{"iid":`)
			b.Int(r.ID.IID)
			b.Raw(`,"aid":`)
			b.Int(r.ID.AID)
			b.Byte('}')
		}

		if withStatus {
			b.TrimLast()
			b.Raw(`,"status":`)
			status(b, r.Status)
			b.Byte('}')
		}
	}
	b.Raw("]}")
}

// StatusEntry is one object of a write response.
type StatusEntry struct {
	ID     wire.ID
	Status wire.Status
}

// StatusList renders a write response in request order.
func StatusList(b *Buffer, entries []StatusEntry) {
	b.Raw(`{"characteristics":[`)
	for i, e := range entries {
		if i > 0 {
			b.Byte(',')
		}
		b.Raw(`{"aid":`)
		b.Int(e.ID.AID)
		b.Raw(`,"iid":`)
		b.Int(e.ID.IID)
		b.Raw(`,"status":`)
		status(b, e.Status)
		b.Byte('}')
	}
	b.Raw("]}")
}

// Events renders an unsolicited event payload for the given characteristics.
func Events(b *Buffer, chars []*model.Characteristic) {
	b.Raw(`{"characteristics":[`)
	for i, c := range chars {
		if i > 0 {
			b.Byte(',')
		}
		Characteristic(b, c, WithAID, -1)
	}
	b.Raw("]}")
}

func status(b *Buffer, s wire.Status) {
	if s == wire.StatusPending {
		panic(fmt.Sprintf("render: status %s must be resolved before rendering", s))
	}
	b.Int(int(s))
}
