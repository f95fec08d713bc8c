package interaction

import (
	"time"

	"github.com/hapspan/hapspan-go/pkg/log"
	"github.com/hapspan/hapspan-go/pkg/model"
	"github.com/hapspan/hapspan-go/pkg/render"
	"github.com/hapspan/hapspan-go/pkg/wire"
)

// Result is the outcome of one write item.
type Result struct {
	Item wire.WriteItem

	// Char is the resolved characteristic, or nil if unknown.
	Char *model.Characteristic

	Status wire.Status
}

// Batch is the outcome of one write request.
type Batch struct {
	// Slot is the slot of the writing connection.
	Slot int

	// Results are in request order.
	Results []Result
}

// AllOK returns true if every item succeeded.
func (b *Batch) AllOK() bool {
	for _, r := range b.Results {
		if r.Status != wire.StatusOK {
			return false
		}
	}
	return true
}

// StatusBody renders the per-item statuses in request order.
func (b *Batch) StatusBody() []byte {
	entries := make([]render.StatusEntry, len(b.Results))
	for i, r := range b.Results {
		entries[i] = render.StatusEntry{ID: r.Item.ID(), Status: r.Status}
	}
	return render.Render(func(buf *render.Buffer) {
		render.StatusList(buf, entries)
	})
}

// Changed returns the characteristics whose value was written successfully.
func (b *Batch) Changed() []*model.Characteristic {
	var changed []*model.Characteristic
	for _, r := range b.Results {
		if r.Status == wire.StatusOK && r.Item.HasValue() {
			changed = append(changed, r.Char)
		}
	}
	return changed
}

// EventBody renders the event payload for slot: the successfully written
// characteristics that slot is subscribed to. It returns nil if there are
// none. Callers skip the writer's own slot.
func (b *Batch) EventBody(slot int) []byte {
	return EventBody(b.Changed(), slot)
}

// EventBody renders the event payload for slot from a set of changed
// characteristics, or nil if slot is subscribed to none of them.
func EventBody(changed []*model.Characteristic, slot int) []byte {
	var chars []*model.Characteristic
	for _, c := range changed {
		if c.Notify(slot) {
			chars = append(chars, c)
		}
	}
	if len(chars) == 0 {
		return nil
	}
	return render.Render(func(buf *render.Buffer) {
		render.Events(buf, chars)
	})
}

// LogEvent returns the protocol capture of the batch.
func (b *Batch) LogEvent(connID string, at time.Time) log.Event {
	results := make([]log.UpdateResult, len(b.Results))
	for i, r := range b.Results {
		results[i] = log.UpdateResult{
			AID:    r.Item.AID,
			IID:    r.Item.IID,
			Value:  r.Item.Value,
			Ev:     r.Item.Ev,
			Status: r.Status,
		}
	}
	return log.Event{
		Timestamp:    at,
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerAccessory,
		Category:     log.CategoryUpdate,
		Slot:         b.Slot,
		Update:       &log.UpdateEvent{Results: results},
	}
}
