package interaction

import (
	"log/slog"
	"time"

	"github.com/hapspan/hapspan-go/pkg/model"
	"github.com/hapspan/hapspan-go/pkg/wire"
)

// Config configures an Engine.
type Config struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// Logger receives operational logs. Nil disables them.
	Logger *slog.Logger
}

// Engine applies write batches and device-initiated changes to a database.
type Engine struct {
	db     *model.Database
	clock  func() time.Time
	logger *slog.Logger

	timers *autoOffTimers
}

// NewEngine creates an engine for db.
func NewEngine(db *model.Database, config Config) *Engine {
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		db:     db,
		clock:  clock,
		logger: config.Logger,
		timers: newAutoOffTimers(),
	}
}

// Database returns the engine's database.
func (e *Engine) Database() *model.Database {
	return e.db
}

// Update applies a write batch on behalf of the connection in slot.
func (e *Engine) Update(slot int, items []wire.WriteItem) *Batch {
	b := &Batch{
		Slot:    slot,
		Results: make([]Result, len(items)),
	}

	for i, item := range items {
		b.Results[i] = e.resolve(slot, item)
	}
	e.commit(b)

	e.debugLog("update batch applied", "slot", slot, "items", len(items), "allOK", b.AllOK())
	return b
}

// resolve validates one item and applies or stages it.
func (e *Engine) resolve(slot int, item wire.WriteItem) Result {
	r := Result{Item: item}

	c := e.db.Find(item.AID, item.IID)
	if c == nil {
		r.Status = wire.StatusUnknownResource
		return r
	}
	r.Char = c

	if item.HasEv() {
		on, ok := parseEv(*item.Ev)
		if !ok {
			r.Status = wire.StatusInvalidValue
			return r
		}
		if on && !c.Perms().CanNotify() {
			r.Status = wire.StatusNotifyNotAllowed
			return r
		}
		c.SetNotify(slot, on)
		e.debugLog("notification flag set", "slot", slot, "id", item.ID(), "on", on)
	}

	if !item.HasValue() {
		r.Status = wire.StatusOK
		return r
	}

	if !c.Perms().CanWrite() {
		r.Status = wire.StatusReadOnly
		return r
	}

	v, err := model.ParseValue(c.Format(), *item.Value)
	if err != nil {
		e.debugLog("rejected value", "id", item.ID(), "error", err)
		r.Status = wire.StatusInvalidValue
		return r
	}
	if err := c.Stage(v); err != nil {
		r.Status = wire.StatusInvalidValue
		return r
	}

	r.Status = wire.StatusPending
	return r
}

// commit runs each service's hook once, in order of first appearance, and
// applies its verdict to that service's pending items.
func (e *Engine) commit(b *Batch) {
	for i := range b.Results {
		if b.Results[i].Status != wire.StatusPending {
			continue
		}

		svc := b.Results[i].Char.Service()
		status := svc.Commit()
		if status == wire.StatusPending {
			e.warnLog("update hook returned pending", "aid", svc.Accessory().AID(), "iid", svc.IID())
			status = wire.StatusUnableToCommunicate
		}

		for j := i; j < len(b.Results); j++ {
			r := &b.Results[j]
			if r.Status != wire.StatusPending || r.Char.Service() != svc {
				continue
			}
			r.Status = status
			if status == wire.StatusOK {
				r.Char.Commit()
				e.armAutoOff(r.Char)
			} else {
				r.Char.Revert()
			}
		}

		e.debugLog("service commit", "aid", svc.Accessory().AID(), "iid", svc.IID(), "status", status)
	}
}

// Publish sets a characteristic's value on behalf of the accessory itself.
// The returned characteristic is delivered as an event to every subscribed
// slot.
func (e *Engine) Publish(c *model.Characteristic, v model.Value) (*model.Characteristic, error) {
	if err := c.SetValue(v); err != nil {
		return nil, err
	}
	e.armAutoOff(c)
	e.debugLog("value published", "aid", c.AID(), "iid", c.IID(), "value", v.String())
	return c, nil
}

// Expire resets every auto-off characteristic whose delay has passed and
// returns the ones that changed.
func (e *Engine) Expire(now time.Time) []*model.Characteristic {
	var changed []*model.Characteristic
	for _, c := range e.timers.expire(now) {
		if c.Format() != model.FormatBool || !c.Value().Bool() {
			continue
		}
		if err := c.SetValue(model.BoolValue(false)); err != nil {
			e.warnLog("auto-off failed", "aid", c.AID(), "iid", c.IID(), "error", err)
			continue
		}
		changed = append(changed, c)
		e.debugLog("auto-off", "aid", c.AID(), "iid", c.IID())
	}
	return changed
}

// NextExpiry returns the earliest armed auto-off deadline.
func (e *Engine) NextExpiry() (time.Time, bool) {
	return e.timers.next()
}

func (e *Engine) armAutoOff(c *model.Characteristic) {
	d := c.AutoOff()
	if d <= 0 || c.Format() != model.FormatBool {
		return
	}
	if !c.Value().Bool() {
		e.timers.disarm(c)
		return
	}
	e.timers.arm(c, e.clock().Add(d))
}

func parseEv(s string) (bool, bool) {
	switch s {
	case "0", "false":
		return false, true
	case "1", "true":
		return true, true
	}
	return false, false
}

func (e *Engine) debugLog(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) warnLog(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
