package interaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hapspan/hapspan-go/pkg/log"
	"github.com/hapspan/hapspan-go/pkg/model"
	"github.com/hapspan/hapspan-go/pkg/wire"
)

// fixture is a two-service accessory:
//
//	1.1 lightbulb   1.2 On (rw ev)   1.3 Brightness (rw ev)
//	1.4 fan         1.5 Active (rw)  1.6 Model (read only)  1.7 Button (rw ev, auto-off)
type fixture struct {
	db      *model.Database
	engine  *Engine
	now     time.Time
	on      *model.Characteristic
	bri     *model.Characteristic
	active  *model.Characteristic
	mdl     *model.Characteristic
	button  *model.Characteristic
	bulbRet wire.Status
	fanRet  wire.Status
	calls   map[string]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		now:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		calls: map[string]int{},
	}

	f.db = model.NewDatabase(4)
	acc := f.db.AddAccessory()
	bulb := acc.AddService("43", model.WithUpdate(func(s *model.Service) wire.Status {
		f.calls["bulb"]++
		return f.bulbRet
	}))
	f.on = bulb.AddCharacteristic("25", model.PermReadWriteNotify, model.BoolValue(false))
	f.bri = bulb.AddCharacteristic("8", model.PermReadWriteNotify, model.IntValue(10))

	fan := acc.AddService("B7", model.WithUpdate(func(s *model.Service) wire.Status {
		f.calls["fan"]++
		return f.fanRet
	}))
	f.active = fan.AddCharacteristic("B0", model.PermRead|model.PermWrite, model.Uint8Value(0))
	f.mdl = fan.AddCharacteristic("21", model.PermRead, model.StringValue("F1"))
	f.button = fan.AddCharacteristic("25", model.PermReadWriteNotify, model.BoolValue(false),
		model.WithAutoOff(5*time.Second))
	f.db.Seal()

	f.engine = NewEngine(f.db, Config{Clock: func() time.Time { return f.now }})
	return f
}

func value(aid, iid int, v string) wire.WriteItem {
	return wire.WriteItem{AID: aid, IID: iid, Value: &v}
}

func ev(aid, iid int, on string) wire.WriteItem {
	return wire.WriteItem{AID: aid, IID: iid, Ev: &on}
}

func statuses(b *Batch) []wire.Status {
	out := make([]wire.Status, len(b.Results))
	for i, r := range b.Results {
		out[i] = r.Status
	}
	return out
}

func TestUpdateCommitsService(t *testing.T) {
	f := newFixture(t)

	b := f.engine.Update(0, []wire.WriteItem{value(1, 2, "true"), value(1, 3, "80")})

	assert.Equal(t, []wire.Status{wire.StatusOK, wire.StatusOK}, statuses(b))
	assert.True(t, b.AllOK())
	assert.Equal(t, 1, f.calls["bulb"], "hook runs once per service")
	assert.True(t, f.on.Value().Bool())
	assert.Equal(t, int64(80), f.bri.Value().Int())
	assert.False(t, f.on.IsUpdated())
	assert.False(t, f.bri.IsUpdated())
}

func TestUpdateBatchAtomicity(t *testing.T) {
	f := newFixture(t)
	f.bulbRet = wire.StatusUnableToCommunicate

	b := f.engine.Update(0, []wire.WriteItem{value(1, 2, "1"), value(1, 3, "55")})

	assert.Equal(t, []wire.Status{wire.StatusUnableToCommunicate, wire.StatusUnableToCommunicate}, statuses(b))
	assert.False(t, f.on.Value().Bool())
	assert.Equal(t, int64(10), f.bri.Value().Int())
	assert.Equal(t, int64(10), f.bri.NewValue().Int())
	assert.False(t, f.on.IsUpdated())
	assert.False(t, b.AllOK())
}

func TestUpdateCrossServiceIndependence(t *testing.T) {
	f := newFixture(t)
	f.fanRet = wire.StatusBusy

	b := f.engine.Update(0, []wire.WriteItem{value(1, 5, "2"), value(1, 2, "true")})

	assert.Equal(t, []wire.Status{wire.StatusBusy, wire.StatusOK}, statuses(b))
	assert.Equal(t, uint64(0), f.active.Value().Uint())
	assert.True(t, f.on.Value().Bool())
	assert.Equal(t, 1, f.calls["fan"])
	assert.Equal(t, 1, f.calls["bulb"])
}

func TestUpdateIdempotent(t *testing.T) {
	f := newFixture(t)
	items := []wire.WriteItem{value(1, 3, "42")}

	for i := 0; i < 2; i++ {
		b := f.engine.Update(0, items)
		require.True(t, b.AllOK())
		assert.Equal(t, int64(42), f.bri.Value().Int())
	}
}

func TestUpdatePerItemFailures(t *testing.T) {
	f := newFixture(t)

	b := f.engine.Update(1, []wire.WriteItem{
		value(1, 6, "F2"),     // read only
		value(9, 1, "1"),      // unknown accessory
		value(1, 99, "1"),     // unknown iid
		value(1, 3, "bright"), // bad literal
		value(1, 5, "256"),    // out of uint8 range
		ev(1, 5, "1"),         // no notify permission
		ev(1, 2, "maybe"),     // bad ev literal
		ev(1, 5, "0"),         // disabling is always allowed
	})

	assert.Equal(t, []wire.Status{
		wire.StatusReadOnly,
		wire.StatusUnknownResource,
		wire.StatusUnknownResource,
		wire.StatusInvalidValue,
		wire.StatusInvalidValue,
		wire.StatusNotifyNotAllowed,
		wire.StatusInvalidValue,
		wire.StatusOK,
	}, statuses(b))
	assert.Equal(t, "\"F1\"", f.mdl.Value().String())
	assert.Zero(t, f.calls["bulb"]+f.calls["fan"], "no hook runs without pending items")
}

func TestUpdateFailedItemsKeepOwnStatus(t *testing.T) {
	f := newFixture(t)
	f.fanRet = wire.StatusOK

	// The read-only write to the fan service keeps ReadOnly even though the
	// fan's group commit succeeds.
	b := f.engine.Update(0, []wire.WriteItem{value(1, 5, "1"), value(1, 6, "x")})

	assert.Equal(t, []wire.Status{wire.StatusOK, wire.StatusReadOnly}, statuses(b))
	assert.Equal(t, uint64(1), f.active.Value().Uint())
}

func TestUpdatePendingHookResult(t *testing.T) {
	f := newFixture(t)
	f.bulbRet = wire.StatusPending

	b := f.engine.Update(0, []wire.WriteItem{value(1, 2, "1")})

	assert.Equal(t, []wire.Status{wire.StatusUnableToCommunicate}, statuses(b))
	assert.False(t, f.on.Value().Bool())
	assert.NotPanics(t, func() { b.StatusBody() })
}

func TestUpdateEvAndValue(t *testing.T) {
	f := newFixture(t)
	on := "1"
	v := "true"

	b := f.engine.Update(2, []wire.WriteItem{{AID: 1, IID: 2, Value: &v, Ev: &on}})

	assert.Equal(t, []wire.Status{wire.StatusOK}, statuses(b))
	assert.True(t, f.on.Notify(2))
	assert.True(t, f.on.Value().Bool())
}

func TestSubscriptionIsolation(t *testing.T) {
	f := newFixture(t)

	f.engine.Update(2, []wire.WriteItem{ev(1, 2, "true")})

	assert.True(t, f.on.Notify(2))
	assert.False(t, f.on.Notify(3))

	// Reusing slot 3 leaves slot 2 alone.
	f.db.ClearNotify(3)
	assert.True(t, f.on.Notify(2))

	// Subscription survives a rejected group commit.
	f.bulbRet = wire.StatusBusy
	f.engine.Update(3, []wire.WriteItem{{AID: 1, IID: 3, Ev: strPtr("1"), Value: strPtr("5")}})
	assert.True(t, f.bri.Notify(3))
	assert.Equal(t, int64(10), f.bri.Value().Int())
}

func TestStatusBody(t *testing.T) {
	f := newFixture(t)

	b := f.engine.Update(0, []wire.WriteItem{value(1, 2, "1"), value(1, 6, "x")})

	assert.Equal(t,
		`{"characteristics":[{"aid":1,"iid":2,"status":0},{"aid":1,"iid":6,"status":-70404}]}`,
		string(b.StatusBody()))
}

func TestEventBody(t *testing.T) {
	f := newFixture(t)

	f.engine.Update(1, []wire.WriteItem{ev(1, 2, "1"), ev(1, 3, "1")})
	f.engine.Update(2, []wire.WriteItem{ev(1, 2, "1")})

	b := f.engine.Update(2, []wire.WriteItem{value(1, 2, "1"), ev(1, 3, "0"), value(1, 6, "x")})

	// Slot 1 sees the write to On; the ev-only and failed items are not events.
	assert.Equal(t, `{"characteristics":[{"iid":2,"value":true,"aid":1}]}`, string(b.EventBody(1)))
	assert.Nil(t, b.EventBody(3), "unsubscribed slot gets nothing")

	// Rejected writes produce no event.
	f.bulbRet = wire.StatusBusy
	b = f.engine.Update(2, []wire.WriteItem{value(1, 3, "5")})
	assert.Nil(t, b.EventBody(1))
}

func TestAutoOff(t *testing.T) {
	f := newFixture(t)
	f.button.SetNotify(0, true)

	b := f.engine.Update(0, []wire.WriteItem{value(1, 7, "1")})
	require.True(t, b.AllOK())
	require.True(t, f.button.Value().Bool())

	deadline, ok := f.engine.NextExpiry()
	require.True(t, ok)
	assert.Equal(t, f.now.Add(5*time.Second), deadline)

	assert.Empty(t, f.engine.Expire(f.now.Add(4*time.Second)))

	changed := f.engine.Expire(f.now.Add(5 * time.Second))
	require.Len(t, changed, 1)
	assert.False(t, f.button.Value().Bool())

	// The writer is notified of the reset, since the device made the change.
	assert.Equal(t, `{"characteristics":[{"iid":7,"value":false,"aid":1}]}`, string(EventBody(changed, 0)))

	_, ok = f.engine.NextExpiry()
	assert.False(t, ok)
}

func TestAutoOffDisarmedByFalse(t *testing.T) {
	f := newFixture(t)

	f.engine.Update(0, []wire.WriteItem{value(1, 7, "1")})
	f.engine.Update(0, []wire.WriteItem{value(1, 7, "0")})

	assert.Zero(t, f.engine.timers.count())
	assert.Empty(t, f.engine.Expire(f.now.Add(time.Minute)))
}

func TestPublish(t *testing.T) {
	f := newFixture(t)
	f.bri.SetNotify(1, true)
	f.bri.SetNotify(3, true)

	c, err := f.engine.Publish(f.bri, model.IntValue(66))
	require.NoError(t, err)
	assert.Equal(t, int64(66), f.bri.Value().Int())

	for _, slot := range []int{1, 3} {
		assert.NotNil(t, EventBody([]*model.Characteristic{c}, slot))
	}
	assert.Nil(t, EventBody([]*model.Characteristic{c}, 2))

	_, err = f.engine.Publish(f.bri, model.BoolValue(true))
	assert.ErrorIs(t, err, model.ErrFormatMismatch)
}

func TestBatchLogEvent(t *testing.T) {
	f := newFixture(t)

	b := f.engine.Update(3, []wire.WriteItem{value(1, 2, "1"), ev(9, 9, "1")})
	e := b.LogEvent("conn-9", f.now)

	assert.Equal(t, log.CategoryUpdate, e.Category)
	assert.Equal(t, 3, e.Slot)
	require.NotNil(t, e.Update)
	require.Len(t, e.Update.Results, 2)
	assert.Equal(t, wire.StatusUnknownResource, e.Update.Results[1].Status)
	assert.Equal(t, "1", *e.Update.Results[0].Value)
}

func strPtr(s string) *string { return &s }
