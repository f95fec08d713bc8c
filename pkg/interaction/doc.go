// Package interaction implements the characteristic update protocol.
//
// An Engine applies write batches to the attribute database in two passes:
//
//   - Resolve: each item is looked up and validated on its own. Subscription
//     changes ("ev") take effect immediately; value writes are staged and
//     left pending.
//   - Commit: pending items are grouped by owning service. Each service's
//     update hook runs once and its verdict is applied to every pending item
//     of that service, committing or reverting the group together.
//
// A batch spanning several services commits each service independently.
//
//	engine := interaction.NewEngine(db, interaction.Config{Logger: logger})
//	batch := engine.Update(slot, items)
//	if !batch.AllOK() {
//	    body := batch.StatusBody()
//	}
//	for each other slot:
//	    if ev := batch.EventBody(other); ev != nil { push(other, ev) }
//
// The engine also owns auto-off timers for momentary characteristics and the
// publication of device-initiated value changes. Like the database, it must
// only be used from the serving goroutine.
package interaction
