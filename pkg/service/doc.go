// Package service runs the accessory server: it owns the connection slots,
// routes the HTTP-shaped accessory API, and pushes value change events.
//
// # Scheduling
//
// All database and slot mutation happens on one serving goroutine, which
// runs Poll in a loop. One pass:
//
//  1. admits at most one new connection, evicting an occupied slot if all
//     are taken
//  2. serves at most one request from each occupied slot, in slot order
//  3. applies device-initiated changes queued through Publish
//  4. resets expired auto-off characteristics
//
// Value changes are delivered as EVENT messages to every subscribed slot.
// Changes written by a controller are not echoed back to the writer.
//
// The accept loop and the per-slot readers only move bytes: they hand
// accepted connections and parsed requests to the serving goroutine over
// channels.
//
// # Routes
//
//	GET /accessories       full attribute database
//	GET /characteristics   read multiple characteristics (?id=1.5,1.6&meta=1)
//	PUT /characteristics   write batch
//
// Example usage:
//
//	db, _ := raw.Build(config.MaxConnections)
//	db.Seal()
//
//	srv, err := service.NewServer(db, config)
//	srv.Start(ctx)
//	defer srv.Stop()
//
//	srv.Publish(ctx, 1, 10, model.FloatValue(21.5))
package service
