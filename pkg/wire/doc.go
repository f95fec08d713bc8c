// Package wire defines the request and status formats of the accessory
// attribute protocol.
//
// Controllers talk to the accessory with JSON bodies over an HTTP-shaped
// transport. This package covers the parts of that format the attribute
// engine needs:
//
//   - Status: the signed integer status codes reported per characteristic
//   - WriteItem: one entry of a PUT /characteristics batch
//   - ReadQuery: the id list and flags of a GET /characteristics query
//
// # Write Batches
//
// A write batch is an object with a single "characteristics" array:
//
//	{"characteristics":[{"aid":1,"iid":9,"value":1},{"aid":1,"iid":10,"ev":true}]}
//
// Every entry carries aid and iid plus value, ev, or both. Values and
// subscription flags are kept as literal text; interpreting them against a
// characteristic's format is the engine's job. A structural problem anywhere
// rejects the whole batch.
//
// # Read Queries
//
// Read queries name characteristics as "aid.iid" pairs:
//
//	GET /characteristics?id=1.9,2.12&meta=1&perms=1
package wire
