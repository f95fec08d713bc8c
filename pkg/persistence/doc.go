// Package persistence stores the accessory server's runtime state across
// restarts.
//
// The state is a small JSON file holding the accessory id and the
// configuration number advertised over mDNS. The configuration number must
// change whenever the attribute database changes shape, so the state also
// records a fingerprint of the rendered database; Reconcile compares it with
// the current database on startup and bumps the number when they differ.
package persistence
