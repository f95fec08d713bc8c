// Package model implements the accessory attribute database.
//
// # Hierarchy
//
// The database is a 3-level tree:
//
//	Database > Accessory > Service > Characteristic
//
// An Accessory is one exposed unit (a bridge exposes several). Services group
// the Characteristics that make up one capability, and a Characteristic holds
// a single typed, permissioned value:
//
//	Database
//	├── Accessory 1
//	│   ├── Service iid=1 (AccessoryInformation)
//	│   │   ├── Characteristic iid=2 (Identify)
//	│   │   └── Characteristic iid=3 (Name)
//	│   └── Service iid=4 (Lightbulb, primary)
//	│       ├── Characteristic iid=5 (On)
//	│       └── Characteristic iid=6 (Brightness, range 0..100)
//	└── Accessory 2
//	    └── ...
//
// # Identifiers
//
// Accessory ids (aid) are 1-based and follow creation order. Within one
// accessory, services and characteristics draw instance ids (iid) from a
// single counter, so the ids are unique and increasing across both kinds in
// the order they were added. A characteristic is addressed by (aid, iid).
//
// # Setup and Runtime
//
// The tree is built once through the Add* methods and then sealed. Building
// out of order (a service without an accessory, a range without a
// characteristic) or after sealing is a programming error and panics. At
// runtime only committed values, staged values, and notification flags
// change.
//
// # Staged Writes
//
// Each characteristic carries a committed value and a staged value. A write
// stages the new value and marks the characteristic updated; the owning
// service's update hook then accepts or rejects every staged characteristic
// of that service together, and the staged values are committed or reverted
// as a group.
//
// # Notifications
//
// Every characteristic holds one subscription flag per connection slot. The
// flags are indexed by slot number and cleared in bulk when a slot gets a new
// connection.
//
// The database is not safe for concurrent use. It is owned by the single
// serving goroutine that processes requests.
package model
