package model

import (
	"fmt"

	"github.com/hapspan/hapspan-go/pkg/wire"
)

// Database is the attribute database: the accessories an accessory server
// exposes, plus the lookup index over their characteristics.
type Database struct {
	// slots is the number of connection slots tracked per characteristic.
	slots int

	accessories []*Accessory

	// index resolves (aid, iid) to a characteristic. The tree never
	// shrinks, so entries stay valid for the life of the database.
	index map[wire.ID]*Characteristic

	sealed bool
}

// NewDatabase creates an empty database tracking notifications for the
// given number of connection slots.
func NewDatabase(slots int) *Database {
	if slots < 1 {
		precondition(fmt.Sprintf("database needs at least one connection slot, got %d", slots))
	}
	return &Database{
		slots: slots,
		index: make(map[wire.ID]*Characteristic),
	}
}

// Slots returns the number of connection slots.
func (db *Database) Slots() int {
	return db.slots
}

// AddAccessory creates an accessory. Its aid is its 1-based position.
func (db *Database) AddAccessory() *Accessory {
	db.mustBeOpen()
	a := &Accessory{
		db:  db,
		aid: len(db.accessories) + 1,
	}
	db.accessories = append(db.accessories, a)
	return a
}

// Accessories returns the accessories in aid order.
func (db *Database) Accessories() []*Accessory {
	return db.accessories
}

// Accessory returns the accessory with the given aid, or nil.
func (db *Database) Accessory(aid int) *Accessory {
	if aid < 1 || aid > len(db.accessories) {
		return nil
	}
	return db.accessories[aid-1]
}

// Find returns the characteristic at (aid, iid), or nil if the aid is out of
// range or the accessory has no characteristic with that iid.
func (db *Database) Find(aid, iid int) *Characteristic {
	if aid < 1 || aid > len(db.accessories) {
		return nil
	}
	return db.index[wire.ID{AID: aid, IID: iid}]
}

// CharacteristicCount returns the number of characteristics.
func (db *Database) CharacteristicCount() int {
	return len(db.index)
}

// ClearNotify clears the subscription flag of a slot on every characteristic.
func (db *Database) ClearNotify(slot int) {
	for _, a := range db.accessories {
		for _, s := range a.services {
			for _, c := range s.characteristics {
				c.ev[slot] = false
			}
		}
	}
}

// Seal ends the setup phase. The topology cannot change afterwards.
func (db *Database) Seal() {
	db.sealed = true
}

// Sealed returns true once Seal has been called.
func (db *Database) Sealed() bool {
	return db.sealed
}

func (db *Database) mustBeOpen() {
	if db.sealed {
		precondition("topology is sealed; nodes can only be added during setup")
	}
}

// precondition halts on a setup error. The topology is fixed before any
// request is served, so there is nothing to recover to.
func precondition(msg string) {
	panic("model: " + msg)
}
