package service

import (
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hapspan/hapspan-go/pkg/model"
)

// EvictionPolicy picks the slot to drop when every slot is occupied.
type EvictionPolicy interface {
	// Choose returns an index in [0, n).
	Choose(n int) int
}

// RandomEviction picks a uniformly random slot.
type RandomEviction struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomEviction creates a random policy with a fixed seed.
func NewRandomEviction(seed uint64) *RandomEviction {
	return &RandomEviction{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Choose returns a random slot index.
func (e *RandomEviction) Choose(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.IntN(n)
}

// inbound is a request (or read failure) handed from a slot's reader to the
// serving goroutine.
type inbound struct {
	req  *http.Request
	body []byte
	err  error
}

// Slot is one connection slot.
type Slot struct {
	index    int
	conn     net.Conn
	connID   string
	remote   string
	accepted time.Time

	pairing    Pairing
	controller *Controller

	inbox chan inbound
	done  chan struct{}
}

// Index returns the slot index.
func (s *Slot) Index() int { return s.index }

// ConnectionID returns the connection id.
func (s *Slot) ConnectionID() string { return s.connID }

// RemoteAddr returns the peer address.
func (s *Slot) RemoteAddr() string { return s.remote }

// SlotStatus is a snapshot of one slot.
type SlotStatus struct {
	Index        int
	Occupied     bool
	ConnectionID string
	RemoteAddr   string
	Accepted     time.Time

	// ControllerID is empty while the connection is unverified.
	ControllerID string
	Admin        bool
}

// SlotManager tracks which connection occupies each slot.
type SlotManager struct {
	mu    sync.Mutex
	slots []*Slot

	db         *model.Database
	policy     EvictionPolicy
	newPairing func() Pairing
	clock      func() time.Time
}

// NewSlotManager creates a manager with one slot per database slot.
func NewSlotManager(db *model.Database, policy EvictionPolicy, newPairing func() Pairing, clock func() time.Time) *SlotManager {
	if newPairing == nil {
		newPairing = func() Pairing { return OpenPairing{} }
	}
	if clock == nil {
		clock = time.Now
	}
	return &SlotManager{
		slots:      make([]*Slot, db.Slots()),
		db:         db,
		policy:     policy,
		newPairing: newPairing,
		clock:      clock,
	}
}

// Len returns the number of slots.
func (m *SlotManager) Len() int {
	return len(m.slots)
}

// Assign places conn in the first free slot. If every slot is occupied the
// eviction policy picks one, whose connection is closed and returned as
// evicted. The new slot starts with no subscriptions and no controller.
func (m *SlotManager) Assign(conn net.Conn) (slot *Slot, evicted *Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := -1
	for i, s := range m.slots {
		if s == nil {
			index = i
			break
		}
	}
	if index < 0 {
		index = m.policy.Choose(len(m.slots))
		evicted = m.slots[index]
		evicted.close()
	}

	slot = &Slot{
		index:    index,
		conn:     conn,
		connID:   uuid.New().String(),
		remote:   conn.RemoteAddr().String(),
		accepted: m.clock(),
		pairing:  m.newPairing(),
		inbox:    make(chan inbound, 1),
		done:     make(chan struct{}),
	}
	slot.pairing.Reset()
	m.db.ClearNotify(index)
	m.slots[index] = slot
	return slot, evicted
}

// Release closes the slot's connection and frees it. Releasing a slot that
// was already reassigned is a no-op.
func (m *SlotManager) Release(slot *Slot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slots[slot.index] != slot {
		return false
	}
	slot.close()
	m.slots[slot.index] = nil
	return true
}

// ReleaseAll closes every connection.
func (m *SlotManager) ReleaseAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for i, s := range m.slots {
		if s != nil {
			s.close()
			m.slots[i] = nil
			n++
		}
	}
	return n
}

// Get returns the slot at index, or nil if it is free.
func (m *SlotManager) Get(index int) *Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[index]
}

// Occupied returns the occupied slots in index order.
func (m *SlotManager) Occupied() []*Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Slot
	for _, s := range m.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Verify asks the slot's pairing collaborator for its controller and caches
// the result.
func (m *SlotManager) Verify(slot *Slot) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot.controller == nil {
		slot.controller = slot.pairing.Controller()
	}
	return slot.controller
}

// Status returns a snapshot of every slot.
func (m *SlotManager) Status() []SlotStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SlotStatus, len(m.slots))
	for i, s := range m.slots {
		out[i].Index = i
		if s == nil {
			continue
		}
		out[i].Occupied = true
		out[i].ConnectionID = s.connID
		out[i].RemoteAddr = s.remote
		out[i].Accepted = s.accepted
		if s.controller != nil {
			out[i].ControllerID = s.controller.ID
			out[i].Admin = s.controller.Admin
		}
	}
	return out
}

func (s *Slot) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	_ = s.conn.Close()
}
