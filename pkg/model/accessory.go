package model

// Accessory is a top-level exposed unit identified by its aid.
type Accessory struct {
	db *Database

	aid int

	// iidCount is shared by services and characteristics.
	iidCount int

	services []*Service
}

// AID returns the accessory id.
func (a *Accessory) AID() int { return a.aid }

// Services returns the services in creation order.
func (a *Accessory) Services() []*Service { return a.services }

// AddService creates a service in this accessory.
func (a *Accessory) AddService(typ string, opts ...ServiceOption) *Service {
	if a == nil {
		precondition("cannot create a service without an accessory")
	}
	a.db.mustBeOpen()

	s := &Service{
		accessory: a,
		iid:       a.nextIID(),
		typ:       typ,
	}
	for _, opt := range opts {
		opt(s)
	}

	a.services = append(a.services, s)
	return s
}

// Characteristics returns every characteristic of the accessory in
// service order.
func (a *Accessory) Characteristics() []*Characteristic {
	var all []*Characteristic
	for _, s := range a.services {
		all = append(all, s.characteristics...)
	}
	return all
}

func (a *Accessory) nextIID() int {
	a.iidCount++
	return a.iidCount
}
