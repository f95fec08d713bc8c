package model

import "github.com/hapspan/hapspan-go/pkg/wire"

// UpdateFunc is a service's commit hook. It inspects the staged values of
// the service's updated characteristics and accepts (StatusOK) or rejects
// them as a group.
type UpdateFunc func(s *Service) wire.Status

// Service groups the characteristics of one capability of an accessory.
type Service struct {
	accessory *Accessory

	iid     int
	typ     string
	hidden  bool
	primary bool

	characteristics []*Characteristic

	update UpdateFunc
}

// ServiceOption configures a service at creation.
type ServiceOption func(*Service)

// Primary marks the service as the accessory's primary service.
func Primary() ServiceOption {
	return func(s *Service) { s.primary = true }
}

// Hidden marks the service as hidden from users.
func Hidden() ServiceOption {
	return func(s *Service) { s.hidden = true }
}

// WithUpdate sets the commit hook.
func WithUpdate(fn UpdateFunc) ServiceOption {
	return func(s *Service) { s.update = fn }
}

// IID returns the instance id.
func (s *Service) IID() int { return s.iid }

// Type returns the service type.
func (s *Service) Type() string { return s.typ }

// Hidden returns true if the service is hidden.
func (s *Service) Hidden() bool { return s.hidden }

// Primary returns true if the service is primary.
func (s *Service) Primary() bool { return s.primary }

// Accessory returns the owning accessory.
func (s *Service) Accessory() *Accessory { return s.accessory }

// Characteristics returns the characteristics in creation order.
func (s *Service) Characteristics() []*Characteristic { return s.characteristics }

// SetUpdate replaces the commit hook. Only allowed during setup.
func (s *Service) SetUpdate(fn UpdateFunc) {
	s.accessory.db.mustBeOpen()
	s.update = fn
}

// AddCharacteristic creates a characteristic in this service. The initial
// value fixes the characteristic's format.
func (s *Service) AddCharacteristic(typ string, perms Perm, initial Value, opts ...CharacteristicOption) *Characteristic {
	if s == nil {
		precondition("cannot create a characteristic without a service")
	}
	db := s.accessory.db
	db.mustBeOpen()

	c := &Characteristic{
		service:  s,
		aid:      s.accessory.aid,
		iid:      s.accessory.nextIID(),
		typ:      typ,
		perms:    perms,
		format:   initial.format,
		value:    initial,
		newValue: initial,
		ev:       make([]bool, db.slots),
	}
	for _, opt := range opts {
		opt(c)
	}

	s.characteristics = append(s.characteristics, c)
	db.index[wire.ID{AID: c.aid, IID: c.iid}] = c
	return c
}

// Staged returns the characteristics with a staged value.
func (s *Service) Staged() []*Characteristic {
	var staged []*Characteristic
	for _, c := range s.characteristics {
		if c.updated {
			staged = append(staged, c)
		}
	}
	return staged
}

// Commit runs the commit hook. A service without a hook accepts every write.
func (s *Service) Commit() wire.Status {
	if s.update == nil {
		return wire.StatusOK
	}
	return s.update(s)
}
