package service

// Controller is a verified controller on a connection.
type Controller struct {
	// ID is the controller's pairing identifier.
	ID string

	// Admin is true for controllers with admin rights.
	Admin bool
}

// Pairing verifies the controller on one connection slot. Pair setup and
// session encryption live behind this interface.
type Pairing interface {
	// Controller returns the verified controller, or nil if the connection
	// has not been verified yet.
	Controller() *Controller

	// Reset forgets any verification state. It is called whenever the slot
	// gets a new connection.
	Reset()
}

// OpenControllerID identifies the controller of an OpenPairing.
const OpenControllerID = "open"

// OpenPairing treats every connection as a verified admin controller.
type OpenPairing struct{}

// Controller returns an admin controller.
func (OpenPairing) Controller() *Controller {
	return &Controller{ID: OpenControllerID, Admin: true}
}

// Reset does nothing.
func (OpenPairing) Reset() {}

var _ Pairing = OpenPairing{}
