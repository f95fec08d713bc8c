package wire

import "strconv"

// Status is a per-characteristic status code as carried on the wire.
type Status int

const (
	// StatusOK indicates the request succeeded.
	StatusOK Status = 0

	// StatusInsufficientPrivileges indicates the controller lacks admin rights.
	StatusInsufficientPrivileges Status = -70401

	// StatusUnableToCommunicate indicates the accessory could not apply the change.
	StatusUnableToCommunicate Status = -70402

	// StatusBusy indicates the resource is busy; try again later.
	StatusBusy Status = -70403

	// StatusReadOnly indicates a write to a characteristic without write permission.
	StatusReadOnly Status = -70404

	// StatusWriteOnly indicates a read of a characteristic without read permission.
	StatusWriteOnly Status = -70405

	// StatusNotifyNotAllowed indicates notifications are not supported.
	StatusNotifyNotAllowed Status = -70406

	// StatusOutOfResources indicates the accessory ran out of resources.
	StatusOutOfResources Status = -70407

	// StatusTimeout indicates the operation timed out.
	StatusTimeout Status = -70408

	// StatusUnknownResource indicates the aid/iid pair does not exist.
	StatusUnknownResource Status = -70409

	// StatusInvalidValue indicates a value or flag literal could not be parsed.
	StatusInvalidValue Status = -70410

	// StatusInsufficientAuthorization indicates missing additional authorization.
	StatusInsufficientAuthorization Status = -70411

	// StatusPending marks a staged write awaiting its service commit.
	// It is internal to the engine and must never be rendered.
	StatusPending Status = 1
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInsufficientPrivileges:
		return "INSUFFICIENT_PRIVILEGES"
	case StatusUnableToCommunicate:
		return "UNABLE_TO_COMMUNICATE"
	case StatusBusy:
		return "BUSY"
	case StatusReadOnly:
		return "READ_ONLY"
	case StatusWriteOnly:
		return "WRITE_ONLY"
	case StatusNotifyNotAllowed:
		return "NOTIFY_NOT_ALLOWED"
	case StatusOutOfResources:
		return "OUT_OF_RESOURCES"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusUnknownResource:
		return "UNKNOWN_RESOURCE"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusInsufficientAuthorization:
		return "INSUFFICIENT_AUTHORIZATION"
	case StatusPending:
		return "PENDING"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusOK
}

// IsError returns true if the status is a final, non-OK outcome.
func (s Status) IsError() bool {
	return s != StatusOK && s != StatusPending
}
