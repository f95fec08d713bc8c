package log

import (
	"time"

	"github.com/hapspan/hapspan-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Slot is the connection slot index.
	Slot int `cbor:"6,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// ControllerID is the verified controller, once known.
	ControllerID string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	Update      *UpdateEvent      `cbor:"12,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the raw byte stream of a slot.
	LayerTransport Layer = 0
	// LayerHTTP is request routing and response framing.
	LayerHTTP Layer = 1
	// LayerAccessory is the attribute database and update engine.
	LayerAccessory Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerHTTP:
		return "HTTP"
	case LayerAccessory:
		return "ACCESSORY"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request, response or pushed event.
	CategoryMessage Category = 0
	// CategoryUpdate indicates a resolved write batch.
	CategoryUpdate Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryUpdate:
		return "UPDATE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw bytes at the transport layer.
type FrameEvent struct {
	// Size is the number of bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxFrameData is the number of bytes kept in a FrameEvent.
const MaxFrameData = 512

// NewFrameEvent captures data, truncated to MaxFrameData.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameData {
		data = data[:MaxFrameData]
		fe.Truncated = true
	}
	fe.Data = append([]byte(nil), data...)
	return fe
}

// MessageEvent captures a routed request, its response, or a pushed event.
type MessageEvent struct {
	// Type distinguishes request/response/event.
	Type MessageType `cbor:"1,keyasint"`

	// Method is the request method (requests and responses).
	Method string `cbor:"2,keyasint,omitempty"`

	// Path is the request path including the query.
	Path string `cbor:"3,keyasint,omitempty"`

	// StatusCode is the HTTP status (responses and events).
	StatusCode int `cbor:"4,keyasint,omitempty"`

	// BodySize is the body length in bytes.
	BodySize int `cbor:"5,keyasint"`

	// Body is the JSON body, if captured.
	Body []byte `cbor:"6,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send
	// (responses only). Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"7,keyasint,omitempty"`
}

// MessageType distinguishes request/response/event.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response.
	MessageTypeResponse MessageType = 1
	// MessageTypeEvent indicates an unsolicited event push.
	MessageTypeEvent MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// UpdateEvent captures the outcome of one write batch.
type UpdateEvent struct {
	Results []UpdateResult `cbor:"1,keyasint"`
}

// UpdateResult is the outcome of one write item.
type UpdateResult struct {
	AID    int         `cbor:"1,keyasint"`
	IID    int         `cbor:"2,keyasint"`
	Value  *string     `cbor:"3,keyasint,omitempty"`
	Ev     *string     `cbor:"4,keyasint,omitempty"`
	Status wire.Status `cbor:"5,keyasint"`
}

// Touches returns true if any result addresses the accessory.
func (u *UpdateEvent) Touches(aid int) bool {
	for _, r := range u.Results {
		if r.AID == aid {
			return true
		}
	}
	return false
}

// StateChangeEvent captures slot and connection lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySlot indicates a slot assignment or eviction.
	StateEntitySlot StateEntity = 1
	// StateEntityPairing indicates a pairing/session state change.
	StateEntityPairing StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySlot:
		return "SLOT"
	case StateEntityPairing:
		return "PAIRING"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the HTTP or HAP status code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
