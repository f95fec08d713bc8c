package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/hapspan/hapspan-go/pkg/discovery"
	"github.com/hapspan/hapspan-go/pkg/log"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("server not started")
	ErrAlreadyStarted = errors.New("server already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrNotSealed      = errors.New("database must be sealed")
	ErrSlotMismatch   = errors.New("database slot count does not match MaxConnections")
	ErrUnknownID      = errors.New("unknown characteristic")
	ErrBodyTooLarge   = errors.New("request body too large")
)

// MaxBodySize is the largest request body accepted.
const MaxBodySize = 64 << 10

// ContentType is the media type of every JSON body.
const ContentType = "application/hap+json"

// ServiceState represents the server state.
type ServiceState uint8

const (
	// StateIdle - server created but not started.
	StateIdle ServiceState = iota

	// StateRunning - server is accepting connections.
	StateRunning

	// StateStopped - server has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Server.
type Config struct {
	// ListenAddress is the address to listen on (e.g., ":51827").
	ListenAddress string

	// MaxConnections is the number of connection slots. It must equal the
	// slot count of the database.
	MaxConnections int

	// PollInterval bounds how long the serving goroutine sleeps between
	// passes when nothing wakes it.
	PollInterval time.Duration

	// WriteTimeout bounds each response and event write.
	WriteTimeout time.Duration

	// Eviction chooses the slot to drop when all are occupied.
	// Defaults to RandomEviction seeded from the clock.
	Eviction EvictionPolicy

	// NewPairing creates the pairing collaborator of a slot.
	// Defaults to OpenPairing.
	NewPairing func() Pairing

	// Advertiser announces the accessory while running (optional).
	Advertiser discovery.Advertiser

	// AccessoryInfo is advertised once the listen port is known.
	AccessoryInfo *discovery.AccessoryInfo

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures protocol events (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddress:  ":51827",
		MaxConnections: 8,
		PollInterval:   50 * time.Millisecond,
		WriteTimeout:   5 * time.Second,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.MaxConnections < 1 {
		return ErrInvalidConfig
	}
	if c.PollInterval <= 0 || c.WriteTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.Advertiser != nil && c.AccessoryInfo == nil {
		return ErrInvalidConfig
	}
	return nil
}

// Event types for server callbacks.
type EventType uint8

const (
	// EventConnected - connection assigned to a slot.
	EventConnected EventType = iota

	// EventDisconnected - connection closed by the peer or on error.
	EventDisconnected

	// EventEvicted - connection dropped to make room for a new one.
	EventEvicted

	// EventValueChanged - a controller wrote a characteristic value.
	EventValueChanged
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventEvicted:
		return "EVICTED"
	case EventValueChanged:
		return "VALUE_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// Event represents a server event.
type Event struct {
	// Type is the event type.
	Type EventType

	// Slot is the connection slot.
	Slot int

	// ConnectionID identifies the connection.
	ConnectionID string

	// RemoteAddr is the peer address.
	RemoteAddr string

	// AID and IID address the characteristic (value change events).
	AID int
	IID int

	// Value is the new value literal (value change events).
	Value string

	// Error is set if the connection ended on an error.
	Error error
}

// EventHandler handles server events.
type EventHandler func(Event)
