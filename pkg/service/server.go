package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hapspan/hapspan-go/pkg/interaction"
	"github.com/hapspan/hapspan-go/pkg/log"
	"github.com/hapspan/hapspan-go/pkg/model"
)

// Server serves the accessory attribute database to HAP controllers.
type Server struct {
	mu sync.Mutex

	config Config
	db     *model.Database
	engine *interaction.Engine
	slots  *SlotManager
	router chi.Router
	state  ServiceState

	listener net.Listener

	// incoming hands accepted connections to the serving goroutine.
	incoming chan net.Conn

	// published holds device-initiated changes awaiting the serving goroutine.
	published chan func() *model.Characteristic

	// wake nudges the serving goroutine when input arrives.
	wake chan struct{}

	eventHandlers []EventHandler

	logger         *slog.Logger
	protocolLogger log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server for a sealed database.
func NewServer(db *model.Database, config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !db.Sealed() {
		return nil, ErrNotSealed
	}
	if db.Slots() != config.MaxConnections {
		return nil, fmt.Errorf("%w: %d != %d", ErrSlotMismatch, db.Slots(), config.MaxConnections)
	}

	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Eviction == nil {
		config.Eviction = NewRandomEviction(uint64(config.Clock().UnixNano()))
	}
	protocolLogger := config.ProtocolLogger
	if protocolLogger == nil {
		protocolLogger = log.NoopLogger{}
	}

	s := &Server{
		config: config,
		db:     db,
		engine: interaction.NewEngine(db, interaction.Config{
			Clock:  config.Clock,
			Logger: config.Logger,
		}),
		slots:          NewSlotManager(db, config.Eviction, config.NewPairing, config.Clock),
		state:          StateIdle,
		incoming:       make(chan net.Conn, 1),
		published:      make(chan func() *model.Characteristic, 64),
		wake:           make(chan struct{}, 1),
		logger:         config.Logger,
		protocolLogger: protocolLogger,
		ctx:            context.Background(),
	}
	s.router = s.newRouter()
	return s, nil
}

// Database returns the served database.
func (s *Server) Database() *model.Database {
	return s.db
}

// State returns the server state.
func (s *Server) State() ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// OnEvent registers a handler for server events.
func (s *Server) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// Status returns a snapshot of every connection slot.
func (s *Server) Status() []SlotStatus {
	return s.slots.Status()
}

// Start listens on the configured address, starts advertising, and runs the
// serving goroutine until Stop or ctx cancellation.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateRunning
	s.mu.Unlock()

	if s.config.Advertiser != nil {
		info := *s.config.AccessoryInfo
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			info.Port = tcp.Port
		}
		if err := s.config.Advertiser.Advertise(s.ctx, &info); err != nil {
			s.debugLog("Start: advertise failed", "error", err)
		}
	}

	s.wg.Add(2)
	go s.acceptLoop()
	go s.serveLoop()

	s.debugLog("Start: listening", "address", ln.Addr().String(), "slots", s.slots.Len())
	return nil
}

// Stop closes the listener and every connection and waits for the serving
// goroutine to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopped
	s.mu.Unlock()

	s.cancel()
	_ = s.listener.Close()
	s.wg.Wait()

	if s.config.Advertiser != nil {
		s.config.Advertiser.Stop()
	}
	n := s.slots.ReleaseAll()
	s.debugLog("Stop: closed connections", "count", n)
	return nil
}

// Accept hands a connection to the serving goroutine. It blocks while
// another connection is waiting to be admitted.
func (s *Server) Accept(ctx context.Context, conn net.Conn) error {
	select {
	case s.incoming <- conn:
		s.signal()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sets a characteristic value on behalf of the accessory and
// notifies every subscribed connection. The value is applied by the serving
// goroutine; Publish only validates it and queues the change.
func (s *Server) Publish(ctx context.Context, aid, iid int, v model.Value) error {
	c := s.db.Find(aid, iid)
	if c == nil {
		return fmt.Errorf("%w: %d.%d", ErrUnknownID, aid, iid)
	}
	if v.Format() != c.Format() {
		return fmt.Errorf("%w: %s into %s", model.ErrFormatMismatch, v.Format(), c.Format())
	}

	change := func() *model.Characteristic {
		changed, err := s.engine.Publish(c, v)
		if err != nil {
			s.debugLog("Publish: rejected", "aid", aid, "iid", iid, "error", err)
			return nil
		}
		return changed
	}

	select {
	case s.published <- change:
		s.signal()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll runs one scheduling pass and reports whether it did any work. It must
// only be called from one goroutine; Start runs it on the serving goroutine.
func (s *Server) Poll() bool {
	worked := false

	select {
	case conn := <-s.incoming:
		s.admit(conn)
		worked = true
	default:
	}

	for _, slot := range s.slots.Occupied() {
		if s.slots.Get(slot.index) != slot {
			continue
		}
		select {
		case in := <-slot.inbox:
			worked = true
			if in.err != nil {
				s.drop(slot, EventDisconnected, in.err)
				continue
			}
			s.serve(slot, in)
		default:
		}
	}

	var changed []*model.Characteristic
	for drained := false; !drained; {
		select {
		case change := <-s.published:
			worked = true
			if c := change(); c != nil {
				changed = append(changed, c)
			}
		default:
			drained = true
		}
	}
	changed = append(changed, s.engine.Expire(s.config.Clock())...)
	if len(changed) > 0 {
		worked = true
		s.deliver(changed, -1)
	}

	return worked
}

// acceptLoop accepts incoming TCP connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.debugLog("acceptLoop: accept failed", "error", err)
			continue
		}

		if err := s.Accept(s.ctx, conn); err != nil {
			_ = conn.Close()
			return
		}
	}
}

// serveLoop runs scheduling passes until the context is cancelled.
func (s *Server) serveLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		for s.Poll() {
			if s.ctx.Err() != nil {
				return
			}
		}
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

// admit assigns a slot to a new connection and starts its reader.
func (s *Server) admit(conn net.Conn) {
	slot, evicted := s.slots.Assign(conn)
	if evicted != nil {
		s.logState(evicted, "occupied", "evicted", "all slots in use")
		s.emitEvent(Event{Type: EventEvicted, Slot: evicted.index, ConnectionID: evicted.connID, RemoteAddr: evicted.remote})
		s.debugLog("admit: evicted connection", "slot", evicted.index, "connID", evicted.connID)
	}

	s.logState(slot, "free", "occupied", "")
	s.emitEvent(Event{Type: EventConnected, Slot: slot.index, ConnectionID: slot.connID, RemoteAddr: slot.remote})
	s.debugLog("admit: connection assigned", "slot", slot.index, "connID", slot.connID, "remote", slot.remote)

	go s.readLoop(slot)
}

// drop releases a slot after its connection ended.
func (s *Server) drop(slot *Slot, typ EventType, err error) {
	if !s.slots.Release(slot) {
		return
	}
	reason := ""
	if err != nil && !errors.Is(err, io.EOF) {
		reason = err.Error()
	}
	s.logState(slot, "occupied", "free", reason)
	s.emitEvent(Event{Type: typ, Slot: slot.index, ConnectionID: slot.connID, RemoteAddr: slot.remote, Error: err})
	s.debugLog("drop: slot released", "slot", slot.index, "connID", slot.connID, "reason", reason)
}

// readLoop parses requests from a connection and hands them to the serving
// goroutine one at a time.
func (s *Server) readLoop(slot *Slot) {
	br := bufio.NewReader(slot.conn)
	for {
		in := readRequest(br)
		select {
		case slot.inbox <- in:
			s.signal()
		case <-slot.done:
			return
		}
		if in.err != nil {
			return
		}
	}
}

func readRequest(br *bufio.Reader) inbound {
	req, err := http.ReadRequest(br)
	if err != nil {
		return inbound{err: err}
	}
	if req.ContentLength > MaxBodySize {
		return inbound{err: ErrBodyTooLarge}
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, MaxBodySize+1))
	if err != nil {
		return inbound{err: err}
	}
	if len(body) > MaxBodySize {
		return inbound{err: ErrBodyTooLarge}
	}
	return inbound{req: req, body: body}
}

func (s *Server) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// emitEvent sends an event to all registered handlers.
func (s *Server) emitEvent(event Event) {
	s.mu.Lock()
	handlers := s.eventHandlers
	s.mu.Unlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// debugLog logs a debug message if logging is enabled.
func (s *Server) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
