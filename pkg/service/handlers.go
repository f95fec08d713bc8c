package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hapspan/hapspan-go/pkg/interaction"
	"github.com/hapspan/hapspan-go/pkg/log"
	"github.com/hapspan/hapspan-go/pkg/model"
	"github.com/hapspan/hapspan-go/pkg/render"
	"github.com/hapspan/hapspan-go/pkg/wire"
)

// StatusConnectionAuthorizationRequired is returned to unverified
// connections.
const StatusConnectionAuthorizationRequired = 470

// requestState travels with a routed request.
type requestState struct {
	slot *Slot

	// changed collects the characteristics written by the request.
	changed []*model.Characteristic
}

type stateKey struct{}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(stateKey{}).(*requestState)
	return st
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireController)
		r.Get("/accessories", s.handleAccessories)
		r.Get("/characteristics", s.handleReadCharacteristics)
		r.Put("/characteristics", s.handleWriteCharacteristics)
	})
	return r
}

// requireController rejects requests on connections without a verified
// controller.
func (s *Server) requireController(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := stateFrom(r.Context())
		if s.slots.Verify(st.slot) == nil {
			writeJSON(w, StatusConnectionAuthorizationRequired, render.Render(func(b *render.Buffer) {
				b.Raw(`{"status":`)
				b.Int(int(wire.StatusInsufficientPrivileges))
				b.Byte('}')
			}))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAccessories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, render.Render(func(b *render.Buffer) {
		render.Database(b, s.db)
	}))
}

func (s *Server) handleReadCharacteristics(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())

	q, err := wire.ParseReadQuery(r.URL.Query())
	if err != nil {
		s.debugLog("read: malformed query", "slot", st.slot.index, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var flags render.Flags
	if q.Meta {
		flags |= render.WithMeta | render.WithDesc
	}
	if q.Perms {
		flags |= render.WithPerms
	}
	if q.Type {
		flags |= render.WithType
	}
	if q.Events {
		flags |= render.WithEvent
	}

	results, failed := render.ResolveReads(s.db, q.IDs)
	body := render.Render(func(b *render.Buffer) {
		render.ReadCharacteristics(b, results, failed, flags, st.slot.index)
	})

	code := http.StatusOK
	if failed {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, body)
}

func (s *Server) handleWriteCharacteristics(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())

	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	items, err := wire.ParseWriteRequest(data)
	if err != nil {
		s.debugLog("write: malformed batch", "slot", st.slot.index, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	batch := s.engine.Update(st.slot.index, items)
	s.logEvent(st.slot, batch.LogEvent(st.slot.connID, s.config.Clock()))

	st.changed = batch.Changed()
	for _, c := range st.changed {
		s.emitEvent(Event{
			Type:         EventValueChanged,
			Slot:         st.slot.index,
			ConnectionID: st.slot.connID,
			RemoteAddr:   st.slot.remote,
			AID:          c.AID(),
			IID:          c.IID(),
			Value:        c.Value().String(),
		})
	}

	if batch.AllOK() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusMultiStatus, batch.StatusBody())
}

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// serve routes one request and writes the response. Changes made by the
// request are then pushed to the other subscribed slots.
func (s *Server) serve(slot *Slot, in inbound) {
	start := s.config.Clock()
	path := in.req.URL.RequestURI()

	s.logEvent(slot, log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerHTTP,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:     log.MessageTypeRequest,
			Method:   in.req.Method,
			Path:     path,
			BodySize: len(in.body),
			Body:     in.body,
		},
	})

	st := &requestState{slot: slot}
	req := in.req.WithContext(context.WithValue(s.ctx, stateKey{}, st))
	req.Body = io.NopCloser(bytes.NewReader(in.body))

	rb := newResponseBuffer()
	s.router.ServeHTTP(rb, req)

	if err := s.write(slot, responseMessage(rb.status(), rb.body.Bytes())); err != nil {
		s.drop(slot, EventDisconnected, err)
		return
	}

	elapsed := s.config.Clock().Sub(start)
	s.logEvent(slot, log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerHTTP,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:           log.MessageTypeResponse,
			Method:         in.req.Method,
			Path:           path,
			StatusCode:     rb.status(),
			BodySize:       rb.body.Len(),
			Body:           rb.body.Bytes(),
			ProcessingTime: &elapsed,
		},
	})
	s.debugLog("serve: request handled", "slot", slot.index, "method", in.req.Method, "path", path, "status", rb.status())

	if len(st.changed) > 0 {
		s.deliver(st.changed, slot.index)
	}
}

// deliver pushes an event message to every occupied slot subscribed to any
// of the changed characteristics. except skips the writer's slot; pass -1
// to include every slot.
func (s *Server) deliver(changed []*model.Characteristic, except int) {
	for _, slot := range s.slots.Occupied() {
		if slot.index == except {
			continue
		}
		body := interaction.EventBody(changed, slot.index)
		if body == nil {
			continue
		}
		if err := s.write(slot, eventMessage(body)); err != nil {
			s.drop(slot, EventDisconnected, err)
			continue
		}
		s.logEvent(slot, log.Event{
			Direction: log.DirectionOut,
			Layer:     log.LayerHTTP,
			Category:  log.CategoryMessage,
			Message: &log.MessageEvent{
				Type:       log.MessageTypeEvent,
				StatusCode: http.StatusOK,
				BodySize:   len(body),
				Body:       body,
			},
		})
	}
}

func (s *Server) write(slot *Slot, msg []byte) error {
	_ = slot.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	_, err := slot.conn.Write(msg)
	return err
}

// logEvent stamps an event with the slot's identity and logs it.
func (s *Server) logEvent(slot *Slot, event log.Event) {
	event.Timestamp = s.config.Clock()
	event.ConnectionID = slot.connID
	event.Slot = slot.index
	event.RemoteAddr = slot.remote
	if slot.controller != nil {
		event.ControllerID = slot.controller.ID
	}
	s.protocolLogger.Log(event)
}

func (s *Server) logState(slot *Slot, oldState, newState, reason string) {
	s.logEvent(slot, log.Event{
		Layer:    log.LayerTransport,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySlot,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// responseBuffer collects a routed response in memory.
type responseBuffer struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: make(http.Header)}
}

func (rb *responseBuffer) Header() http.Header {
	return rb.header
}

func (rb *responseBuffer) Write(p []byte) (int, error) {
	if rb.code == 0 {
		rb.code = http.StatusOK
	}
	return rb.body.Write(p)
}

func (rb *responseBuffer) WriteHeader(code int) {
	if rb.code == 0 {
		rb.code = code
	}
}

func (rb *responseBuffer) status() int {
	if rb.code == 0 {
		return http.StatusOK
	}
	return rb.code
}

// responseMessage frames a response. 204 carries no headers.
func responseMessage(code int, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(code))
	b.WriteByte(' ')
	b.WriteString(statusText(code))
	b.WriteString("\r\n")
	if code != http.StatusNoContent {
		writeHeaders(&b, body)
	}
	b.WriteString("\r\n")
	b.Write(body)
	return b.Bytes()
}

// eventMessage frames an unsolicited event.
func eventMessage(body []byte) []byte {
	var b bytes.Buffer
	b.WriteString("EVENT/1.0 200 OK\r\n")
	writeHeaders(&b, body)
	b.WriteString("\r\n")
	b.Write(body)
	return b.Bytes()
}

func writeHeaders(b *bytes.Buffer, body []byte) {
	if len(body) > 0 {
		b.WriteString("Content-Type: " + ContentType + "\r\n")
	}
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\n")
}

func statusText(code int) string {
	if code == StatusConnectionAuthorizationRequired {
		return "Connection Authorization Required"
	}
	return http.StatusText(code)
}
