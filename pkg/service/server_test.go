package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hapspan/hapspan-go/pkg/discovery"
	"github.com/hapspan/hapspan-go/pkg/discovery/mocks"
	"github.com/hapspan/hapspan-go/pkg/log"
	"github.com/hapspan/hapspan-go/pkg/model"
	"github.com/hapspan/hapspan-go/pkg/render"
)

// Test database ids:
//
//	1.2 Identify (pw)   1.3 Name (pr)
//	1.5 On (rw/ev)      1.6 Brightness (rw/ev, 0..100)
//	1.8 Button (rw/ev, auto-off 1s)
func newTestDB(slots int) *model.Database {
	db := model.NewDatabase(slots)
	acc := db.AddAccessory()

	info := acc.AddService("3E")
	info.AddCharacteristic("14", model.PermWrite, model.BoolValue(false))
	info.AddCharacteristic("23", model.PermRead, model.StringValue("Lamp"))

	bulb := acc.AddService("43", model.Primary())
	bulb.AddCharacteristic("25", model.PermReadWriteNotify, model.BoolValue(false))
	bulb.AddCharacteristic("8", model.PermReadWriteNotify, model.IntValue(0)).AttachRange(0, 100, 1)

	sw := acc.AddService("49")
	sw.AddCharacteristic("25", model.PermReadWriteNotify, model.BoolValue(false), model.WithAutoOff(time.Second))

	db.Seal()
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixedEviction always evicts the same slot.
type fixedEviction int

func (f fixedEviction) Choose(int) int { return int(f) }

// recordingLogger keeps every protocol event.
type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *recordingLogger) Log(e log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingLogger) count(category log.Category) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Category == category {
			n++
		}
	}
	return n
}

func startServer(t *testing.T, slots int, mutate func(*Config)) *Server {
	t.Helper()

	config := DefaultConfig()
	config.ListenAddress = "127.0.0.1:0"
	config.MaxConnections = slots
	config.PollInterval = 5 * time.Millisecond
	if mutate != nil {
		mutate(&config)
	}

	srv, err := NewServer(newTestDB(slots), config)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

type message struct {
	start  string
	header textproto.MIMEHeader
	body   string
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	tp   *textproto.Reader
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, tp: textproto.NewReader(bufio.NewReader(conn))}
}

// dialAll connects n clients in order and waits until each has a slot, so
// client i occupies slot i.
func dialAll(t *testing.T, srv *Server, n int) []*testClient {
	t.Helper()
	clients := make([]*testClient, n)
	for i := range clients {
		clients[i] = dial(t, srv)
		want := i + 1
		require.Eventually(t, func() bool { return occupied(srv) == want }, 2*time.Second, 5*time.Millisecond)
	}
	return clients
}

func occupied(srv *Server) int {
	n := 0
	for _, st := range srv.Status() {
		if st.Occupied {
			n++
		}
	}
	return n
}

func (c *testClient) send(method, path, body string) {
	c.t.Helper()
	req := fmt.Sprintf("%s %s HTTP/1.1\r\nHost: lamp\r\nContent-Length: %d\r\n\r\n%s", method, path, len(body), body)
	_, err := c.conn.Write([]byte(req))
	require.NoError(c.t, err)
}

func (c *testClient) read() message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	start, err := c.tp.ReadLine()
	require.NoError(c.t, err)
	header, err := c.tp.ReadMIMEHeader()
	require.NoError(c.t, err)

	n := 0
	if cl := header.Get("Content-Length"); cl != "" {
		n, err = strconv.Atoi(cl)
		require.NoError(c.t, err)
	}
	body := make([]byte, n)
	_, err = io.ReadFull(c.tp.R, body)
	require.NoError(c.t, err)
	return message{start: start, header: header, body: string(body)}
}

func (c *testClient) do(method, path, body string) message {
	c.t.Helper()
	c.send(method, path, body)
	return c.read()
}

func TestServerAccessories(t *testing.T) {
	srv := startServer(t, 2, nil)
	c := dial(t, srv)

	m := c.do("GET", "/accessories", "")
	assert.Equal(t, "HTTP/1.1 200 OK", m.start)
	assert.Equal(t, ContentType, m.header.Get("Content-Type"))

	want := render.Render(func(b *render.Buffer) { render.Database(b, srv.Database()) })
	assert.Equal(t, string(want), m.body)
}

func TestServerReadCharacteristics(t *testing.T) {
	srv := startServer(t, 2, nil)
	c := dial(t, srv)

	t.Run("AllReadable", func(t *testing.T) {
		m := c.do("GET", "/characteristics?id=1.5,1.6", "")
		assert.Equal(t, "HTTP/1.1 200 OK", m.start)
		assert.JSONEq(t, `{"characteristics":[{"iid":5,"value":false,"aid":1},{"iid":6,"value":0,"aid":1}]}`, m.body)
	})

	t.Run("WithFailures", func(t *testing.T) {
		m := c.do("GET", "/characteristics?id=1.5,1.2,1.99", "")
		assert.Equal(t, "HTTP/1.1 207 Multi-Status", m.start)
		assert.JSONEq(t, `{"characteristics":[
			{"iid":5,"value":false,"aid":1,"status":0},
			{"iid":2,"aid":1,"status":-70405},
			{"iid":99,"aid":1,"status":-70409}]}`, m.body)
	})

	t.Run("Malformed", func(t *testing.T) {
		m := c.do("GET", "/characteristics?id=abc", "")
		assert.Equal(t, "HTTP/1.1 400 Bad Request", m.start)
		assert.Empty(t, m.body)
	})
}

func TestServerWrite(t *testing.T) {
	srv := startServer(t, 2, nil)
	c := dial(t, srv)

	m := c.do("PUT", "/characteristics", `{"characteristics":[{"aid":1,"iid":6,"value":42}]}`)
	assert.Equal(t, "HTTP/1.1 204 No Content", m.start)
	assert.Empty(t, m.body)

	m = c.do("GET", "/characteristics?id=1.6", "")
	assert.JSONEq(t, `{"characteristics":[{"iid":6,"value":42,"aid":1}]}`, m.body)

	m = c.do("PUT", "/characteristics", `{"characteristics":[{"aid":1,"iid":3,"value":"x"},{"aid":1,"iid":5,"value":true}]}`)
	assert.Equal(t, "HTTP/1.1 207 Multi-Status", m.start)
	assert.JSONEq(t, `{"characteristics":[{"aid":1,"iid":3,"status":-70404},{"aid":1,"iid":5,"status":0}]}`, m.body)

	m = c.do("PUT", "/characteristics", `{"characteristics":[{"aid":1}]}`)
	assert.Equal(t, "HTTP/1.1 400 Bad Request", m.start)
	assert.Equal(t, "0", m.header.Get("Content-Length"))
}

func TestServerRouting(t *testing.T) {
	srv := startServer(t, 1, nil)
	c := dial(t, srv)

	assert.Equal(t, "HTTP/1.1 404 Not Found", c.do("GET", "/pairings", "").start)
	assert.Equal(t, "HTTP/1.1 405 Method Not Allowed", c.do("POST", "/accessories", "").start)
}

type lockedPairing struct{}

func (lockedPairing) Controller() *Controller { return nil }
func (lockedPairing) Reset()                  {}

func TestServerRequiresController(t *testing.T) {
	srv := startServer(t, 1, func(c *Config) {
		c.NewPairing = func() Pairing { return lockedPairing{} }
	})
	c := dial(t, srv)

	m := c.do("GET", "/accessories", "")
	assert.Equal(t, "HTTP/1.1 470 Connection Authorization Required", m.start)
	assert.JSONEq(t, `{"status":-70401}`, m.body)

	st := srv.Status()[0]
	assert.True(t, st.Occupied)
	assert.Empty(t, st.ControllerID)
}

func TestServerEvents(t *testing.T) {
	srv := startServer(t, 3, nil)
	clients := dialAll(t, srv, 3)
	a, b, idle := clients[0], clients[1], clients[2]

	subscribe := `{"characteristics":[{"aid":1,"iid":5,"ev":true}]}`
	assert.Equal(t, "HTTP/1.1 204 No Content", a.do("PUT", "/characteristics", subscribe).start)
	assert.Equal(t, "HTTP/1.1 204 No Content", b.do("PUT", "/characteristics", subscribe).start)

	m := b.do("PUT", "/characteristics", `{"characteristics":[{"aid":1,"iid":5,"value":1}]}`)
	assert.Equal(t, "HTTP/1.1 204 No Content", m.start)

	ev := a.read()
	assert.Equal(t, "EVENT/1.0 200 OK", ev.start)
	assert.Equal(t, ContentType, ev.header.Get("Content-Type"))
	assert.JSONEq(t, `{"characteristics":[{"iid":5,"value":true,"aid":1}]}`, ev.body)

	// The writer and the unsubscribed client only see their own responses.
	assert.Equal(t, "HTTP/1.1 200 OK", b.do("GET", "/characteristics?id=1.5&ev=1", "").start)
	m = idle.do("GET", "/characteristics?id=1.5&ev=1", "")
	assert.JSONEq(t, `{"characteristics":[{"iid":5,"value":true,"aid":1,"ev":false}]}`, m.body)
}

func TestServerPublish(t *testing.T) {
	srv := startServer(t, 2, nil)
	c := dial(t, srv)

	assert.Equal(t, "HTTP/1.1 204 No Content",
		c.do("PUT", "/characteristics", `{"characteristics":[{"aid":1,"iid":6,"ev":1}]}`).start)

	ctx := context.Background()
	require.NoError(t, srv.Publish(ctx, 1, 6, model.IntValue(75)))

	ev := c.read()
	assert.Equal(t, "EVENT/1.0 200 OK", ev.start)
	assert.JSONEq(t, `{"characteristics":[{"iid":6,"value":75,"aid":1}]}`, ev.body)

	assert.ErrorIs(t, srv.Publish(ctx, 1, 42, model.IntValue(1)), ErrUnknownID)
	assert.ErrorIs(t, srv.Publish(ctx, 1, 6, model.BoolValue(true)), model.ErrFormatMismatch)
}

func TestServerPublishConcurrentWithWrites(t *testing.T) {
	srv := startServer(t, 2, nil)
	c := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			assert.NoError(t, srv.Publish(ctx, 1, 6, model.IntValue(int32(i%101))))
		}
	}()

	for i := 0; i < 50; i++ {
		body := fmt.Sprintf(`{"characteristics":[{"aid":1,"iid":6,"value":%d}]}`, i)
		assert.Equal(t, "HTTP/1.1 204 No Content", c.do("PUT", "/characteristics", body).start)
	}
	wg.Wait()

	require.NoError(t, srv.Publish(ctx, 1, 6, model.IntValue(99)))
	require.Eventually(t, func() bool {
		m := c.do("GET", "/characteristics?id=1.6", "")
		return strings.Contains(m.body, `"iid":6,"value":99`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerAutoOff(t *testing.T) {
	clock := newFakeClock()
	srv := startServer(t, 1, func(c *Config) { c.Clock = clock.Now })
	c := dial(t, srv)

	m := c.do("PUT", "/characteristics", `{"characteristics":[{"aid":1,"iid":8,"ev":true},{"aid":1,"iid":8,"value":true}]}`)
	assert.Equal(t, "HTTP/1.1 204 No Content", m.start)

	clock.Advance(2 * time.Second)

	// Auto-off is device-initiated, so the writer is notified too.
	ev := c.read()
	assert.Equal(t, "EVENT/1.0 200 OK", ev.start)
	assert.JSONEq(t, `{"characteristics":[{"iid":8,"value":false,"aid":1}]}`, ev.body)
}

func TestServerEviction(t *testing.T) {
	events := make(chan Event, 16)
	srv := startServer(t, 2, func(c *Config) { c.Eviction = fixedEviction(0) })
	srv.OnEvent(func(e Event) { events <- e })

	clients := dialAll(t, srv, 2)
	first := clients[0]
	firstID := srv.Status()[0].ConnectionID

	assert.Equal(t, "HTTP/1.1 204 No Content",
		first.do("PUT", "/characteristics", `{"characteristics":[{"aid":1,"iid":5,"ev":true}]}`).start)

	third := dial(t, srv)
	require.Eventually(t, func() bool {
		st := srv.Status()[0]
		return st.Occupied && st.ConnectionID != firstID
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, first.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := first.tp.ReadLine()
	assert.Error(t, err, "evicted connection should be closed")

	// The new occupant of slot 0 starts unsubscribed.
	m := third.do("GET", "/characteristics?id=1.5&ev=1", "")
	assert.JSONEq(t, `{"characteristics":[{"iid":5,"value":false,"aid":1,"ev":false}]}`, m.body)

	seen := map[EventType]int{}
	timeout := time.After(2 * time.Second)
	for seen[EventEvicted] == 0 {
		select {
		case e := <-events:
			seen[e.Type]++
		case <-timeout:
			t.Fatal("no eviction event")
		}
	}
}

func TestServerDisconnect(t *testing.T) {
	srv := startServer(t, 2, nil)
	c := dial(t, srv)
	require.Eventually(t, func() bool { return occupied(srv) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.conn.Close())
	assert.Eventually(t, func() bool { return occupied(srv) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServerStatus(t *testing.T) {
	srv := startServer(t, 2, nil)
	c := dial(t, srv)
	c.do("GET", "/accessories", "")

	status := srv.Status()
	require.Len(t, status, 2)
	assert.True(t, status[0].Occupied)
	assert.Equal(t, OpenControllerID, status[0].ControllerID)
	assert.True(t, status[0].Admin)
	assert.NotEmpty(t, status[0].ConnectionID)
	assert.True(t, strings.HasPrefix(status[0].RemoteAddr, "127.0.0.1:"))
	assert.False(t, status[1].Occupied)
}

func TestServerProtocolLog(t *testing.T) {
	rec := &recordingLogger{}
	srv := startServer(t, 1, func(c *Config) { c.ProtocolLogger = rec })
	c := dial(t, srv)

	c.do("PUT", "/characteristics", `{"characteristics":[{"aid":1,"iid":5,"value":true}]}`)

	// The response is logged after it is written.
	assert.Eventually(t, func() bool { return rec.count(log.CategoryMessage) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.count(log.CategoryUpdate))
	assert.Equal(t, 1, rec.count(log.CategoryState))
}

func TestServerLifecycle(t *testing.T) {
	config := DefaultConfig()
	config.ListenAddress = "127.0.0.1:0"
	config.MaxConnections = 1

	srv, err := NewServer(newTestDB(1), config)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, srv.State())
	assert.ErrorIs(t, srv.Stop(), ErrNotStarted)

	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, StateRunning, srv.State())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, srv.Stop())
	assert.Equal(t, StateStopped, srv.State())
}

func TestNewServerErrors(t *testing.T) {
	config := DefaultConfig()
	config.MaxConnections = 2

	_, err := NewServer(newTestDB(3), config)
	assert.ErrorIs(t, err, ErrSlotMismatch)

	open := model.NewDatabase(2)
	open.AddAccessory()
	_, err = NewServer(open, config)
	assert.ErrorIs(t, err, ErrNotSealed)

	config.MaxConnections = 0
	_, err = NewServer(newTestDB(1), config)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestServerAdvertises(t *testing.T) {
	adv := mocks.NewMockAdvertiser(t)
	adv.EXPECT().Advertise(mock.Anything, mock.MatchedBy(func(info *discovery.AccessoryInfo) bool {
		return info.Name == "Lamp" && info.Port != 0 && info.ConfigNumber == 3
	})).Return(nil).Once()
	adv.EXPECT().Stop().Once()

	config := DefaultConfig()
	config.ListenAddress = "127.0.0.1:0"
	config.MaxConnections = 1
	config.Advertiser = adv
	config.AccessoryInfo = &discovery.AccessoryInfo{Name: "Lamp", ID: "0E:7A:11:C2:54:9B", ConfigNumber: 3}

	srv, err := NewServer(newTestDB(1), config)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop())
}
