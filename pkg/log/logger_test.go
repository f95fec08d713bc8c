package log

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/hapspan/hapspan-go/pkg/wire"
)

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}
	l.Log(Event{ConnectionID: "ignored"})
}

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{ConnectionID: "conn-1"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("expected one event each, got %d and %d", len(a.events), len(b.events))
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := NewSlogAdapter(logger)

	a.Log(Event{
		ConnectionID: "conn-1",
		Slot:         3,
		Layer:        LayerAccessory,
		Category:     CategoryUpdate,
		Update: &UpdateEvent{Results: []UpdateResult{
			{AID: 1, IID: 9, Status: wire.StatusOK},
			{AID: 1, IID: 10, Status: wire.StatusInvalidValue},
		}},
	})

	out := buf.String()
	for _, want := range []string{"msg=protocol", "slot=3", "layer=ACCESSORY", "items=2", "failed.iid=10", "failed.status=INVALID_VALUE"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "failed.iid=9") {
		t.Errorf("successful item logged as failed: %q", out)
	}
}

func TestSlogAdapterMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	NewSlogAdapter(logger).Log(Event{
		Layer:    LayerHTTP,
		Category: CategoryMessage,
		Message:  &MessageEvent{Type: MessageTypeRequest, Method: "PUT", Path: "/characteristics", BodySize: 42},
	})

	out := buf.String()
	for _, want := range []string{"msg_type=REQUEST", "method=PUT", "path=/characteristics", "body_size=42"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
