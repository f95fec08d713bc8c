package commands

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hapspan/hapspan-go/pkg/log"
	"github.com/hapspan/hapspan-go/pkg/wire"
)

func strPtr(s string) *string { return &s }

func testEvents() []log.Event {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	elapsed := 1500 * time.Microsecond
	return []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Slot:         0,
			RemoteAddr:   "192.168.1.20:50122",
			Layer:        log.LayerTransport,
			Category:     log.CategoryState,
			StateChange:  &log.StateChangeEvent{Entity: log.StateEntitySlot, OldState: "free", NewState: "occupied"},
		},
		{
			Timestamp:    ts.Add(time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Slot:         0,
			ControllerID: "open",
			Direction:    log.DirectionIn,
			Layer:        log.LayerHTTP,
			Category:     log.CategoryMessage,
			Message:      &log.MessageEvent{Type: log.MessageTypeRequest, Method: "PUT", Path: "/characteristics", BodySize: 2, Body: []byte("{}")},
		},
		{
			Timestamp:    ts.Add(2 * time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Slot:         0,
			Direction:    log.DirectionIn,
			Layer:        log.LayerAccessory,
			Category:     log.CategoryUpdate,
			Update: &log.UpdateEvent{Results: []log.UpdateResult{
				{AID: 1, IID: 5, Value: strPtr("true"), Status: wire.StatusOK},
				{AID: 1, IID: 3, Value: strPtr("x"), Status: wire.StatusReadOnly},
			}},
		},
		{
			Timestamp:    ts.Add(3 * time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Slot:         0,
			Direction:    log.DirectionOut,
			Layer:        log.LayerHTTP,
			Category:     log.CategoryMessage,
			Message:      &log.MessageEvent{Type: log.MessageTypeResponse, Method: "PUT", Path: "/characteristics", StatusCode: 207, ProcessingTime: &elapsed},
		},
		{
			Timestamp:    ts.Add(4 * time.Millisecond),
			ConnectionID: "ffff0000-6789-0123-4567-890abcdef012",
			Slot:         1,
			Direction:    log.DirectionOut,
			Layer:        log.LayerHTTP,
			Category:     log.CategoryMessage,
			Message:      &log.MessageEvent{Type: log.MessageTypeEvent, StatusCode: 200, Body: []byte(`{"characteristics":[]}`)},
		},
	}
}

func writeCapture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture"+log.FileExtension)
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	for _, e := range testEvents() {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return path
}

func TestFormatEvent(t *testing.T) {
	var buf bytes.Buffer
	for _, e := range testEvents() {
		formatEvent(&buf, e)
	}
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:15:32.123456Z",
		"[conn:abc12345] slot=0",
		"Peer: 192.168.1.20:50122",
		"Controller: open",
		"free -> occupied",
		"PUT /characteristics -> 207",
		"Duration: 1.500ms",
		"1.5 value=true -> OK (0)",
		"1.3 value=x -> READ_ONLY (-70404)",
		"EVENT 200",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRunView(t *testing.T) {
	path := writeCapture(t)

	opts := FilterOptions{Slot: -1, AID: -1, Category: "update"}
	filter, err := opts.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var buf bytes.Buffer
	if err := RunView(path, filter, &buf); err != nil {
		t.Fatalf("RunView() error = %v", err)
	}
	if got := strings.Count(buf.String(), "[conn:"); got != 1 {
		t.Errorf("expected 1 event, got %d:\n%s", got, buf.String())
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	filter, err := FilterOptions{
		Slot:      1,
		AID:       2,
		Layer:     "HTTP",
		Direction: "out",
		TimeStart: "2026-01-28T10:00:00Z",
	}.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if filter.Slot == nil || *filter.Slot != 1 {
		t.Errorf("Slot = %v", filter.Slot)
	}
	if filter.AID == nil || *filter.AID != 2 {
		t.Errorf("AID = %v", filter.AID)
	}
	if filter.Layer == nil || *filter.Layer != log.LayerHTTP {
		t.Errorf("Layer = %v", filter.Layer)
	}
	if filter.TimeStart == nil {
		t.Error("TimeStart not set")
	}

	bad := []FilterOptions{
		{Slot: -1, AID: -1, Layer: "wire"},
		{Slot: -1, AID: -1, Direction: "sideways"},
		{Slot: -1, AID: -1, Category: "snapshot"},
		{Slot: -1, AID: -1, TimeEnd: "yesterday"},
	}
	for _, o := range bad {
		if _, err := o.Build(); err == nil {
			t.Errorf("Build(%+v) expected error", o)
		}
	}
}

func TestRunFilter(t *testing.T) {
	path := writeCapture(t)
	out := filepath.Join(t.TempDir(), "slot1"+log.FileExtension)

	slot := 1
	n, err := RunFilter(path, out, log.Filter{Slot: &slot})
	if err != nil {
		t.Fatalf("RunFilter() error = %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}

	reader, err := log.NewReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	events, err := reader.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Message == nil || events[0].Message.Type != log.MessageTypeEvent {
		t.Errorf("unexpected filtered events: %+v", events)
	}
}

func TestRunExport(t *testing.T) {
	path := writeCapture(t)

	t.Run("JSONL", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RunExport(path, "jsonl", log.Filter{}, &buf); err != nil {
			t.Fatalf("RunExport() error = %v", err)
		}
		if lines := strings.Count(buf.String(), "\n"); lines != 5 {
			t.Errorf("expected 5 lines, got %d", lines)
		}
	})

	t.Run("CSV", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RunExport(path, "csv", log.Filter{}, &buf); err != nil {
			t.Fatalf("RunExport() error = %v", err)
		}
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 6 {
			t.Fatalf("expected header + 5 rows, got %d", len(records))
		}
		resp := records[4]
		if resp[7] != "RESPONSE" || resp[8] != "/characteristics" || resp[9] != "207" {
			t.Errorf("unexpected response row: %v", resp)
		}
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		if err := RunExport(path, "xml", log.Filter{}, &bytes.Buffer{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestCollectStats(t *testing.T) {
	stats, err := CollectStats(writeCapture(t))
	if err != nil {
		t.Fatalf("CollectStats() error = %v", err)
	}
	if stats.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d", stats.TotalEvents)
	}
	if len(stats.Connections) != 2 {
		t.Errorf("Connections = %d", len(stats.Connections))
	}
	if stats.WriteStatuses[wire.StatusReadOnly] != 1 || stats.WriteStatuses[wire.StatusOK] != 1 {
		t.Errorf("WriteStatuses = %v", stats.WriteStatuses)
	}
	conn := stats.Connections["abc12345-6789-0123-4567-890abcdef012"]
	if conn == nil || conn.Requests != 1 || conn.MultiStatus != 1 || conn.ControllerID != "open" {
		t.Errorf("connection stats = %+v", conn)
	}

	var buf bytes.Buffer
	printStats(&buf, stats)
	if !strings.Contains(buf.String(), "Total Events: 5") {
		t.Errorf("unexpected stats output:\n%s", buf.String())
	}
}
