package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hapspan/hapspan-go/pkg/log"
	"github.com/hapspan/hapspan-go/pkg/wire"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Connections       map[string]*ConnectionStats
	Evictions         int
	WriteStatuses     map[wire.Status]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Events       int
	Slot         int
	ControllerID string
	Requests     int
	MultiStatus    int
}

// CollectStats reads every event of a capture file.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Connections:       make(map[string]*ConnectionStats),
		WriteStatuses:     make(map[wire.Status]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Slot:      event.Slot,
		}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.ControllerID != "" && conn.ControllerID == "" {
		conn.ControllerID = event.ControllerID
	}

	switch {
	case event.Message != nil && event.Message.Type == log.MessageTypeRequest:
		conn.Requests++
	case event.Message != nil && event.Message.Type == log.MessageTypeResponse && event.Message.StatusCode == 207:
		conn.MultiStatus++
	case event.Update != nil:
		for _, r := range event.Update.Results {
			s.WriteStatuses[r.Status]++
		}
	case event.StateChange != nil && event.StateChange.NewState == "evicted":
		s.Evictions++
	case event.Error != nil:
		s.Errors++
	}
}

// RunStats prints statistics about a capture file.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== HAP Protocol Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerHTTP, log.LayerAccessory} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryUpdate, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.WriteStatuses) > 0 {
		fmt.Fprintln(w, "Write Statuses:")
		codes := make([]wire.Status, 0, len(stats.WriteStatuses))
		for code := range stats.WriteStatuses {
			codes = append(codes, code)
		}
		sort.Slice(codes, func(i, j int) bool { return codes[i] > codes[j] })
		for _, code := range codes {
			fmt.Fprintf(w, "  %-26s %d\n", code.String()+":", stats.WriteStatuses[code])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] slot %d, %d events, %d requests, duration %s\n",
				shortenConnID(c.id), c.stats.Slot, c.stats.Events, c.stats.Requests, duration)
			if c.stats.ControllerID != "" {
				fmt.Fprintf(w, "           Controller: %s\n", c.stats.ControllerID)
			}
			if c.stats.MultiStatus > 0 {
				fmt.Fprintf(w, "           Multi-Status responses: %d\n", c.stats.MultiStatus)
			}
		}
	}

	if stats.Evictions > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Evictions: %d\n", stats.Evictions)
	}
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
