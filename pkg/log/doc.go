// Package log provides protocol capture for the accessory server.
//
// It is separate from operational logging (slog): protocol capture records a
// machine-readable trace of every request, response, write batch, event push
// and slot change, suitable for replaying a session after the fact.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	fl, _ := log.NewFileLogger("/var/log/hapspan/accessory.hlog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
//   - Transport: raw bytes read from or written to a slot (FrameEvent)
//   - HTTP: routed requests, responses and pushed events (MessageEvent)
//   - Accessory: resolved write batches (UpdateEvent)
//   - Slot: connection and slot lifecycle (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are CBOR streams with integer map keys and the .hlog
// extension. The hapspan-log tool prints and filters them.
package log
