// Package render serializes the attribute database and protocol results into
// their JSON-shaped wire text.
//
// Every renderer writes into a Buffer and runs twice: once in measure mode to
// learn the exact byte length, and once in write mode into a buffer of that
// size. Render performs both passes and panics if they disagree, so a body's
// Content-Length is known before the first byte is produced.
//
//	body := render.Render(func(b *render.Buffer) {
//	    render.Database(b, db)
//	})
//
// Characteristic objects carry optional fields selected by Flags. The value
// is only emitted for readable characteristics.
package render
