package render

import (
	"fmt"
	"strconv"

	"github.com/hapspan/hapspan-go/pkg/model"
)

// Buffer collects rendered bytes. In measure mode it only counts them.
type Buffer struct {
	measure bool
	n       int
	buf     []byte

	// scratch holds formatted numbers and values while measuring.
	scratch []byte
}

// NewMeasure returns a buffer that counts bytes without storing them.
func NewMeasure() *Buffer {
	return &Buffer{measure: true}
}

// NewBuffer returns a buffer that stores up to capacity bytes without
// reallocating.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// Len returns the number of bytes rendered so far.
func (b *Buffer) Len() int {
	if b.measure {
		return b.n
	}
	return len(b.buf)
}

// Bytes returns the rendered bytes. It is nil in measure mode.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Measuring returns true in measure mode.
func (b *Buffer) Measuring() bool {
	return b.measure
}

// Raw appends s unescaped.
func (b *Buffer) Raw(s string) {
	if b.measure {
		b.n += len(s)
		return
	}
	b.buf = append(b.buf, s...)
}

// Byte appends a single byte.
func (b *Buffer) Byte(c byte) {
	if b.measure {
		b.n++
		return
	}
	b.buf = append(b.buf, c)
}

// Int appends a base-10 integer.
func (b *Buffer) Int(v int) {
	b.appendWith(func(dst []byte) []byte { return strconv.AppendInt(dst, int64(v), 10) })
}

// Bool appends true or false.
func (b *Buffer) Bool(v bool) {
	if v {
		b.Raw("true")
	} else {
		b.Raw("false")
	}
}

// Quote appends s as a quoted JSON string.
func (b *Buffer) Quote(s string) {
	b.appendWith(func(dst []byte) []byte { return model.AppendJSONString(dst, s) })
}

// Value appends the JSON literal of v.
func (b *Buffer) Value(v model.Value) {
	b.appendWith(v.AppendJSON)
}

// TrimLast removes the last rendered byte. Used to reopen a closed object.
func (b *Buffer) TrimLast() {
	if b.measure {
		b.n--
		return
	}
	b.buf = b.buf[:len(b.buf)-1]
}

func (b *Buffer) appendWith(fn func([]byte) []byte) {
	if b.measure {
		b.scratch = fn(b.scratch[:0])
		b.n += len(b.scratch)
		return
	}
	b.buf = fn(b.buf)
}

// Func renders into a buffer.
type Func func(b *Buffer)

// Measure returns the number of bytes fn renders.
func Measure(fn Func) int {
	b := NewMeasure()
	fn(b)
	return b.Len()
}

// Render measures fn, then renders it into a buffer of exactly that size.
// It panics if the two passes disagree.
func Render(fn Func) []byte {
	n := Measure(fn)
	b := NewBuffer(n)
	fn(b)
	if b.Len() != n {
		panic(fmt.Sprintf("render: measured %d bytes but wrote %d", n, b.Len()))
	}
	return b.Bytes()
}
