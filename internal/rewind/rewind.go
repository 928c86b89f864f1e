// Package rewind provides a seekable, cloneable response body.
//
// Several parts of the cache need to read a response body more than once:
// once to persist it to a store, once to hand it back to the immediate
// caller, and again on every subsequent fresh-hit. Body materializes a
// stream into memory exactly once and hands out independent readers over
// the same backing bytes from then on.
package rewind

import (
	"bytes"
	"io"
)

// Body is an io.ReadCloser backed by an in-memory byte slice.
type Body struct {
	data []byte
	r    *bytes.Reader
}

// New wraps data in a Body positioned at offset 0.
func New(data []byte) *Body {
	return &Body{data: data, r: bytes.NewReader(data)}
}

func (b *Body) Read(p []byte) (int, error) { return b.r.Read(p) }

// Close is a no-op; the backing bytes are owned by Body, not a file
// descriptor or socket.
func (b *Body) Close() error { return nil }

// Rewind resets the read position to the start.
func (b *Body) Rewind() { b.r = bytes.NewReader(b.data) }

// Tell reports the current read offset.
func (b *Body) Tell() int64 { return int64(len(b.data)) - int64(b.r.Len()) }

// ReadAll returns a copy of the entire backing byte slice, regardless of
// the current read position.
func (b *Body) ReadAll() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Clone returns an independent Body over the same bytes, positioned at 0.
func (b *Body) Clone() *Body { return New(b.data) }

// EnsureSeekable returns rc as a *Body. If rc is already one, it is cloned
// so the caller gets an independent reader at offset 0. Otherwise rc is
// fully read into memory and closed.
func EnsureSeekable(rc io.ReadCloser) (*Body, error) {
	if rc == nil {
		return New(nil), nil
	}
	if b, ok := rc.(*Body); ok {
		return b.Clone(), nil
	}
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return New(data), nil
}
