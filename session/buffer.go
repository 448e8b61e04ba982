package session

import (
	"fmt"
	"sync"
)

// Buffer is an in-memory Session. Transports decode an inbound payload into a
// Buffer, hand it to the engine, and encode its outputs once the call returns.
// It is safe for concurrent use.
type Buffer struct {
	in Fields

	mu              sync.Mutex
	out             []Field
	result          uint32
	closed          bool
	limit           int
	timeoutHook     func() error
	timeoutDisabled bool
}

// NewBuffer returns a Buffer whose inbound payload is fields.
func NewBuffer(fields ...Field) *Buffer {
	return &Buffer{in: fields}
}

// SetTimeoutHook installs the function DisableTimeout delegates to.
func (b *Buffer) SetTimeoutHook(fn func() error) {
	b.mu.Lock()
	b.timeoutHook = fn
	b.mu.Unlock()
}

// SetOutputLimit caps the number of response fields; zero means unlimited.
func (b *Buffer) SetOutputLimit(n int) {
	b.mu.Lock()
	b.limit = n
	b.mu.Unlock()
}

// Close rejects further writes.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Result returns the recorded result code.
func (b *Buffer) Result() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

// Outputs returns a copy of the response fields written so far.
func (b *Buffer) Outputs() []Field {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Field, len(b.out))
	copy(out, b.out)
	return out
}

// TimeoutDisabled reports whether DisableTimeout was called successfully.
func (b *Buffer) TimeoutDisabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeoutDisabled
}

func (b *Buffer) Count() int                           { return b.in.Count() }
func (b *Buffer) TypeAt(index int) FieldType           { return b.in.TypeAt(index) }
func (b *Buffer) ReadUint8(index int) (uint8, error)   { return b.in.ReadUint8(index) }
func (b *Buffer) ReadUint32(index int) (uint32, error) { return b.in.ReadUint32(index) }
func (b *Buffer) ReadUint64(index int) (uint64, error) { return b.in.ReadUint64(index) }
func (b *Buffer) ReadString(index int) (string, error) { return b.in.ReadString(index) }
func (b *Buffer) ReadBinary(index int) ([]byte, error) { return b.in.ReadBinary(index) }

func (b *Buffer) write(f Field) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.limit > 0 && len(b.out) >= b.limit {
		return ErrOutputLimit
	}
	b.out = append(b.out, f)
	return nil
}

func (b *Buffer) WriteUint8(v uint8) error   { return b.write(Uint8(v)) }
func (b *Buffer) WriteUint32(v uint32) error { return b.write(Uint32(v)) }
func (b *Buffer) WriteUint64(v uint64) error { return b.write(Uint64(v)) }
func (b *Buffer) WriteString(v string) error { return b.write(String(v)) }

func (b *Buffer) WriteBinary(v []byte) error {
	cp := make([]byte, len(v))
	copy(cp, v)
	return b.write(Binary(cp))
}

func (b *Buffer) SetResult(code uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.result = code
	return nil
}

func (b *Buffer) DisableTimeout() error {
	b.mu.Lock()
	hook := b.timeoutHook
	b.mu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			return fmt.Errorf("session: disable timeout: %w", err)
		}
	}
	b.mu.Lock()
	b.timeoutDisabled = true
	b.mu.Unlock()
	return nil
}
