// Package store owns the persisted click counter
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

var (
	// ErrPersist wraps every failure to read or write the backing record
	ErrPersist = errors.New("counter persistence failure")
	// ErrOverflow is returned by Increment when the count is already at its maximum
	ErrOverflow = errors.New("counter overflow")
)

// Source tells where a loaded value came from
type Source int

const (
	SourcePersisted  Source = iota // a valid record was read
	SourceMissing                  // no record exists yet
	SourceUnreadable               // the record exists but could not be read
	SourceCorrupt                  // the record was read but did not decode to a valid count
)

func (s Source) String() string {
	switch s {
	case SourcePersisted:
		return "persisted"
	case SourceMissing:
		return "missing"
	case SourceUnreadable:
		return "unreadable"
	case SourceCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// Snapshot is a loaded count plus its origin
type Snapshot struct {
	Count  int64
	Source Source
}

// Defaulted reports whether Count is the zero default rather than a stored value
func (s Snapshot) Defaulted() bool {
	return s.Source != SourcePersisted
}

// Backend persists a single count.
// Load returns a defaulted Snapshot with a nil error when the record is
// missing or malformed; a non-nil error always wraps ErrPersist.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, count int64) error
	Close() error
}

// Counter serializes all read-modify-write cycles against a Backend
type Counter struct {
	mux     sync.Mutex
	backend Backend
}

// NewCounter returns a Counter that owns backend
func NewCounter(backend Backend) *Counter {
	return &Counter{backend: backend}
}

// Get loads the current value without modifying it
func (c *Counter) Get(ctx context.Context) (Snapshot, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.backend.Load(ctx)
}

// Increment adds one to the stored value and returns the new count
func (c *Counter) Increment(ctx context.Context) (int64, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	snap, err := c.backend.Load(ctx)
	if err != nil {
		return 0, err
	}
	if snap.Count == math.MaxInt64 {
		return snap.Count, ErrOverflow
	}
	next := snap.Count + 1
	if err := c.backend.Save(ctx, next); err != nil {
		return 0, err
	}
	return next, nil
}

// Reset stores zero
func (c *Counter) Reset(ctx context.Context) (int64, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if err := c.backend.Save(ctx, 0); err != nil {
		return 0, err
	}
	return 0, nil
}

// EnsureRecord writes a zero record if none exists and reports whether it wrote one.
// Corrupt or unreadable records are left alone.
func (c *Counter) EnsureRecord(ctx context.Context) (bool, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	snap, err := c.backend.Load(ctx)
	if err != nil {
		return false, err
	}
	if snap.Source != SourceMissing {
		return false, nil
	}
	if err := c.backend.Save(ctx, 0); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the backend
func (c *Counter) Close() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.backend.Close()
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersist, op, err)
}
