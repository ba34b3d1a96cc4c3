package practicecode

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrCounterUpdateFailed = errors.New("failed to update practice code counter")
	ErrCounterUnreadable   = errors.New("practice code counter unreadable")
	ErrInvalidCode         = errors.New("invalid practice code")
)

// State is the persisted counter record. Its JSON form is part of the on-disk format.
type State struct {
	Year       int   `json:"year"`
	LastNumber int64 `json:"lastNumber"`
}

// advance returns the state after one allocation in year.
func (s State) advance(year int) State {
	if s.Year != year {
		s = State{Year: year}
	}
	s.LastNumber++
	return s
}

// CounterStore abstraction over the durable practice code counter.
type CounterStore interface {
	// Advance performs one read-modify-write cycle for year: load, reset when the stored
	// year differs, increment, persist. The returned state is the persisted one.
	Advance(ctx context.Context, year int) (State, error)
	// Current returns the state the next Advance(year) would start from, without writing.
	Current(ctx context.Context, year int) (State, error)
}

// Config needed by the allocator.
type Config struct {
	Prefix    string
	MinDigits int
}

// Clock allows deterministic testing.
type Clock interface{ Now() time.Time }

// SystemClock reads the wall clock in the given location (UTC when nil).
type SystemClock struct{ Location *time.Location }

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// Allocator issues practice codes backed by a CounterStore.
type Allocator struct {
	cfg   Config
	store CounterStore
	clock Clock
}

func NewAllocator(cfg Config, store CounterStore, clk Clock) *Allocator {
	if cfg.MinDigits <= 0 {
		cfg.MinDigits = DefaultMinDigits
	}
	if clk == nil {
		clk = SystemClock{}
	}
	return &Allocator{cfg: cfg, store: store, clock: clk}
}

func (a *Allocator) Prefix() string { return a.cfg.Prefix }

// Next allocates the next practice code for the current year. A code is only returned once
// the counter has been durably recorded.
func (a *Allocator) Next(ctx context.Context) (Code, error) {
	year := a.clock.Now().Year()
	st, err := a.store.Advance(ctx, year)
	if err != nil {
		return Code{}, err
	}
	return Code{Prefix: a.cfg.Prefix, Year: st.Year, Number: st.LastNumber, MinDigits: a.cfg.MinDigits}, nil
}

// Peek reports the code the next allocation would produce without issuing it.
func (a *Allocator) Peek(ctx context.Context) (Code, error) {
	year := a.clock.Now().Year()
	st, err := a.store.Current(ctx, year)
	if err != nil {
		return Code{}, err
	}
	next := st.advance(year)
	return Code{Prefix: a.cfg.Prefix, Year: next.Year, Number: next.LastNumber, MinDigits: a.cfg.MinDigits}, nil
}
