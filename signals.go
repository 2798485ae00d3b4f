package guestuser

import (
	"context"
	"sync"
	"time"
)

// GuestCreatedEvent is emitted after a guest identity was persisted and its
// marker created.
type GuestCreatedEvent struct {
	User       *User
	Path       string
	UserAgent  string
	OccurredAt time.Time
}

// ConvertedEvent is emitted after a guest identity became permanent.
type ConvertedEvent struct {
	User       *User
	OccurredAt time.Time
}

// GuestCreatedListener consumes GuestCreatedEvent notifications.
type GuestCreatedListener func(ctx context.Context, event GuestCreatedEvent)

// ConvertedListener consumes ConvertedEvent notifications.
type ConvertedListener func(ctx context.Context, event ConvertedEvent)

// Signals broadcasts lifecycle events to registered listeners. Emission is
// fire and forget: a panicking listener is logged and never interrupts the
// triggering request. A typical consumer is a federated login integration
// that auto-converts a guest when they link a third party account.
type Signals struct {
	mu        sync.RWMutex
	created   []GuestCreatedListener
	converted []ConvertedListener
	logger    Logger
}

type SignalsOption func(*Signals)

// WithSignalsLogger overrides the logger used for listener failures.
func WithSignalsLogger(logger Logger) SignalsOption {
	return func(s *Signals) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSignals(opts ...SignalsOption) *Signals {
	s := &Signals{logger: defLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// OnGuestCreated registers a listener for guest creation events.
func (s *Signals) OnGuestCreated(listener GuestCreatedListener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, listener)
}

// OnConverted registers a listener for conversion events.
func (s *Signals) OnConverted(listener ConvertedListener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.converted = append(s.converted, listener)
}

func (s *Signals) emitGuestCreated(ctx context.Context, event GuestCreatedEvent) {
	if s == nil {
		return
	}
	s.mu.RLock()
	listeners := make([]GuestCreatedListener, len(s.created))
	copy(listeners, s.created)
	s.mu.RUnlock()

	for _, listener := range listeners {
		s.dispatch(func() { listener(ctx, event) })
	}
}

func (s *Signals) emitConverted(ctx context.Context, event ConvertedEvent) {
	if s == nil {
		return
	}
	s.mu.RLock()
	listeners := make([]ConvertedListener, len(s.converted))
	copy(listeners, s.converted)
	s.mu.RUnlock()

	for _, listener := range listeners {
		s.dispatch(func() { listener(ctx, event) })
	}
}

func (s *Signals) dispatch(notify func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("signal listener panicked", "panic", r)
		}
	}()
	notify()
}
