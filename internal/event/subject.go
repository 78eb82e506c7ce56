// Package event implements the subject-observer pattern used to decouple
// the carpark data layer from whatever renders it.
package event

import (
	"log"
	"sync"
)

// Kind identifies a category of notification.
type Kind string

const (
	// CarparkUpdate carries a single *carpark.Carpark whose attributes changed.
	CarparkUpdate Kind = "carpark-update"
	// NearbyListUpdate carries the ordered []*carpark.Carpark of the last search.
	NearbyListUpdate Kind = "nearby-list-update"
)

// Callback receives the payload published with a matching Kind.
type Callback func(payload any)

type registration struct {
	observer any
	kind     Kind
	fn       Callback
}

// Subject holds observer registrations and delivers notifications to them
// synchronously, in registration order. The zero value is ready to use.
// Types that broadcast changes embed Subject.
type Subject struct {
	mu        sync.Mutex
	callbacks []registration
}

// Attach registers fn to run whenever Notify is called with kind.
// The same observer may attach multiple times for distinct kinds.
func (s *Subject) Attach(observer any, kind Kind, fn Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, registration{observer: observer, kind: kind, fn: fn})
}

// Detach removes every registration owned by observer. Detaching an
// observer with no registrations is a no-op.
func (s *Subject) Detach(observer any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.callbacks[:0]
	for _, c := range s.callbacks {
		if c.observer != observer {
			kept = append(kept, c)
		}
	}
	s.callbacks = kept
}

// Notify synchronously invokes every callback registered for kind, in
// registration order. A panicking callback is logged and does not stop
// delivery to the rest. There is no queueing or deduplication: notifying
// twice delivers twice.
func (s *Subject) Notify(payload any, kind Kind) {
	s.mu.Lock()
	matched := make([]Callback, 0, len(s.callbacks))
	for _, c := range s.callbacks {
		if c.kind == kind {
			matched = append(matched, c.fn)
		}
	}
	s.mu.Unlock()

	// Callbacks run without the subject lock held so they may attach,
	// detach or notify again.
	for _, fn := range matched {
		invoke(fn, payload, kind)
	}
}

func invoke(fn Callback, payload any, kind Kind) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event: observer callback for %q panicked: %v", kind, r)
		}
	}()
	fn(payload)
}
