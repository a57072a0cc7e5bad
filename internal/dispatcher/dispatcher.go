// Package dispatcher fans decoded market-data envelopes out to registered
// handlers. A Dispatcher is built, handlers are registered against it, and
// it is then optionally split into a Producer half (used by the exchange
// connector's I/O goroutine) and a Consumer half (used by a dedicated
// processing goroutine) so the two sides can run on separate threads
// without sharing anything but the ring between them.
package dispatcher

import (
	"errors"

	"github.com/eborlee/ingestd/internal/ring"
	"github.com/eborlee/ingestd/pkg/event"
)

// ErrAlreadySplit is returned by Register once Split has been called.
// Handlers must be wired up before the producer/consumer halves start
// running on separate goroutines; allowing registration afterward would
// mean the consumer's handler table is being mutated without a lock while
// another goroutine might be reading it mid-Process.
var ErrAlreadySplit = errors.New("dispatcher: cannot register a handler after Split")

// HandlerFunc receives one decoded envelope. It runs synchronously on the
// consumer goroutine; a slow handler slows down every handler after it in
// registration order for that kind.
type HandlerFunc func(event.Envelope)

// Dispatcher owns the ring and the handler table. Use New, Register each
// handler, then either Split it for the two-goroutine topology or call Fire
// and Process directly for single-goroutine use (tests, simple tools).
type Dispatcher struct {
	ring     *ring.Ring[event.Envelope]
	handlers map[event.Kind][]HandlerFunc
	split    bool
}

// New creates a Dispatcher whose ring holds at most capacity unprocessed
// envelopes at a time.
func New(capacity int) *Dispatcher {
	return &Dispatcher{
		ring:     ring.New[event.Envelope](capacity),
		handlers: make(map[event.Kind][]HandlerFunc),
	}
}

// Register adds h to the end of kind's handler chain. Must be called before
// Split (or before any concurrent Process, for single-goroutine use).
func (d *Dispatcher) Register(kind event.Kind, h HandlerFunc) error {
	if d.split {
		return ErrAlreadySplit
	}
	d.handlers[kind] = append(d.handlers[kind], h)
	return nil
}

// Split freezes the handler table and returns the Producer/Consumer halves
// for the two-goroutine topology. Calling Register after Split returns
// ErrAlreadySplit.
func (d *Dispatcher) Split() (*Producer, *Consumer) {
	d.split = true
	return &Producer{ring: d.ring}, &Consumer{ring: d.ring, handlers: d.handlers}
}

// Fire enqueues one envelope for later processing. It returns false if the
// ring was full and the envelope was dropped. For single-goroutine use
// (tests); production code goes through the Producer half.
func (d *Dispatcher) Fire(kind event.Kind, ingressMicros int64, payload any) bool {
	return d.ring.Push(event.Envelope{Kind: kind, IngressMicros: ingressMicros, Payload: payload})
}

// Process drains every envelope currently queued and invokes its kind's
// registered handlers, in registration order. It returns the number of
// envelopes processed. For single-goroutine use; production code goes
// through the Consumer half.
func (d *Dispatcher) Process() int {
	return process(d.ring, d.handlers)
}

// Dropped reports how many envelopes have been discarded because the ring
// was full at the time of Fire/Producer.Fire.
func (d *Dispatcher) Dropped() uint64 {
	return d.ring.Dropped()
}

// Producer is the write side of a split Dispatcher, handed to the component
// that owns the I/O loop (the market agent).
type Producer struct {
	ring *ring.Ring[event.Envelope]
}

// Fire enqueues one envelope. It returns false if the ring was full and the
// envelope was dropped — the caller never blocks on a slow consumer.
func (p *Producer) Fire(kind event.Kind, ingressMicros int64, payload any) bool {
	return p.ring.Push(event.Envelope{Kind: kind, IngressMicros: ingressMicros, Payload: payload})
}

// Dropped reports how many envelopes have been discarded because the ring
// was full.
func (p *Producer) Dropped() uint64 {
	return p.ring.Dropped()
}

// Consumer is the read side of a split Dispatcher, owned by a single
// dedicated processing goroutine.
type Consumer struct {
	ring     *ring.Ring[event.Envelope]
	handlers map[event.Kind][]HandlerFunc
}

// Process drains every envelope currently queued and invokes its kind's
// registered handlers, in registration order. Callers typically call this
// in a tight loop (optionally with a short sleep when it returns 0) for the
// lifetime of the consumer goroutine.
func (c *Consumer) Process() int {
	return process(c.ring, c.handlers)
}

func process(r *ring.Ring[event.Envelope], handlers map[event.Kind][]HandlerFunc) int {
	n := 0
	for {
		env, ok := r.Pop()
		if !ok {
			return n
		}
		for _, h := range handlers[env.Kind] {
			h(env)
		}
		n++
	}
}
