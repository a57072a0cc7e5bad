// Package book maintains a per-symbol local replica of a Binance USD-M
// futures L2 order book (§4.5). A Book bootstraps from a REST snapshot,
// buffers depth updates that arrive before the snapshot lands, replays them
// to find the unique update that straddles the snapshot's last-applied
// sequence number, and thereafter enforces strict pu→u contiguity on every
// subsequent update. Any break in that chain is a fatal condition — the
// owner is expected to discard the Book and build a new one, never to paper
// over the gap here.
//
// Book is not internally synchronized; callers touching one Book from more
// than one goroutine must provide their own mutual exclusion (§5).
package book

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"

	"github.com/eborlee/ingestd/pkg/event"
)

// ErrGapDetected marks a broken previous-update-id → last-update-id chain.
// The owner must drop this Book and construct a fresh one; Book never
// attempts to repair itself, to avoid silently papering over a protocol
// violation or a bug upstream.
var ErrGapDetected = errors.New("book: update sequence gap, replica must be reinitialized")

// Level is one price/quantity pair returned by a query method.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Snapshot is the REST depth-snapshot data a Book bootstraps from, already
// converted out of the exchange package's wire-string transport shape.
type Snapshot struct {
	LastUpdateID int64
	Bids         []event.PriceLevel
	Asks         []event.PriceLevel
}

// UpdateCallback is invoked after every successfully applied update or
// completed initialization. It receives the Book itself so the callback can
// query whatever state it needs (best bid/ask, top-N, ...).
type UpdateCallback func(b *Book)

// Book is the per-symbol replica described by §3 and §4.5.
type Book struct {
	symbol string

	bids *treemap.Map // price -> decimal.Decimal quantity, ordered high to low
	asks *treemap.Map // price -> decimal.Decimal quantity, ordered low to high

	lastEventTime     int64
	lastUpdateID      int64 // 0 means not yet initialized
	continuousStarted bool
	updateBuffer      []event.Depth

	callbacks []UpdateCallback
}

// New creates an empty, uninitialized Book for symbol.
func New(symbol string) *Book {
	return &Book{symbol: symbol}
}

// Symbol returns the book's symbol.
func (b *Book) Symbol() string { return b.symbol }

// Initialized reports whether the book has completed bootstrap.
func (b *Book) Initialized() bool { return b.lastUpdateID != 0 }

// LastUpdateID returns the sequence number of the last applied update, or 0
// if the book hasn't been initialized.
func (b *Book) LastUpdateID() int64 { return b.lastUpdateID }

// LastEventTime returns the exchange event time of the last applied update.
func (b *Book) LastEventTime() int64 { return b.lastEventTime }

// RegisterCallback appends fn to the list invoked after every applied
// update or completed initialization.
func (b *Book) RegisterCallback(fn UpdateCallback) {
	b.callbacks = append(b.callbacks, fn)
}

// PushUpdate accepts an envelope of any kind; non-Depth envelopes are
// silently ignored. Depth envelopes are buffered until Initialize has run,
// then fed straight into the contiguity chain. Returns ErrGapDetected
// (wrapped) if the chain breaks — the book is left unmutated and the owner
// must discard it.
func (b *Book) PushUpdate(env event.Envelope) error {
	d, ok := env.Depth()
	if !ok {
		return nil
	}
	return b.pushDepth(d)
}

func (b *Book) pushDepth(d event.Depth) error {
	if b.lastUpdateID == 0 {
		b.updateBuffer = append(b.updateBuffer, d)
		return nil
	}
	return b.applyUpdate(d)
}

// Initialize performs the one-shot bootstrap: replace the book with the
// snapshot's levels, discard buffered updates older than the snapshot,
// replay the rest through the same contiguity logic applyUpdate uses for
// live traffic (this is what finds the straddling update and starts the
// chain), and clear the buffer.
func (b *Book) Initialize(snap Snapshot) error {
	b.bids = treemap.NewWith(bidComparator)
	b.asks = treemap.NewWith(askComparator)
	applySide(b.bids, snap.Bids)
	applySide(b.asks, snap.Asks)

	b.lastUpdateID = snap.LastUpdateID
	b.continuousStarted = false

	buffered := b.updateBuffer
	b.updateBuffer = nil

	var kept []event.Depth
	for _, d := range buffered {
		if d.LastUpdateID >= snap.LastUpdateID {
			kept = append(kept, d)
		}
	}

	for _, d := range kept {
		if err := b.applyUpdate(d); err != nil {
			return fmt.Errorf("book[%s]: initialize: %w", b.symbol, err)
		}
	}

	b.notify()
	return nil
}

// applyUpdate is the core of §4.5's apply_update operation. Before the
// chain has started it looks for the unique straddling update; once
// started it requires strict pu == last_update_id contiguity.
func (b *Book) applyUpdate(d event.Depth) error {
	if !b.continuousStarted {
		if d.FirstUpdateID <= b.lastUpdateID && b.lastUpdateID <= d.LastUpdateID {
			b.applyDeltas(d)
			b.lastUpdateID = d.LastUpdateID
			b.continuousStarted = true
			b.lastEventTime = d.EventTime
			b.notify()
		}
		// Not the straddling update yet: drop silently, still searching.
		return nil
	}

	if d.PrevUpdateID != b.lastUpdateID {
		return fmt.Errorf("book[%s]: %w: pu=%d want=%d", b.symbol, ErrGapDetected, d.PrevUpdateID, b.lastUpdateID)
	}

	b.applyDeltas(d)
	b.lastUpdateID = d.LastUpdateID
	b.lastEventTime = d.EventTime
	b.notify()
	return nil
}

func (b *Book) applyDeltas(d event.Depth) {
	applySide(b.bids, d.Bids)
	applySide(b.asks, d.Asks)
}

// applySide applies [price, qty] wire pairs to one side's tree: a zero
// quantity removes the level, anything else replaces it outright (depth
// updates are absolute per-level quantities, never deltas on top of deltas).
func applySide(side *treemap.Map, levels []event.PriceLevel) {
	for _, lvl := range levels {
		price, err := decimal.NewFromString(lvl.Price())
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(lvl.Quantity())
		if err != nil {
			continue
		}
		if qty.IsZero() {
			side.Remove(price)
			continue
		}
		side.Put(price, qty)
	}
}

func (b *Book) notify() {
	for _, cb := range b.callbacks {
		cb(b)
	}
}

// BestBid returns the highest-priced bid level. ok is false if the book has
// no bids (including before initialization).
func (b *Book) BestBid() (Level, bool) {
	return bestOf(b.bids)
}

// BestAsk returns the lowest-priced ask level. ok is false if the book has
// no asks (including before initialization).
func (b *Book) BestAsk() (Level, bool) {
	return bestOf(b.asks)
}

func bestOf(side *treemap.Map) (Level, bool) {
	if side == nil {
		return Level{}, false
	}
	k, v := side.Min()
	if k == nil {
		return Level{}, false
	}
	return Level{Price: k.(decimal.Decimal), Quantity: v.(decimal.Decimal)}, true
}

// TopBids returns up to n bid levels, highest price first.
func (b *Book) TopBids(n int) []Level {
	return topOf(b.bids, n)
}

// TopAsks returns up to n ask levels, lowest price first.
func (b *Book) TopAsks(n int) []Level {
	return topOf(b.asks, n)
}

func topOf(side *treemap.Map, n int) []Level {
	if side == nil || n <= 0 {
		return nil
	}
	keys := side.Keys()
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]Level, 0, len(keys))
	for _, k := range keys {
		v, _ := side.Get(k)
		out = append(out, Level{Price: k.(decimal.Decimal), Quantity: v.(decimal.Decimal)})
	}
	return out
}

// Bids returns every bid level, highest price first.
func (b *Book) Bids() []Level { return topOf(b.bids, side(b.bids)) }

// Asks returns every ask level, lowest price first.
func (b *Book) Asks() []Level { return topOf(b.asks, side(b.asks)) }

func side(m *treemap.Map) int {
	if m == nil {
		return 0
	}
	return m.Size()
}

// bidComparator orders bids highest price first: it reverses the natural
// decimal.Decimal ordering so treemap.Min() yields the best bid.
func bidComparator(a, b interface{}) int {
	return b.(decimal.Decimal).Cmp(a.(decimal.Decimal))
}

// askComparator keeps asks in natural ascending order so treemap.Min()
// yields the best ask.
func askComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}
