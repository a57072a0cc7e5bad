package book

import (
	"errors"
	"testing"

	"github.com/eborlee/ingestd/pkg/event"
)

func level(price, qty string) event.PriceLevel {
	return event.PriceLevel{price, qty}
}

// TestStraddleBootstrap is scenario S2: a snapshot at lastUpdateId=100 with
// three buffered updates, only one of which straddles the snapshot.
func TestStraddleBootstrap(t *testing.T) {
	b := New("BNBUSDT")

	if err := b.PushUpdate(envelope(event.Depth{FirstUpdateID: 90, LastUpdateID: 95, PrevUpdateID: 89})); err != nil {
		t.Fatalf("buffer push 1: %v", err)
	}
	if err := b.PushUpdate(envelope(event.Depth{
		FirstUpdateID: 96, LastUpdateID: 101, PrevUpdateID: 95,
		Bids: []event.PriceLevel{level("9", "0")},
	})); err != nil {
		t.Fatalf("buffer push 2: %v", err)
	}
	if err := b.PushUpdate(envelope(event.Depth{
		FirstUpdateID: 102, LastUpdateID: 110, PrevUpdateID: 101,
		Bids: []event.PriceLevel{level("10", "3")},
	})); err != nil {
		t.Fatalf("buffer push 3: %v", err)
	}

	err := b.Initialize(Snapshot{
		LastUpdateID: 100,
		Bids:         []event.PriceLevel{level("10", "1"), level("9", "2")},
		Asks:         []event.PriceLevel{level("11", "1")},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if b.LastUpdateID() != 110 {
		t.Fatalf("last_update_id = %d, want 110", b.LastUpdateID())
	}
	if !b.Initialized() {
		t.Fatal("expected book to be initialized")
	}

	bids := b.Bids()
	if len(bids) != 1 || bids[0].Price.String() != "10" || bids[0].Quantity.String() != "3" {
		t.Fatalf("bids = %+v, want [(10,3)]", bids)
	}
	asks := b.Asks()
	if len(asks) != 1 || asks[0].Price.String() != "11" || asks[0].Quantity.String() != "1" {
		t.Fatalf("asks = %+v, want [(11,1)]", asks)
	}
}

// TestGapDetection is scenario S3: after a healthy bootstrap, an update
// whose pu doesn't match last_update_id is a fatal gap and leaves the book
// unchanged.
func TestGapDetection(t *testing.T) {
	b := New("BNBUSDT")
	if err := b.Initialize(Snapshot{
		LastUpdateID: 100,
		Bids:         []event.PriceLevel{level("10", "1")},
		Asks:         []event.PriceLevel{level("11", "1")},
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	// Bring the chain to last_update_id=110 the same way S2 does.
	if err := b.PushUpdate(envelope(event.Depth{FirstUpdateID: 96, LastUpdateID: 101, PrevUpdateID: 95})); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := b.PushUpdate(envelope(event.Depth{FirstUpdateID: 102, LastUpdateID: 110, PrevUpdateID: 101})); err != nil {
		t.Fatalf("push: %v", err)
	}
	if b.LastUpdateID() != 110 {
		t.Fatalf("setup: last_update_id = %d, want 110", b.LastUpdateID())
	}

	before := b.Bids()

	err := b.PushUpdate(envelope(event.Depth{FirstUpdateID: 112, LastUpdateID: 115, PrevUpdateID: 111}))
	if !errors.Is(err, ErrGapDetected) {
		t.Fatalf("err = %v, want ErrGapDetected", err)
	}
	if b.LastUpdateID() != 110 {
		t.Fatalf("last_update_id changed to %d after gap, want unchanged 110", b.LastUpdateID())
	}
	after := b.Bids()
	if len(before) != len(after) {
		t.Fatalf("book mutated by a rejected update: before=%v after=%v", before, after)
	}
}

func TestZeroQuantityRemovesOnlyThatLevel(t *testing.T) {
	b := New("BNBUSDT")
	if err := b.Initialize(Snapshot{
		LastUpdateID: 1,
		Bids:         []event.PriceLevel{level("10", "1"), level("9", "2")},
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := b.PushUpdate(envelope(event.Depth{
		FirstUpdateID: 1, LastUpdateID: 2, PrevUpdateID: 1,
		Bids: []event.PriceLevel{level("9", "0")},
	})); err != nil {
		t.Fatalf("push: %v", err)
	}

	bids := b.Bids()
	if len(bids) != 1 || bids[0].Price.String() != "10" {
		t.Fatalf("bids = %+v, want only level 10 to survive", bids)
	}
}

func TestBestBidAskOrdering(t *testing.T) {
	b := New("BNBUSDT")
	if err := b.Initialize(Snapshot{
		LastUpdateID: 1,
		Bids:         []event.PriceLevel{level("10", "1"), level("12", "1"), level("9", "1")},
		Asks:         []event.PriceLevel{level("15", "1"), level("13", "1"), level("14", "1")},
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	bid, ok := b.BestBid()
	if !ok || bid.Price.String() != "12" {
		t.Fatalf("best bid = %+v, ok=%v, want 12", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || ask.Price.String() != "13" {
		t.Fatalf("best ask = %+v, ok=%v, want 13", ask, ok)
	}
}

func TestPushUpdateIgnoresNonDepthEnvelopes(t *testing.T) {
	b := New("BNBUSDT")
	env := event.Envelope{Kind: event.KindAggTrade, Payload: event.AggTrade{Symbol: "BNBUSDT"}}
	if err := b.PushUpdate(env); err != nil {
		t.Fatalf("push non-depth: %v", err)
	}
	if b.Initialized() {
		t.Fatal("non-depth envelope must not affect initialization state")
	}
}

func envelope(d event.Depth) event.Envelope {
	return event.Envelope{Kind: event.KindDepth, Payload: d}
}
