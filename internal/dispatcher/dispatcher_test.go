package dispatcher

import (
	"testing"

	"github.com/eborlee/ingestd/pkg/event"
)

// TestS6DispatcherRouting is scenario S6: H1/H3 on AggTrade, H2 on Depth;
// firing one AggTrade then one Depth invokes H1, H3, H2 in that exact order.
func TestS6DispatcherRouting(t *testing.T) {
	var order []string

	d := New(16)
	if err := d.Register(event.KindAggTrade, func(event.Envelope) { order = append(order, "H1") }); err != nil {
		t.Fatalf("register H1: %v", err)
	}
	if err := d.Register(event.KindDepth, func(event.Envelope) { order = append(order, "H2") }); err != nil {
		t.Fatalf("register H2: %v", err)
	}
	if err := d.Register(event.KindAggTrade, func(event.Envelope) { order = append(order, "H3") }); err != nil {
		t.Fatalf("register H3: %v", err)
	}

	d.Fire(event.KindAggTrade, 1, event.AggTrade{Symbol: "BNBUSDT"})
	d.Fire(event.KindDepth, 2, event.Depth{Symbol: "BNBUSDT"})

	if n := d.Process(); n != 2 {
		t.Fatalf("processed %d envelopes, want 2", n)
	}

	want := []string{"H1", "H3", "H2"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRegisterAfterSplitFails(t *testing.T) {
	d := New(4)
	d.Split()

	if err := d.Register(event.KindAggTrade, func(event.Envelope) {}); err != ErrAlreadySplit {
		t.Fatalf("err = %v, want ErrAlreadySplit", err)
	}
}

func TestProducerFireDropsOnFullRing(t *testing.T) {
	d := New(2) // rounds to 2
	producer, consumer := d.Split()

	if !producer.Fire(event.KindAggTrade, 1, event.AggTrade{}) {
		t.Fatal("expected first fire to succeed")
	}
	if !producer.Fire(event.KindAggTrade, 2, event.AggTrade{}) {
		t.Fatal("expected second fire to succeed")
	}
	if producer.Fire(event.KindAggTrade, 3, event.AggTrade{}) {
		t.Fatal("expected third fire to be dropped, ring is full")
	}
	if producer.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", producer.Dropped())
	}

	if n := consumer.Process(); n != 2 {
		t.Fatalf("processed %d envelopes, want 2", n)
	}
}

func TestHandlersRunInRegistrationOrderAcrossManyEnvelopes(t *testing.T) {
	d := New(64)
	var calls []int
	for i := 0; i < 5; i++ {
		i := i
		if err := d.Register(event.KindAggTrade, func(event.Envelope) { calls = append(calls, i) }); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	d.Fire(event.KindAggTrade, 1, event.AggTrade{})
	d.Process()

	want := []int{0, 1, 2, 3, 4}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}
