package ring

import "testing"

func TestPushPopFIFOOrder(t *testing.T) {
	r := New[int](8)
	for i := 0; i < 5; i++ {
		if !r.Push(i) {
			t.Fatalf("push %d: unexpected drop", i)
		}
	}
	for i := 0; i < 5; i++ {
		v, ok := r.Pop()
		if !ok {
			t.Fatalf("pop %d: unexpected empty", i)
		}
		if v != i {
			t.Fatalf("pop %d = %d, want %d", i, v, i)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("expected empty ring")
	}
}

// Capacity is rounded up to a power of two, and overflow is lossy rather
// than blocking: pushing past capacity drops the newest elements and leaves
// the already-queued ones intact and in order.
func TestOverflowDropsNewestWithoutBlocking(t *testing.T) {
	r := New[int](4) // rounds to 4
	for i := 0; i < 6; i++ {
		r.Push(i)
	}
	if got := r.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
	if got := r.Len(); got != 4 {
		t.Fatalf("len = %d, want 4", got)
	}

	for i := 0; i < 4; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("pop %d = (%d,%v), want (%d,true)", i, v, ok, i)
		}
	}
}

func TestNonPowerOfTwoCapacityRoundsUp(t *testing.T) {
	r := New[int](5)
	if r.Cap() != 8 {
		t.Fatalf("cap = %d, want 8", r.Cap())
	}
}

func TestWrapAround(t *testing.T) {
	r := New[int](4)
	for round := 0; round < 3; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(round*4 + i) {
				t.Fatalf("round %d push %d: unexpected drop", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			v, ok := r.Pop()
			want := round*4 + i
			if !ok || v != want {
				t.Fatalf("round %d pop %d = (%d,%v), want (%d,true)", round, i, v, ok, want)
			}
		}
	}
}
