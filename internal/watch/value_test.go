package watch

import (
	"testing"
	"time"
)

func TestValueSnapshotOnSubscribe(t *testing.T) {
	v := NewValue("initial")

	ch, cancel := v.Subscribe()
	defer cancel()

	select {
	case got := <-ch:
		if got != "initial" {
			t.Fatalf("snapshot = %q, want initial", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot delivered on subscribe")
	}
}

func TestValueDeliversChangesInOrder(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Subscribe()
	defer cancel()

	<-ch // snapshot
	v.Set(1)
	v.Set(2)
	v.Set(3)

	for want := 1; want <= 3; want++ {
		select {
		case got := <-ch:
			if got != want {
				t.Fatalf("got %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing value %d", want)
		}
	}
}

func TestValueSlowSubscriberNeverBlocksWriter(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more sets than the subscriber buffer holds; nobody reads.
		for i := 1; i <= subscriberBuffer*4; i++ {
			v.Set(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("writer blocked on a slow subscriber")
	}

	// The newest value is retrievable even though older ones were dropped.
	if got := v.Get(); got != subscriberBuffer*4 {
		t.Fatalf("current value = %d, want %d", got, subscriberBuffer*4)
	}
	last := -1
	for {
		select {
		case got := <-ch:
			last = got
			continue
		default:
		}
		break
	}
	if last != subscriberBuffer*4 {
		t.Fatalf("newest value %d not delivered, last seen %d", subscriberBuffer*4, last)
	}
}

func TestValueCancelClosesChannel(t *testing.T) {
	v := NewValue("x")
	ch, cancel := v.Subscribe()
	<-ch
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}

	// A set after cancel must not panic or deliver.
	v.Set("y")
}
