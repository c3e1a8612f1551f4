package broker

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := New()
	ch := b.Subscribe("room1")
	defer b.Unsubscribe("room1", ch)

	b.Publish("room1", "user:joined", map[string]string{"id": "u1"})

	select {
	case ev := <-ch:
		if ev.Name != "user:joined" {
			t.Fatalf("event name = %q, want user:joined", ev.Name)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event on channel")
	}
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	b := New()
	ch := b.Subscribe("room1")
	defer b.Unsubscribe("room1", ch)

	b.Publish("room1", "playlist:song-added", nil)
	b.Publish("room1", "playlist:next-song", nil)

	first := <-ch
	second := <-ch
	if first.Name != "playlist:song-added" || second.Name != "playlist:next-song" {
		t.Fatalf("got [%q, %q], want publish order preserved", first.Name, second.Name)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch := b.Subscribe("room1")
	b.Unsubscribe("room1", ch)

	b.Publish("room1", "user:joined", nil)

	select {
	case <-ch:
		t.Fatal("should not receive after unsubscribe")
	case <-time.After(50 * time.Millisecond):
		// success
	}
}

func TestCrossRoomIsolation(t *testing.T) {
	b := New()
	ch1 := b.Subscribe("room1")
	ch2 := b.Subscribe("room2")
	defer b.Unsubscribe("room1", ch1)
	defer b.Unsubscribe("room2", ch2)

	b.Publish("room1", "user:joined", nil)

	select {
	case <-ch1:
		// expected
	case <-time.After(100 * time.Millisecond):
		t.Fatal("room1 subscriber should have received the event")
	}

	select {
	case <-ch2:
		t.Fatal("room2 subscriber should not receive room1 events")
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := New()
	ch := b.Subscribe("room1")
	defer b.Unsubscribe("room1", ch)

	// Overflow the buffer without reading; publishes must not block.
	for i := 0; i < 20; i++ {
		b.Publish("room1", "playlist:song-added", nil)
	}

	// The buffer holds what fit; the rest were dropped.
	if got := len(ch); got != cap(ch) {
		t.Fatalf("buffered events = %d, want %d", got, cap(ch))
	}
}

func TestMultipleSubscribers(t *testing.T) {
	b := New()
	ch1 := b.Subscribe("room1")
	ch2 := b.Subscribe("room1")
	defer b.Unsubscribe("room1", ch1)
	defer b.Unsubscribe("room1", ch2)

	b.Publish("room1", "room:closed", nil)

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
			// expected
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d should have received the event", i)
		}
	}
}

func TestUnsubscribeCleansUpEmptyRoom(t *testing.T) {
	b := New()
	ch := b.Subscribe("room1")
	b.Unsubscribe("room1", ch)

	b.mu.Lock()
	_, exists := b.subs["room1"]
	b.mu.Unlock()

	if exists {
		t.Fatal("expected room entry to be removed after last unsubscribe")
	}
}

func TestPublishToNonexistentRoom(t *testing.T) {
	b := New()
	// Should not panic
	b.Publish("nonexistent", "user:joined", nil)
}

func TestConcurrentAccess(t *testing.T) {
	b := New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := b.Subscribe("room1")
			b.Publish("room1", "user:joined", nil)
			<-ch
			b.Unsubscribe("room1", ch)
		}()
	}

	wg.Wait()
}
