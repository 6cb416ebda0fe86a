package events

import "testing"

func TestPublishSubscribe(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(EventReload)
	other := b.Subscribe(EventClockChanged)

	b.Publish(EventReload, Payload{"interval": 1})

	select {
	case p := <-sub:
		if p["interval"] != 1 {
			t.Fatalf("payload = %v", p)
		}
	default:
		t.Fatal("expected event")
	}
	select {
	case p := <-other:
		t.Fatalf("unexpected event %v", p)
	default:
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(EventReload)
	for i := 0; i < 20; i++ {
		b.Publish(EventReload, Payload{"n": i})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("subscriber holds %d events, want %d", len(sub), cap(sub))
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(EventReload)
	b.Unsubscribe(EventReload, sub)
	b.Unsubscribe(EventReload, sub)

	if _, ok := <-sub; ok {
		t.Fatal("subscriber should be closed")
	}
	if n := b.Subscribers(EventReload); n != 0 {
		t.Fatalf("Subscribers() = %d", n)
	}
	b.Publish(EventReload, Payload{})
}
