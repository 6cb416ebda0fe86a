/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/timetile/internal/events"
)

// hub is an in-process Transport shared by several buses.
type hub struct {
	mu       sync.Mutex
	handlers map[string]map[int]func([]byte)
	next     int
}

func newHub() *hub { return &hub{handlers: make(map[string]map[int]func([]byte))} }

func (h *hub) Name() string { return "hub" }

func (h *hub) Publish(ctx context.Context, subject string, data []byte) error {
	h.mu.Lock()
	var targets []func([]byte)
	for _, fn := range h.handlers[subject] {
		targets = append(targets, fn)
	}
	h.mu.Unlock()
	for _, fn := range targets {
		fn(data)
	}
	return nil
}

func (h *hub) Subscribe(subject string, handler func([]byte)) (func() error, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers[subject] == nil {
		h.handlers[subject] = make(map[int]func([]byte))
	}
	id := h.next
	h.next++
	h.handlers[subject][id] = handler
	return func() error {
		h.mu.Lock()
		delete(h.handlers[subject], id)
		h.mu.Unlock()
		return nil
	}, nil
}

func (h *hub) Close() error { return nil }

func (h *hub) subscriptions(subject string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers[subject])
}

func receive(t *testing.T, sub events.Subscriber) events.Payload {
	t.Helper()
	select {
	case p := <-sub:
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestEventsCrossNodes(t *testing.T) {
	h := newHub()
	a := New(h, "a", zerolog.Nop())
	b := New(h, "b", zerolog.Nop())

	subA := a.Subscribe(events.EventReload)
	subB := b.Subscribe(events.EventReload)

	a.Publish(events.EventReload, events.Payload{"interval": "2026-03-01"})

	if p := receive(t, subA); p["interval"] != "2026-03-01" {
		t.Fatalf("local payload = %v", p)
	}
	if p := receive(t, subB); p["interval"] != "2026-03-01" {
		t.Fatalf("remote payload = %v", p)
	}

	// The publishing node must not see its own event twice.
	select {
	case p := <-subA:
		t.Fatalf("echoed event %v", p)
	default:
	}
}

func TestRemoteSubscriptionFollowsLocalSubscribers(t *testing.T) {
	h := newHub()
	bus := New(h, "a", zerolog.Nop())
	subject := SubjectPrefix + string(events.EventClockChanged)

	first := bus.Subscribe(events.EventClockChanged)
	second := bus.Subscribe(events.EventClockChanged)
	if n := h.subscriptions(subject); n != 1 {
		t.Fatalf("remote subscriptions = %d, want 1", n)
	}

	bus.Unsubscribe(events.EventClockChanged, first)
	if n := h.subscriptions(subject); n != 1 {
		t.Fatal("remote subscription dropped while a subscriber remains")
	}
	bus.Unsubscribe(events.EventClockChanged, second)
	if n := h.subscriptions(subject); n != 0 {
		t.Fatalf("remote subscriptions = %d after last unsubscribe", n)
	}
}

func TestLocalOnlyBus(t *testing.T) {
	bus := New(nil, "", zerolog.Nop())
	sub := bus.Subscribe(events.EventFetchFailed)
	bus.Publish(events.EventFetchFailed, events.Payload{"tile": "1-2-3"})
	if p := receive(t, sub); p["tile"] != "1-2-3" {
		t.Fatalf("payload = %v", p)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	data, err := marshalMessage(events.EventIntervalChanged, events.Payload{"to": float64(2)}, "n1")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := unmarshalMessage(data)
	if err != nil {
		t.Fatal(err)
	}
	if msg.EventType != events.EventIntervalChanged || msg.NodeID != "n1" || msg.Payload["to"] != float64(2) || msg.MessageID == "" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if _, err := unmarshalMessage([]byte("{")); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
