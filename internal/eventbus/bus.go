/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus extends the in-process event bus across nodes over NATS
// or Redis pub/sub.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/timetile/internal/events"
)

// SubjectPrefix is prepended to the event type to form the remote subject.
const SubjectPrefix = "timetile.events."

// Transport moves encoded events between nodes.
type Transport interface {
	Name() string
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe calls handler for every message on subject until the
	// returned func is called.
	Subscribe(subject string, handler func(data []byte)) (func() error, error)
	Close() error
}

// Bus delivers events to local subscribers immediately and forwards them to
// other nodes through a Transport. Events that arrive from other nodes are
// delivered to local subscribers only.
type Bus struct {
	local     *events.Bus
	transport Transport
	nodeID    string
	logger    zerolog.Logger

	mu     sync.Mutex
	remote map[events.EventType]func() error
	refs   map[events.EventType]int
}

// New creates a distributed bus. A nil transport yields a local-only bus.
func New(transport Transport, nodeID string, logger zerolog.Logger) *Bus {
	if nodeID == "" {
		nodeID = NodeID()
	}
	return &Bus{
		local:     events.NewBus(),
		transport: transport,
		nodeID:    nodeID,
		logger:    logger.With().Str("component", "eventbus").Logger(),
		remote:    make(map[events.EventType]func() error),
		refs:      make(map[events.EventType]int),
	}
}

// NodeID returns hostname plus a random suffix.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Subscribe registers a local subscriber and, on first use of the event
// type, a remote subscription.
func (b *Bus) Subscribe(eventType events.EventType) events.Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refs[eventType]++
	if b.transport != nil {
		if _, ok := b.remote[eventType]; !ok {
			unsub, err := b.transport.Subscribe(SubjectPrefix+string(eventType), func(data []byte) {
				b.deliver(eventType, data)
			})
			if err != nil {
				b.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("remote subscribe failed, local delivery only")
			} else {
				b.remote[eventType] = unsub
			}
		}
	}
	return b.local.Subscribe(eventType)
}

func (b *Bus) deliver(eventType events.EventType, data []byte) {
	msg, err := unmarshalMessage(data)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to unmarshal remote event")
		return
	}
	if msg.NodeID == b.nodeID {
		return
	}
	b.local.Publish(eventType, msg.Payload)
	b.logger.Debug().
		Str("event_type", string(eventType)).
		Str("source_node", msg.NodeID).
		Msg("delivered remote event")
}

// Publish sends payload to local subscribers and to other nodes.
func (b *Bus) Publish(eventType events.EventType, payload events.Payload) {
	b.local.Publish(eventType, payload)
	if b.transport == nil {
		return
	}

	data, err := marshalMessage(eventType, payload, b.nodeID)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.transport.Publish(ctx, SubjectPrefix+string(eventType), data); err != nil {
		b.logger.Warn().Err(err).
			Str("event_type", string(eventType)).
			Str("transport", b.transport.Name()).
			Msg("failed to forward event")
	}
}

// Unsubscribe removes a local subscriber and drops the remote subscription
// once nobody listens for the event type.
func (b *Bus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	b.local.Unsubscribe(eventType, sub)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refs[eventType] > 0 {
		b.refs[eventType]--
	}
	if b.refs[eventType] == 0 {
		if unsub, ok := b.remote[eventType]; ok {
			if err := unsub(); err != nil {
				b.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("remote unsubscribe failed")
			}
			delete(b.remote, eventType)
		}
	}
}

// Close drops remote subscriptions and closes the transport.
func (b *Bus) Close() error {
	b.mu.Lock()
	for eventType, unsub := range b.remote {
		_ = unsub()
		delete(b.remote, eventType)
	}
	b.mu.Unlock()

	if b.transport != nil {
		return b.transport.Close()
	}
	return nil
}

// message is the wire envelope.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}
