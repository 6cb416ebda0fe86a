/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/timetile/internal/events"
	"github.com/friendsincode/timetile/internal/telemetry"
)

const (
	streamPingInterval = 15 * time.Second
	streamWriteTimeout = 5 * time.Second
)

type streamEvent struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload,omitempty"`
}

// handleEvents streams bus events over a websocket. The optional "types"
// query parameter is a comma separated list; it defaults to every type.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusNotFound, "events_disabled")
		return
	}

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = events.AllTypes
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.EventStreamConnections.Inc()
	defer telemetry.EventStreamConnections.Dec()

	// Clients only listen; CloseRead handles their control frames.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	merged := make(chan streamEvent, 16)
	subscribers := make([]events.Subscriber, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		sub := s.bus.Subscribe(eventType)
		subscribers = append(subscribers, sub)
		go forward(ctx, eventType, sub, merged)
	}
	defer func() {
		for i, eventType := range eventTypes {
			s.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := s.writeStream(ctx, conn, streamEvent{Type: "ping"}); err != nil {
				s.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev := <-merged:
			if err := s.writeStream(ctx, conn, ev); err != nil {
				s.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func forward(ctx context.Context, eventType events.EventType, sub events.Subscriber, out chan<- streamEvent) {
	for {
		select {
		case payload, ok := <-sub:
			if !ok {
				return
			}
			select {
			case out <- streamEvent{Type: eventType, Payload: payload}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeStream(ctx context.Context, conn *ws.Conn, ev streamEvent) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

// parseEventTypes keeps the known types named in raw, in order.
func parseEventTypes(raw string) []events.EventType {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	known := make(map[events.EventType]bool, len(events.AllTypes))
	for _, t := range events.AllTypes {
		known[t] = true
	}

	var out []events.EventType
	seen := make(map[events.EventType]bool)
	for _, part := range strings.Split(raw, ",") {
		t := events.EventType(strings.TrimSpace(part))
		if known[t] && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
