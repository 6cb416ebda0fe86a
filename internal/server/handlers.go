/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/timetile/internal/events"
	"github.com/friendsincode/timetile/internal/fetch"
	"github.com/friendsincode/timetile/internal/logbuffer"
	"github.com/friendsincode/timetile/internal/player"
	"github.com/friendsincode/timetile/internal/tile"
)

// maxPrefetchKeys caps a single prefetch request body.
const maxPrefetchKeys = 1024

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.player.Status(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	key, err := tileKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_tile")
		return
	}

	h, err := s.player.Tile(r.Context(), key, nil)
	switch {
	case errors.Is(err, player.ErrNoInterval):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "no_interval")
		return
	case errors.Is(err, player.ErrThrottled):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "throttled")
		return
	case errors.Is(err, player.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "stopped")
		return
	case err != nil:
		// The client went away before the player answered.
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.tileTimeout)
	defer cancel()

	result, err := h.Future.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			h.Cancel.Cancel()
			if r.Context().Err() == nil {
				writeError(w, http.StatusGatewayTimeout, "timeout")
			}
			return
		}
		if errors.Is(err, fetch.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		s.logger.Warn().Err(err).Str("tile", key.String()).Str("interval", h.Interval.ID()).Msg("tile fetch failed")
		if s.bus != nil {
			s.bus.Publish(events.EventFetchFailed, events.Payload{
				"tile":     key.String(),
				"interval": h.Interval.ID(),
				"error":    err.Error(),
			})
		}
		writeError(w, http.StatusBadGateway, "fetch_failed")
		return
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("X-Tile-Interval", h.Interval.ID())
	w.Header().Set("X-Tile-Prefetched", strconv.FormatBool(h.Prefetched))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func tileKey(r *http.Request) (tile.Key, error) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil {
		return tile.Key{}, err
	}
	x, err := strconv.Atoi(chi.URLParam(r, "x"))
	if err != nil {
		return tile.Key{}, err
	}
	y, err := strconv.Atoi(chi.URLParam(r, "y"))
	if err != nil {
		return tile.Key{}, err
	}
	if level < 0 || x < 0 || y < 0 {
		return tile.Key{}, errors.New("tile coordinates must not be negative")
	}
	return tile.Key{X: x, Y: y, Level: level}, nil
}

type prefetchRequest struct {
	Tiles []struct {
		X     int `json:"x"`
		Y     int `json:"y"`
		Level int `json:"level"`
	} `json:"tiles"`
}

func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	var req prefetchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.Tiles) > maxPrefetchKeys {
		writeError(w, http.StatusRequestEntityTooLarge, "too_many_tiles")
		return
	}

	keys := make([]tile.Key, 0, len(req.Tiles))
	for _, t := range req.Tiles {
		keys = append(keys, tile.Key{X: t.X, Y: t.Y, Level: t.Level})
	}
	if err := s.player.Prefetch(r.Context(), keys); err != nil {
		writeError(w, http.StatusServiceUnavailable, "stopped")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(keys)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.player.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "stopped")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	var update player.ClockUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	st, err := s.player.UpdateClock(r.Context(), update)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "stopped")
		return
	}
	s.logger.Info().
		Time("time", st.Time).
		Float64("multiplier", st.Multiplier).
		Bool("playing", st.Playing).
		Msg("clock updated")
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logBuffer == nil {
		writeError(w, http.StatusNotFound, "logs_disabled")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		Search:     q.Get("search"),
		Descending: q.Get("order") != "asc",
		Limit:      200,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = since
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.logBuffer.Query(params),
		"stats":   s.logBuffer.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
