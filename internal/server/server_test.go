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
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/timetile/internal/clock"
	"github.com/friendsincode/timetile/internal/events"
	"github.com/friendsincode/timetile/internal/fetch"
	"github.com/friendsincode/timetile/internal/interval"
	"github.com/friendsincode/timetile/internal/logbuffer"
	"github.com/friendsincode/timetile/internal/player"
	"github.com/friendsincode/timetile/internal/tile"
)

var epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

type stubFetcher struct {
	mu      sync.Mutex
	reject  bool
	pending bool
	err     error
	cancels int
}

func (f *stubFetcher) Fetch(req tile.Request) (tile.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return tile.Entry{}, false
	}
	cancel := tile.CancelFunc(func() {
		f.mu.Lock()
		f.cancels++
		f.mu.Unlock()
	})
	if f.pending {
		return tile.Entry{Future: tile.NewFuture(), Cancel: cancel}, true
	}
	result := tile.Result{Key: req.Key, Data: []byte("tile " + req.Key.String()), ContentType: "image/png"}
	return tile.Entry{Future: tile.Resolved(result, f.err), Cancel: cancel}, true
}

func (f *stubFetcher) cancelled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

type fixture struct {
	server  *Server
	bus     *events.Bus
	fetcher *stubFetcher
	logs    *logbuffer.Buffer
}

func newFixture(t *testing.T, now time.Time, f *stubFetcher, tileTimeout time.Duration) *fixture {
	t.Helper()

	idx := interval.MustNew([]interval.Interval{
		{Start: at(0), Stop: at(10), Payload: map[string]any{"id": "first"}},
		{Start: at(10), Stop: at(20), Payload: map[string]any{"id": "second"}},
	})
	clk := clock.NewPlayback(clock.Options{Start: epoch, Current: now, Paused: true})
	bus := events.NewBus()

	p, err := player.New(clk, idx, f, player.Options{Tick: time.Hour, Events: bus, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("player.New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	logs := logbuffer.New(16)
	return &fixture{
		server: New(Options{
			Player:      p,
			Bus:         bus,
			LogBuffer:   logs,
			TileTimeout: tileTimeout,
			Logger:      zerolog.Nop(),
		}),
		bus:     bus,
		fetcher: f,
		logs:    logs,
	}
}

func (fx *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	fx := newFixture(t, at(2), &stubFetcher{}, 0)
	if rr := fx.do(http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestTileServed(t *testing.T) {
	fx := newFixture(t, at(2), &stubFetcher{}, 0)

	rr := fx.do(http.MethodGet, "/api/v1/tiles/3/4/5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "tile 4-5-3" {
		t.Fatalf("body=%q", got)
	}
	if got := rr.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("Content-Type=%q", got)
	}
	if got := rr.Header().Get("X-Tile-Interval"); got != "first" {
		t.Fatalf("X-Tile-Interval=%q", got)
	}
	if got := rr.Header().Get("X-Tile-Prefetched"); got != "false" {
		t.Fatalf("X-Tile-Prefetched=%q", got)
	}
}

func TestTileErrors(t *testing.T) {
	tests := []struct {
		name       string
		now        time.Time
		fetcher    *stubFetcher
		path       string
		wantStatus int
		wantCode   string
		retry      bool
	}{
		{"bad coordinates", at(2), &stubFetcher{}, "/api/v1/tiles/a/1/2", http.StatusBadRequest, "invalid_tile", false},
		{"negative coordinates", at(2), &stubFetcher{}, "/api/v1/tiles/1/-1/2", http.StatusBadRequest, "invalid_tile", false},
		{"outside intervals", at(45), &stubFetcher{}, "/api/v1/tiles/1/1/2", http.StatusServiceUnavailable, "no_interval", true},
		{"throttled", at(2), &stubFetcher{reject: true}, "/api/v1/tiles/1/1/2", http.StatusServiceUnavailable, "throttled", true},
		{"missing tile", at(2), &stubFetcher{err: fetch.ErrNotFound}, "/api/v1/tiles/1/1/2", http.StatusNotFound, "not_found", false},
		{"origin failure", at(2), &stubFetcher{err: errors.New("boom")}, "/api/v1/tiles/1/1/2", http.StatusBadGateway, "fetch_failed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.now, tt.fetcher, 0)

			rr := fx.do(http.MethodGet, tt.path, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d", rr.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.wantCode {
				t.Fatalf("error=%q, want %q", body["error"], tt.wantCode)
			}
			if got := rr.Header().Get("Retry-After") != ""; got != tt.retry {
				t.Fatalf("Retry-After present=%v, want %v", got, tt.retry)
			}
		})
	}
}

func TestTileFailurePublishesEvent(t *testing.T) {
	fx := newFixture(t, at(2), &stubFetcher{err: errors.New("origin down")}, 0)
	sub := fx.bus.Subscribe(events.EventFetchFailed)

	fx.do(http.MethodGet, "/api/v1/tiles/2/1/0", "")

	select {
	case payload := <-sub:
		if payload["tile"] != "1-0-2" || payload["interval"] != "first" {
			t.Fatalf("payload=%v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no fetch.failed event")
	}
}

func TestTileTimeoutCancelsFetch(t *testing.T) {
	fx := newFixture(t, at(2), &stubFetcher{pending: true}, 50*time.Millisecond)

	rr := fx.do(http.MethodGet, "/api/v1/tiles/1/1/1", "")
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d, want 504", rr.Code)
	}
	if got := fx.fetcher.cancelled(); got != 1 {
		t.Fatalf("cancels=%d, want 1", got)
	}
}

func TestClockAndStatus(t *testing.T) {
	fx := newFixture(t, at(2), &stubFetcher{}, 0)

	rr := fx.do(http.MethodPost, "/api/v1/clock", `{"multiplier": -2, "seek": "2026-03-01T00:00:12Z"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = fx.do(http.MethodGet, "/api/v1/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var st player.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Multiplier != -2 || st.Playing {
		t.Fatalf("status=%+v", st)
	}
	if st.Current == nil || st.Current.ID != "second" {
		t.Fatalf("current=%+v", st.Current)
	}
	if !st.Time.Equal(at(12)) {
		t.Fatalf("time=%v", st.Time)
	}
}

func TestClockRejectsInvalidJSON(t *testing.T) {
	fx := newFixture(t, at(2), &stubFetcher{}, 0)
	if rr := fx.do(http.MethodPost, "/api/v1/clock", `{"multiplier":`); rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}

func TestPrefetch(t *testing.T) {
	fx := newFixture(t, at(2), &stubFetcher{}, 0)

	rr := fx.do(http.MethodPost, "/api/v1/prefetch", `{"tiles":[{"x":1,"y":2,"level":3},{"x":2,"y":2,"level":3}]}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var st player.Status
	_ = json.Unmarshal(fx.do(http.MethodGet, "/api/v1/status", "").Body.Bytes(), &st)
	if st.Pending != 2 {
		t.Fatalf("pending=%d, want 2", st.Pending)
	}
}

func TestLogs(t *testing.T) {
	fx := newFixture(t, at(2), &stubFetcher{}, 0)
	fx.logs.Add(logbuffer.LogEntry{Timestamp: at(0), Level: "info", Message: "started", Component: "player"})
	fx.logs.Add(logbuffer.LogEntry{Timestamp: at(1), Level: "error", Message: "origin down", Component: "fetch"})

	rr := fx.do(http.MethodGet, "/api/v1/logs?level=error", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var body struct {
		Entries []logbuffer.LogEntry `json:"entries"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Message != "origin down" {
		t.Fatalf("entries=%+v", body.Entries)
	}

	if rr := fx.do(http.MethodGet, "/api/v1/logs?limit=zero", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}

func TestEventStream(t *testing.T) {
	fx := newFixture(t, at(2), &stubFetcher{}, 0)
	srv := httptest.NewServer(fx.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?types=clock.changed"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	for fx.bus.Subscribers(events.EventClockChanged) == 0 {
		if ctx.Err() != nil {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if rr := fx.do(http.MethodPost, "/api/v1/clock", `{"playing": true}`); rr.Code != http.StatusOK {
		t.Fatalf("clock status=%d", rr.Code)
	}

	var ev struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != string(events.EventClockChanged) || ev.Payload["playing"] != true {
		t.Fatalf("event=%+v", ev)
	}
}

func TestParseEventTypes(t *testing.T) {
	got := parseEventTypes(" clock.changed, bogus,fetch.failed,clock.changed")
	want := []events.EventType{events.EventClockChanged, events.EventFetchFailed}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if parseEventTypes("") != nil {
		t.Fatal("empty input should select nothing")
	}
}
