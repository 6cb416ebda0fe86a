/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/friendsincode/timetile/internal/tile"
)

// HTTPSource GETs tiles from a URL template. The template may use {x}, {y},
// {z} or {level}, {time} (interval start, RFC 3339), {id} (interval id) and
// any string-valued key of the interval payload, e.g. {date}.
type HTTPSource struct {
	Template string
	Client   *http.Client
	// Headers are added to every request.
	Headers map[string]string
	// MaxBytes caps the response body. Zero means 16 MiB.
	MaxBytes int64
}

// NewHTTPSource returns a source for template using a client with timeout.
// Requests carry the fetch span's trace context to the origin.
func NewHTTPSource(template string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		Template: template,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *HTTPSource) Name() string { return "http" }

// URL expands the template for req.
func (s *HTTPSource) URL(req tile.Request) string {
	pairs := []string{
		"{x}", strconv.Itoa(req.Key.X),
		"{y}", strconv.Itoa(req.Key.Y),
		"{z}", strconv.Itoa(req.Key.Level),
		"{level}", strconv.Itoa(req.Key.Level),
		"{time}", req.Interval.Start.UTC().Format(time.RFC3339),
		"{id}", req.Interval.ID(),
	}
	for k, v := range req.Interval.Payload {
		if k == "" {
			continue
		}
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(s.Template)
}

func (s *HTTPSource) Load(ctx context.Context, req tile.Request) (tile.Result, error) {
	url := s.URL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return tile.Result{}, fmt.Errorf("build request: %w", err)
	}
	for k, v := range s.Headers {
		httpReq.Header.Set(k, v)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return tile.Result{}, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return tile.Result{}, fmt.Errorf("get %s: %w", url, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return tile.Result{}, fmt.Errorf("get %s: %w: %d", url, ErrUnexpectedStatus, resp.StatusCode)
	}

	limit := s.MaxBytes
	if limit <= 0 {
		limit = 16 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return tile.Result{}, fmt.Errorf("read %s: %w", url, err)
	}

	return tile.Result{
		Key:         req.Key,
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
