package logbuffer

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func TestRingOverwritesOldest(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Add(LogEntry{Message: fmt.Sprint(i)})
	}
	all := b.GetAll()
	if len(all) != 3 {
		t.Fatalf("len = %d", len(all))
	}
	for i, want := range []string{"2", "3", "4"} {
		if all[i].Message != want {
			t.Fatalf("entry %d = %q, want %q", i, all[i].Message, want)
		}
	}
}

func TestWriterCapturesZerolog(t *testing.T) {
	b := New(10)
	logger := zerolog.New(NewWriter(b)).With().Timestamp().Logger()

	logger.Info().Str("component", "scheduler").Int("to", 2).Msg("interval changed")
	logger.Debug().Str("component", "fetch").Str("tile", "1-2-3").Msg("tile fetch finished")
	logger.Warn().Str("component", "fetch").Msg("origin slow")

	entries := b.Query(QueryParams{Component: "fetch"})
	if len(entries) != 2 {
		t.Fatalf("fetch entries = %d, want 2", len(entries))
	}
	if entries[0].Fields["tile"] != "1-2-3" {
		t.Fatalf("fields = %v", entries[0].Fields)
	}

	if got := b.Query(QueryParams{Search: "INTERVAL"}); len(got) != 1 || got[0].Level != "info" {
		t.Fatalf("search result = %+v", got)
	}

	latest := b.Query(QueryParams{Descending: true, Limit: 1})
	if len(latest) != 1 || latest[0].Message != "origin slow" {
		t.Fatalf("latest = %+v", latest)
	}

	stats := b.Stats()
	if stats.Count != 3 || stats.LevelCount["debug"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
