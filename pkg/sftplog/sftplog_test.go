package sftplog

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestParseLineTimestampLayouts(t *testing.T) {
	fallback := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	e := ParseLine("2025.05.30-18.22.10: Mission started at Alpha Base", fallback)
	if e.Message != "Mission started at Alpha Base" {
		t.Fatalf("unexpected message: %q", e.Message)
	}
	want := time.Date(2025, 5, 30, 18, 22, 10, 0, time.UTC)
	if !e.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", e.Timestamp, want)
	}

	e = ParseLine("Player Bob123 connected", fallback)
	if e.Message != "Player Bob123 connected" {
		t.Fatalf("untimestamped line must keep full text, got %q", e.Message)
	}
	if !e.Timestamp.Equal(fallback) {
		t.Fatalf("untimestamped line must use fallback time, got %v", e.Timestamp)
	}
}

func TestParseEntriesHoldsPartialLine(t *testing.T) {
	now := func() time.Time { return time.Unix(100, 0) }
	data := "first line\nsecond line\npartial"

	entries, consumed, err := parseEntries(strings.NewReader(data), int64(len(data)), now)
	if err != nil {
		t.Fatalf("parseEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 complete lines, got %d", len(entries))
	}
	if consumed != int64(len("first line\nsecond line\n")) {
		t.Fatalf("consumed = %d, want %d", consumed, len("first line\nsecond line\n"))
	}
}

func TestParseEntriesSkipsBlankLines(t *testing.T) {
	now := func() time.Time { return time.Unix(100, 0) }
	data := "one\n\n  \ntwo\n"

	entries, _, err := parseEntries(strings.NewReader(data), int64(len(data)), now)
	if err != nil {
		t.Fatalf("parseEntries: %v", err)
	}
	if len(entries) != 2 || entries[0].Message != "one" || entries[1].Message != "two" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

type stubSource struct {
	connected    bool
	disconnects  int
	disconnectFn func()
}

func (s *stubSource) Connect(ctx context.Context) error { s.connected = true; return nil }
func (s *stubSource) Disconnect() error {
	s.connected = false
	s.disconnects++
	if s.disconnectFn != nil {
		s.disconnectFn()
	}
	return nil
}
func (s *stubSource) IsConnected() bool                          { return s.connected }
func (s *stubSource) ReadNew(ctx context.Context) ([]Entry, error) { return nil, nil }

func TestPoolRefCounting(t *testing.T) {
	var created []*stubSource
	p := NewPool()
	p.newSource = func(cfg Config) Source {
		s := &stubSource{}
		created = append(created, s)
		return s
	}

	key := PoolKey("guild-1", "alpha")
	cfg := Config{Host: "h"}

	a := p.Acquire(key, cfg)
	b := p.Acquire(key, cfg)
	if a != b {
		t.Fatal("same key must share one source")
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 source created, got %d", len(created))
	}

	if err := p.Release(key); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if created[0].disconnects != 0 {
		t.Fatal("source closed while still referenced")
	}
	if err := p.Release(key); err != nil {
		t.Fatalf("last release: %v", err)
	}
	if created[0].disconnects != 1 {
		t.Fatalf("expected disconnect on last release, got %d", created[0].disconnects)
	}
	if p.Len() != 0 {
		t.Fatalf("pool should be empty, has %d entries", p.Len())
	}

	// Re-acquiring after the last release builds a fresh source.
	p.Acquire(key, cfg)
	if len(created) != 2 {
		t.Fatalf("expected new source after full release, got %d", len(created))
	}
}

func TestPoolReleaseUnknownKey(t *testing.T) {
	p := NewPool()
	if err := p.Release("missing"); err == nil {
		t.Fatal("expected error releasing unknown key")
	}
}

func TestPoolIsolatesKeys(t *testing.T) {
	p := NewPool()
	p.newSource = func(cfg Config) Source { return &stubSource{} }

	a := p.Acquire(PoolKey("guild-1", "alpha"), Config{})
	b := p.Acquire(PoolKey("guild-2", "alpha"), Config{})
	if a == b {
		t.Fatal("different guilds must not share sources")
	}
}
