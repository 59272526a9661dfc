package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSubscriptionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if sub, err := s.GetSubscription("g1"); err != nil || sub != nil {
		t.Fatalf("expected no subscription, got %v %v", sub, err)
	}

	expires := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	in := Subscription{
		GuildID:          "g1",
		Tier:             2,
		ExpiresAt:        expires,
		HasExpiry:        true,
		FeatureOverrides: []string{"sftp_access", "custom_charts"},
	}
	if err := s.UpsertSubscription(in); err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}

	out, err := s.GetSubscription("g1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if out == nil || out.Tier != 2 || !out.HasExpiry {
		t.Fatalf("unexpected subscription: %+v", out)
	}
	if len(out.FeatureOverrides) != 2 {
		t.Fatalf("expected 2 overrides, got %v", out.FeatureOverrides)
	}

	// Upsert replaces overrides rather than accumulating them.
	in.FeatureOverrides = []string{"sftp_access"}
	if err := s.UpsertSubscription(in); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	out, err = s.GetSubscription("g1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if len(out.FeatureOverrides) != 1 || out.FeatureOverrides[0] != "sftp_access" {
		t.Fatalf("expected overrides to be replaced, got %v", out.FeatureOverrides)
	}
}

func TestServerGuildIsolation(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertServer(GameServer{GuildID: "guildA", ServerID: "sv-1", Name: "Alpha"}); err != nil {
		t.Fatalf("upsert server: %v", err)
	}

	srv, err := s.GetServer("guildA", "sv-1")
	if err != nil || srv == nil {
		t.Fatalf("expected server in guildA, got %v %v", srv, err)
	}

	// Same server ID queried from another guild must not resolve.
	srv, err = s.GetServer("guildB", "sv-1")
	if err != nil {
		t.Fatalf("get server: %v", err)
	}
	if srv != nil {
		t.Fatalf("server leaked across guilds: %+v", srv)
	}

	n, err := s.CountServers("guildA")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 server in guildA, got %d %v", n, err)
	}
	if n, _ := s.CountServers("guildB"); n != 0 {
		t.Fatalf("expected 0 servers in guildB, got %d", n)
	}
}

func TestDeleteServer(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertServer(GameServer{GuildID: "guildA", ServerID: "sv-1", Name: "Alpha"}); err != nil {
		t.Fatalf("upsert server: %v", err)
	}

	// Deleting from the wrong guild must not touch the row.
	deleted, err := s.DeleteServer("guildB", "sv-1")
	if err != nil {
		t.Fatalf("delete server: %v", err)
	}
	if deleted {
		t.Fatalf("delete crossed guild boundary")
	}

	deleted, err = s.DeleteServer("guildA", "sv-1")
	if err != nil {
		t.Fatalf("delete server: %v", err)
	}
	if !deleted {
		t.Fatalf("expected delete to report a removed row")
	}

	if srv, _ := s.GetServer("guildA", "sv-1"); srv != nil {
		t.Fatalf("server still present after delete: %+v", srv)
	}

	// Second delete finds nothing.
	if deleted, _ = s.DeleteServer("guildA", "sv-1"); deleted {
		t.Fatalf("expected no-op on repeat delete")
	}
}

func TestMonitorStatusLifecycle(t *testing.T) {
	s := newTestStore(t)

	start := MonitorStatus{
		GuildID:     "g1",
		ServerID:    "sv-1",
		MonitorType: "events",
		Running:     true,
		ChannelID:   "chan-1",
	}
	if err := s.UpsertMonitorStatus(start); err != nil {
		t.Fatalf("upsert status: %v", err)
	}

	st, err := s.GetMonitorStatus("g1", "sv-1", "events")
	if err != nil || st == nil {
		t.Fatalf("get status: %v %v", st, err)
	}
	if !st.Running || st.ChannelID != "chan-1" {
		t.Fatalf("unexpected status: %+v", st)
	}

	before := st.LastUpdated
	time.Sleep(10 * time.Millisecond)
	if err := s.TouchMonitorStatus("g1", "sv-1", "events"); err != nil {
		t.Fatalf("touch status: %v", err)
	}
	st, _ = s.GetMonitorStatus("g1", "sv-1", "events")
	if !st.LastUpdated.After(before) {
		t.Fatalf("expected last_updated to advance, got %v <= %v", st.LastUpdated, before)
	}

	if err := s.MarkMonitorStopped("g1", "sv-1", "events", "connection lost"); err != nil {
		t.Fatalf("mark stopped: %v", err)
	}
	st, _ = s.GetMonitorStatus("g1", "sv-1", "events")
	if st.Running {
		t.Fatalf("expected monitor stopped, got %+v", st)
	}
	if st.Error != "connection lost" {
		t.Fatalf("expected error recorded, got %q", st.Error)
	}
}

func TestEventAndConnectionAppend(t *testing.T) {
	s := newTestStore(t)

	since := time.Now().Add(-time.Minute)
	if err := s.InsertEvent(EventRecord{ServerID: "sv-1", Type: "airdrop", Message: "Airdrop event triggered at grid 042"}); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if err := s.InsertEvent(EventRecord{ServerID: "sv-1", Type: "mission", Message: "Mission started"}); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if err := s.InsertConnection(ConnectionRecord{ServerID: "sv-1", Action: "connected", Message: "Player Bob123 connected"}); err != nil {
		t.Fatalf("insert connection: %v", err)
	}

	n, err := s.CountEventsSince("sv-1", since)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 events, got %d %v", n, err)
	}
	if n, _ := s.CountEventsSince("sv-2", since); n != 0 {
		t.Fatalf("expected 0 events for other server, got %d", n)
	}
}
