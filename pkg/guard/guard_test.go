package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/toweroftemptation/towerbot/pkg/premium"
	"github.com/toweroftemptation/towerbot/pkg/storage"
)

type fakeEvaluator struct {
	allow  bool
	reason string
	tier   premium.Tier
}

func (f *fakeEvaluator) Evaluate(guildID string, req premium.Requirement) (bool, string) {
	if f.allow {
		return true, ""
	}
	return false, f.reason
}

func (f *fakeEvaluator) EffectiveTier(guildID string) (premium.Tier, error) {
	return f.tier, nil
}

type fakeServers struct {
	servers map[string]*storage.GameServer // key: guildID + "/" + serverID
	count   int
}

func (f *fakeServers) GetServer(guildID, serverID string) (*storage.GameServer, error) {
	return f.servers[guildID+"/"+serverID], nil
}

func (f *fakeServers) CountServers(guildID string) (int, error) {
	return f.count, nil
}

func newTestGuard(eval AccessEvaluator, servers ServerSource) *Guard {
	g := New(eval, servers, NewMetricsRegistry(), NewCooldownTracker())
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return g
}

func invocation(guildID string, replies *[]string) *Invocation {
	return &Invocation{
		Context: context.Background(),
		GuildID: guildID,
		UserID:  "user-1",
		Args:    map[string]string{},
		Reply: func(msg string) error {
			*replies = append(*replies, msg)
			return nil
		},
	}
}

func TestGuildOnlyRejectsDirectMessages(t *testing.T) {
	g := newTestGuard(&fakeEvaluator{allow: true}, &fakeServers{})
	called := false
	wrapped := g.Wrap(Config{Name: "link", GuildOnly: true}, func(inv *Invocation) error {
		called = true
		return nil
	})

	var replies []string
	if err := wrapped(invocation("", &replies)); err != nil {
		t.Fatalf("wrapped handler returned error: %v", err)
	}
	if called {
		t.Fatal("handler ran without guild context")
	}
	if len(replies) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(replies))
	}
}

func TestCooldownBlocksAndExpires(t *testing.T) {
	g := newTestGuard(&fakeEvaluator{allow: true}, &fakeServers{})
	now := time.Unix(1000, 0)
	g.cooldowns.now = func() time.Time { return now }

	calls := 0
	wrapped := g.Wrap(Config{Name: "ping", Cooldown: 10 * time.Second}, func(inv *Invocation) error {
		calls++
		return nil
	})

	var replies []string
	inv := invocation("g1", &replies)

	if err := wrapped(inv); err != nil {
		t.Fatalf("first invocation: %v", err)
	}
	if err := wrapped(inv); err != nil {
		t.Fatalf("second invocation: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 handler call inside cooldown window, got %d", calls)
	}
	if len(replies) != 1 || !strings.Contains(replies[0], "wait") {
		t.Fatalf("expected one cooldown reply, got %v", replies)
	}

	now = now.Add(11 * time.Second)
	if err := wrapped(inv); err != nil {
		t.Fatalf("post-expiry invocation: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected handler to run after cooldown expiry, calls=%d", calls)
	}
}

func TestPremiumDenialReachesUser(t *testing.T) {
	g := newTestGuard(&fakeEvaluator{allow: false, reason: "This feature requires the Silver tier. This server has the Free tier."}, &fakeServers{})
	wrapped := g.Wrap(Config{Name: "export", RequiredFeature: "database_export"}, func(inv *Invocation) error {
		t.Fatal("handler must not run on premium denial")
		return nil
	})

	var replies []string
	if err := wrapped(invocation("g1", &replies)); err != nil {
		t.Fatalf("wrapped handler returned error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0], "Silver") {
		t.Fatalf("expected denial reason naming tiers, got %v", replies)
	}
}

func TestServerLimitEnforced(t *testing.T) {
	servers := &fakeServers{count: 1}
	g := newTestGuard(&fakeEvaluator{allow: true, tier: premium.TierFree}, servers)
	wrapped := g.Wrap(Config{Name: "addserver", CheckServerLimit: true}, func(inv *Invocation) error {
		return nil
	})

	var replies []string
	if err := wrapped(invocation("g1", &replies)); err != nil {
		t.Fatalf("wrapped handler returned error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0], "limit") {
		t.Fatalf("expected limit rejection at free tier with 1 server, got %v", replies)
	}

	servers.count = 0
	replies = nil
	if err := wrapped(invocation("g1", &replies)); err != nil {
		t.Fatalf("wrapped handler returned error: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected pass below limit, got %v", replies)
	}
}

func TestServerIDCrossGuildIsolation(t *testing.T) {
	servers := &fakeServers{servers: map[string]*storage.GameServer{
		"guild-a/alpha": {GuildID: "guild-a", ServerID: "alpha"},
	}}
	g := newTestGuard(&fakeEvaluator{allow: true}, servers)

	ran := false
	wrapped := g.Wrap(Config{Name: "restart", ServerIDParam: "server"}, func(inv *Invocation) error {
		ran = true
		return nil
	})

	var replies []string
	inv := invocation("guild-b", &replies)
	inv.Args["server"] = "alpha"
	if err := wrapped(inv); err != nil {
		t.Fatalf("wrapped handler returned error: %v", err)
	}
	if ran {
		t.Fatal("handler ran for a server registered under another guild")
	}
	if len(replies) != 1 || !strings.Contains(replies[0], "not found") {
		t.Fatalf("expected not-found rejection, got %v", replies)
	}

	replies = nil
	inv = invocation("guild-a", &replies)
	inv.Args["server"] = "  #Alpha  "
	if err := wrapped(inv); err != nil {
		t.Fatalf("wrapped handler returned error: %v", err)
	}
	if !ran {
		t.Fatal("handler did not run for the owning guild")
	}
	if got := inv.Args["server"]; got != "alpha" {
		t.Fatalf("expected normalized server ID in args, got %q", got)
	}
}

func TestRetryExhaustionAttemptsAndSingleReply(t *testing.T) {
	g := newTestGuard(&fakeEvaluator{allow: true}, &fakeServers{})

	attempts := 0
	wrapped := g.Wrap(Config{Name: "fetch", RetryCount: 2, RetryBaseDelay: time.Millisecond}, func(inv *Invocation) error {
		attempts++
		return errors.New("connection refused")
	})

	var replies []string
	if err := wrapped(invocation("g1", &replies)); err != nil {
		t.Fatalf("wrapped handler returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("retry_count=2 must give exactly 3 attempts, got %d", attempts)
	}
	if len(replies) != 1 {
		t.Fatalf("expected exactly one failure reply, got %d: %v", len(replies), replies)
	}

	m, ok := g.Metrics().Snapshot("fetch")
	if !ok {
		t.Fatal("expected metrics for fetch")
	}
	if m.Errors != 1 || m.Invocations != 1 {
		t.Fatalf("retries must count as one failed invocation, got errors=%d invocations=%d", m.Errors, m.Invocations)
	}
}

func TestNonTransientFailsWithoutRetry(t *testing.T) {
	g := newTestGuard(&fakeEvaluator{allow: true}, &fakeServers{})

	attempts := 0
	wrapped := g.Wrap(Config{Name: "lookup", RetryCount: 3}, func(inv *Invocation) error {
		attempts++
		return errors.New("record not found")
	})

	var replies []string
	if err := wrapped(invocation("g1", &replies)); err != nil {
		t.Fatalf("wrapped handler returned error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("non-transient error must not retry, got %d attempts", attempts)
	}
	if len(replies) != 1 || !strings.Contains(replies[0], "could not be found") {
		t.Fatalf("expected not-found message, got %v", replies)
	}
}

func TestTimeoutProducesTimeoutMessage(t *testing.T) {
	g := newTestGuard(&fakeEvaluator{allow: true}, &fakeServers{})

	wrapped := g.Wrap(Config{Name: "slow", Timeout: 10 * time.Millisecond, RetryCount: 1, RetryBaseDelay: time.Millisecond}, func(inv *Invocation) error {
		<-inv.Context.Done()
		return inv.Context.Err()
	})

	var replies []string
	if err := wrapped(invocation("g1", &replies)); err != nil {
		t.Fatalf("wrapped handler returned error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0], "timed out") {
		t.Fatalf("expected timeout message, got %v", replies)
	}
	if !strings.Contains(replies[0], "2 attempts") {
		t.Fatalf("timeout message should report attempt count, got %q", replies[0])
	}
}

func TestSuccessRecordsLatencyMetric(t *testing.T) {
	g := newTestGuard(&fakeEvaluator{allow: true}, &fakeServers{})
	wrapped := g.Wrap(Config{Name: "ok"}, func(inv *Invocation) error { return nil })

	var replies []string
	for i := 0; i < 3; i++ {
		if err := wrapped(invocation("g1", &replies)); err != nil {
			t.Fatalf("invocation %d: %v", i, err)
		}
	}
	if len(replies) != 0 {
		t.Fatalf("successful invocations must not reply via guard, got %v", replies)
	}
	m, ok := g.Metrics().Snapshot("ok")
	if !ok || m.Invocations != 3 || m.Errors != 0 {
		t.Fatalf("unexpected metrics: %+v ok=%v", m, ok)
	}
}

func TestNormalizeServerID(t *testing.T) {
	cases := []struct {
		in, want string
		valid    bool
	}{
		{"Alpha", "alpha", true},
		{"  #Main-01  ", "main-01", true},
		{"srv_2", "srv_2", true},
		{"", "", false},
		{"bad id", "bad id", false},
		{"-leading", "-leading", false},
	}
	for _, c := range cases {
		got := NormalizeServerID(c.in)
		if got != c.want {
			t.Errorf("NormalizeServerID(%q) = %q, want %q", c.in, got, c.want)
		}
		if ValidServerID(got) != c.valid {
			t.Errorf("ValidServerID(%q) = %v, want %v", got, !c.valid, c.valid)
		}
	}
}

func TestClassifyCategories(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCategory
	}{
		{errors.New("server not found"), CategoryNotFound},
		{errors.New("permission denied"), CategoryPermission},
		{errors.New("entry already exists"), CategoryDuplicate},
		{errors.New("rate limit exceeded"), CategoryLimit},
		{errors.New("invalid port"), CategoryInvalid},
		{errors.New("discord api returned 502"), CategoryExternalAPI},
		{errors.New("sqlite: table locked"), CategoryDatabase},
		{errors.New("something odd"), CategoryUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %s, want %s", c.err, got, c.want)
		}
	}

	if msg := UserMessage(errors.New("something odd")); !strings.Contains(msg, "something odd") {
		t.Errorf("unknown-category message should include the raw error, got %q", msg)
	}
	if msg := UserMessage(errors.New("sqlite is sad")); strings.Contains(msg, "sad") {
		t.Errorf("classified message must not leak the raw error, got %q", msg)
	}
}

func TestMetricsReportSections(t *testing.T) {
	r := NewMetricsRegistry()
	for i := 0; i < 6; i++ {
		r.RecordError("flaky", fmt.Sprintf("boom %d", i))
	}
	for i := 0; i < 6; i++ {
		r.RecordSuccess("sluggish", 2.5)
	}
	r.RecordSuccess("fine", 0.1)

	problematic := r.Problematic()
	if len(problematic) != 1 || problematic[0].Name != "flaky" {
		t.Fatalf("expected flaky as problematic, got %+v", problematic)
	}
	slow := r.Slow()
	if len(slow) != 1 || slow[0].Name != "sluggish" {
		t.Fatalf("expected sluggish as slow, got %+v", slow)
	}

	report := r.Report()
	for _, want := range []string{"Problematic commands", "Slow commands", "flaky", "sluggish"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}

	r.Reset()
	if got := r.All(); len(got) != 0 {
		t.Fatalf("expected empty registry after reset, got %d entries", len(got))
	}
}
