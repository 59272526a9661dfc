package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/toweroftemptation/towerbot/pkg/log"
	"github.com/toweroftemptation/towerbot/pkg/sftplog"
	"github.com/toweroftemptation/towerbot/pkg/storage"
)

// Store is the persistence surface the manager needs: server lookup plus
// everything the monitors record. *storage.Store satisfies it.
type Store interface {
	Recorder
	GetServer(guildID, serverID string) (*storage.GameServer, error)
}

// SourcePool hands out shared log sources. *sftplog.Pool satisfies it.
type SourcePool interface {
	Acquire(key string, cfg sftplog.Config) sftplog.Source
	Release(key string) error
}

// Manager owns the running monitors, one per (guild, server). It shares
// SFTP connections through the pool and tears everything down on shutdown.
type Manager struct {
	store       Store
	pool        SourcePool
	notifier    Notifier
	settings    Settings
	dialTimeout time.Duration

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewManager wires the monitor registry.
func NewManager(store Store, pool SourcePool, notifier Notifier, settings Settings, dialTimeout time.Duration) *Manager {
	return &Manager{
		store:       store,
		pool:        pool,
		notifier:    notifier,
		settings:    settings,
		dialTimeout: dialTimeout,
		monitors:    make(map[string]*Monitor),
	}
}

// Start launches an event monitor for a registered server. It fails when the
// server is unknown to the guild or a monitor is already running for it.
func (m *Manager) Start(ctx context.Context, guildID, serverID string) error {
	srv, err := m.store.GetServer(guildID, serverID)
	if err != nil {
		return fmt.Errorf("look up server %s: %w", serverID, err)
	}
	if srv == nil {
		return fmt.Errorf("server %s not found in this guild", serverID)
	}

	key := sftplog.PoolKey(guildID, serverID)

	m.mu.Lock()
	if existing, ok := m.monitors[key]; ok {
		if state, _ := existing.State(); state != StateStopped {
			m.mu.Unlock()
			return fmt.Errorf("monitor already running for server %s", serverID)
		}
		// A stopped monitor's slot can be reclaimed.
		delete(m.monitors, key)
	}

	source := m.pool.Acquire(key, sftplog.Config{
		Host:        srv.Host,
		Port:        srv.Port,
		Username:    srv.Username,
		Password:    srv.Password,
		LogPath:     srv.LogPath,
		DialTimeout: m.dialTimeout,
	})
	release := func() {
		if err := m.pool.Release(key); err != nil {
			log.ErrorLogger().Error("sftp pool release failed", "key", key, "err", err)
		}
	}

	mon := New(*srv, source, release, m.store, m.notifier, m.settings)
	m.monitors[key] = mon
	m.mu.Unlock()

	if err := mon.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.monitors, key)
		m.mu.Unlock()
		release()
		return err
	}

	log.ApplicationLogger().Info("event monitor started", "guild_id", guildID, "server_id", serverID)
	return nil
}

// Stop shuts down the monitor for one server and waits for it to exit.
func (m *Manager) Stop(guildID, serverID string) error {
	key := sftplog.PoolKey(guildID, serverID)

	m.mu.Lock()
	mon, ok := m.monitors[key]
	if ok {
		delete(m.monitors, key)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("no monitor running for server %s", serverID)
	}
	mon.Stop()
	return nil
}

// Status returns the live state for one server's monitor. ok is false when
// no monitor exists for it in this process.
func (m *Manager) Status(guildID, serverID string) (State, string, bool) {
	m.mu.Lock()
	mon, ok := m.monitors[sftplog.PoolKey(guildID, serverID)]
	m.mu.Unlock()

	if !ok {
		return StateNotStarted, "", false
	}
	state, lastErr := mon.State()
	return state, lastErr, true
}

// Count returns the number of tracked monitors.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.monitors)
}

// StopAll shuts down every monitor, used at process exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	monitors := make([]*Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		monitors = append(monitors, mon)
	}
	m.monitors = make(map[string]*Monitor)
	m.mu.Unlock()

	for _, mon := range monitors {
		mon.Stop()
	}
	log.ApplicationLogger().Info("all event monitors stopped", "count", len(monitors))
}
