// Package monitor runs the per-server event monitors: background goroutines
// that poll a game server's log over SFTP, classify new lines, persist them,
// and push Discord notifications.
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

// MonitorTypeEvents is the monitor_type recorded for log event monitors.
const MonitorTypeEvents = "events"

// State is the monitor lifecycle position.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Settings are the polling and reconnect knobs, normally taken from the
// [Monitor] section of the bot config.
type Settings struct {
	RefreshInterval      time.Duration
	StaleAfter           time.Duration
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	MaxReconnectAttempts int
}

// Recorder persists monitor status and classified log lines. *storage.Store
// satisfies it.
type Recorder interface {
	UpsertMonitorStatus(st storage.MonitorStatus) error
	TouchMonitorStatus(guildID, serverID, monitorType string) error
	MarkMonitorStopped(guildID, serverID, monitorType, errMsg string) error
	InsertEvent(rec storage.EventRecord) error
	InsertConnection(rec storage.ConnectionRecord) error
}

// Notifier delivers classified lines to Discord channels. An empty channel
// ID means the guild has not configured that feed; implementations are not
// called for it.
type Notifier interface {
	NotifyEvent(channelID string, srv storage.GameServer, eventType, message string, ts time.Time) error
	NotifyConnection(channelID string, srv storage.GameServer, action, message string, ts time.Time) error
	NotifyVoiceCall(channelID string, srv storage.GameServer, message string, ts time.Time) error
}

// Monitor polls one game server's log feed until stopped or its reconnect
// budget is exhausted.
type Monitor struct {
	server   storage.GameServer
	source   sftplog.Source
	release  func()
	recorder Recorder
	notifier Notifier
	settings Settings

	mu      sync.Mutex
	state   State
	lastErr string

	cancel context.CancelFunc
	done   chan struct{}

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New builds a monitor for one server. release runs when the monitor's
// goroutine exits, used to return the pooled SFTP connection.
func New(server storage.GameServer, source sftplog.Source, release func(), recorder Recorder, notifier Notifier, settings Settings) *Monitor {
	if release == nil {
		release = func() {}
	}
	return &Monitor{
		server:   server,
		source:   source,
		release:  release,
		recorder: recorder,
		notifier: notifier,
		settings: settings,
		state:    StateNotStarted,
		done:     make(chan struct{}),
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// State returns the current lifecycle state and last error text.
func (m *Monitor) State() (State, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.lastErr
}

func (m *Monitor) setState(s State, errText string) {
	m.mu.Lock()
	m.state = s
	m.lastErr = errText
	m.mu.Unlock()
}

// Start launches the monitor goroutine. A monitor starts at most once.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateNotStarted {
		m.mu.Unlock()
		return fmt.Errorf("monitor for %s already started", m.server.ServerID)
	}
	m.state = StateStarting
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if err := m.recorder.UpsertMonitorStatus(storage.MonitorStatus{
		GuildID:     m.server.GuildID,
		ServerID:    m.server.ServerID,
		MonitorType: MonitorTypeEvents,
		Running:     true,
		LastUpdated: m.now().UTC(),
		ChannelID:   m.server.EventsChannelID,
	}); err != nil {
		log.ErrorLogger().Error("failed to record monitor start", "server_id", m.server.ServerID, "err", err)
	}

	go m.run(runCtx)
	return nil
}

// Stop requests shutdown and waits for the monitor goroutine to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

// Done is closed when the monitor goroutine has exited.
func (m *Monitor) Done() <-chan struct{} { return m.done }

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	defer m.release()

	backoff := m.settings.InitialBackoff
	attempts := 0
	lastSuccess := m.now()

	if err := m.source.Connect(ctx); err != nil {
		log.ApplicationLogger().Warn("initial sftp connect failed",
			"guild_id", m.server.GuildID, "server_id", m.server.ServerID, "err", err)
		if !m.reconnect(ctx, &backoff, &attempts) {
			return
		}
		lastSuccess = m.now()
	}

	m.setState(StateRunning, "")
	log.ApplicationLogger().Info("event monitor running",
		"guild_id", m.server.GuildID, "server_id", m.server.ServerID)

	for {
		if ctx.Err() != nil {
			m.stopWith("")
			return
		}

		entries, err := m.source.ReadNew(ctx)

		switch {
		case err != nil && ctx.Err() != nil:
			m.stopWith("")
			return
		case err != nil:
			// A failed read does not mean the connection is gone. Game
			// hosts rotate and briefly remove log files; keep polling on
			// the live session and only rebuild it when the transport
			// itself dropped or the feed has been dark past StaleAfter.
			log.ApplicationLogger().Warn("log read failed",
				"server_id", m.server.ServerID, "err", err)
			stale := m.now().Sub(lastSuccess) > m.settings.StaleAfter
			if stale {
				log.ApplicationLogger().Warn("log feed stale, forcing reconnect",
					"server_id", m.server.ServerID, "stale_after", m.settings.StaleAfter.String())
			}
			if !m.source.IsConnected() || stale {
				if !m.reconnect(ctx, &backoff, &attempts) {
					return
				}
				lastSuccess = m.now()
			}
		default:
			lastSuccess = m.now()
			backoff = m.settings.InitialBackoff
			attempts = 0
			m.processEntries(entries)
			if err := m.recorder.TouchMonitorStatus(m.server.GuildID, m.server.ServerID, MonitorTypeEvents); err != nil {
				log.ErrorLogger().Error("failed to touch monitor status",
					"server_id", m.server.ServerID, "err", err)
			}
		}

		if err := m.sleep(ctx, m.settings.RefreshInterval); err != nil {
			m.stopWith("")
			return
		}
	}
}

// reconnect tears the connection down and retries with exponential backoff.
// Returns false when the monitor must stop: budget exhausted or canceled.
func (m *Monitor) reconnect(ctx context.Context, backoff *time.Duration, attempts *int) bool {
	m.setState(StateReconnecting, "")
	m.source.Disconnect()

	for {
		if ctx.Err() != nil {
			m.stopWith("")
			return false
		}

		*attempts++
		if *attempts > m.settings.MaxReconnectAttempts {
			m.stopWith(fmt.Sprintf("maximum reconnection attempts (%d) reached", m.settings.MaxReconnectAttempts))
			return false
		}

		log.ApplicationLogger().Info("waiting before reconnect",
			"server_id", m.server.ServerID,
			"backoff", backoff.String(),
			"attempt", *attempts,
			"max_attempts", m.settings.MaxReconnectAttempts)
		if err := m.sleep(ctx, *backoff); err != nil {
			m.stopWith("")
			return false
		}
		*backoff = nextBackoff(*backoff, m.settings.MaxBackoff)

		if err := m.source.Connect(ctx); err != nil {
			log.ApplicationLogger().Warn("reconnect attempt failed",
				"server_id", m.server.ServerID, "attempt", *attempts, "err", err)
			continue
		}

		log.ApplicationLogger().Info("sftp reconnected",
			"server_id", m.server.ServerID, "attempt", *attempts)
		*backoff = m.settings.InitialBackoff
		*attempts = 0
		m.setState(StateRunning, "")
		return true
	}
}

// processEntries classifies and persists new log lines. A failing line is
// logged and skipped; one bad line never stops the feed.
func (m *Monitor) processEntries(entries []sftplog.Entry) {
	for _, e := range entries {
		if eventType, ok := ClassifyEvent(e.Message); ok {
			if err := m.recorder.InsertEvent(storage.EventRecord{
				ServerID:  m.server.ServerID,
				Type:      eventType,
				Message:   e.Message,
				Timestamp: e.Timestamp,
			}); err != nil {
				log.ErrorLogger().Error("failed to persist event", "server_id", m.server.ServerID, "err", err)
			}
			if m.server.EventsChannelID != "" {
				if err := m.notifier.NotifyEvent(m.server.EventsChannelID, m.server, eventType, e.Message, e.Timestamp); err != nil {
					log.ErrorLogger().Error("event notification failed", "server_id", m.server.ServerID, "err", err)
				}
			}
		}

		if action, ok := ClassifyConnection(e.Message); ok {
			if err := m.recorder.InsertConnection(storage.ConnectionRecord{
				ServerID:  m.server.ServerID,
				Action:    action,
				Message:   e.Message,
				Timestamp: e.Timestamp,
			}); err != nil {
				log.ErrorLogger().Error("failed to persist connection", "server_id", m.server.ServerID, "err", err)
			}
			if m.server.ConnectionsChannelID != "" {
				if err := m.notifier.NotifyConnection(m.server.ConnectionsChannelID, m.server, action, e.Message, e.Timestamp); err != nil {
					log.ErrorLogger().Error("connection notification failed", "server_id", m.server.ServerID, "err", err)
				}
			}
		}

		if m.server.VoiceNotifications && IsVoiceCall(e.Message) {
			if err := m.recorder.InsertEvent(storage.EventRecord{
				ServerID:  m.server.ServerID,
				Type:      "voice call",
				Message:   e.Message,
				Timestamp: e.Timestamp,
			}); err != nil {
				log.ErrorLogger().Error("failed to persist voice call", "server_id", m.server.ServerID, "err", err)
			}
			if m.server.EventsChannelID != "" {
				if err := m.notifier.NotifyVoiceCall(m.server.EventsChannelID, m.server, e.Message, e.Timestamp); err != nil {
					log.ErrorLogger().Error("voice call notification failed", "server_id", m.server.ServerID, "err", err)
				}
			}
		}
	}
}

// stopWith records the terminal state. The source stays open: it is pooled
// and the release callback closes it once the last reference is gone.
func (m *Monitor) stopWith(errText string) {
	m.setState(StateStopped, errText)
	if err := m.recorder.MarkMonitorStopped(m.server.GuildID, m.server.ServerID, MonitorTypeEvents, errText); err != nil {
		log.ErrorLogger().Error("failed to record monitor stop", "server_id", m.server.ServerID, "err", err)
	}
	if errText != "" {
		log.ErrorLogger().Error("event monitor stopped",
			"guild_id", m.server.GuildID, "server_id", m.server.ServerID, "reason", errText)
	} else {
		log.ApplicationLogger().Info("event monitor stopped",
			"guild_id", m.server.GuildID, "server_id", m.server.ServerID)
	}
}

// nextBackoff doubles the delay up to max.
func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
