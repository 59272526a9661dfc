package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps an embedded SQLite database holding guild subscriptions,
// registered game servers, monitor status rows, and the append-only event and
// connection logs produced by the monitors. It uses modernc.org/sqlite for
// CGO-less builds.
type Store struct {
	dbPath string
	db     *sql.DB
}

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	// Pragmas for durability and concurrency
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return fmt.Errorf("set WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return fmt.Errorf("enable FKs: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL;`); err != nil {
		_ = db.Close()
		return fmt.Errorf("set synchronous: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Subscription is the persisted premium record for a guild. Rows are never
// hard-deleted; revocation zeroes the tier so the history survives.
type Subscription struct {
	GuildID          string
	Tier             int
	ExpiresAt        time.Time
	HasExpiry        bool
	FeatureOverrides []string
	UpdatedAt        time.Time
}

// UpsertSubscription inserts or updates a guild's subscription row and
// replaces its feature overrides atomically.
func (s *Store) UpsertSubscription(sub Subscription) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if sub.GuildID == "" {
		return fmt.Errorf("guild id is empty")
	}

	var expires any
	if sub.HasExpiry {
		expires = sub.ExpiresAt.UTC()
	}
	updated := sub.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO guild_premium (guild_id, tier, expires_at, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(guild_id) DO UPDATE SET
           tier=excluded.tier,
           expires_at=excluded.expires_at,
           updated_at=excluded.updated_at`,
		sub.GuildID, sub.Tier, expires, updated,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM premium_overrides WHERE guild_id=?`, sub.GuildID); err != nil {
		return err
	}
	for _, feature := range sub.FeatureOverrides {
		if feature == "" {
			continue
		}
		if _, err := tx.Exec(
			`INSERT INTO premium_overrides (guild_id, feature) VALUES (?, ?)`,
			sub.GuildID, feature,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetSubscription returns the subscription for a guild, or nil when the guild
// has never been granted premium.
func (s *Store) GetSubscription(guildID string) (*Subscription, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	row := s.db.QueryRow(
		`SELECT guild_id, tier, expires_at, updated_at FROM guild_premium WHERE guild_id=?`,
		guildID,
	)

	var sub Subscription
	var expires sql.NullTime
	if err := row.Scan(&sub.GuildID, &sub.Tier, &expires, &sub.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if expires.Valid {
		sub.HasExpiry = true
		sub.ExpiresAt = expires.Time
	}

	rows, err := s.db.Query(`SELECT feature FROM premium_overrides WHERE guild_id=?`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var feature string
		if err := rows.Scan(&feature); err != nil {
			return nil, err
		}
		sub.FeatureOverrides = append(sub.FeatureOverrides, feature)
	}
	return &sub, rows.Err()
}

// GameServer is a game server registered under a guild. ServerID is unique
// only within its guild; cross-guild lookups must always filter by guild_id.
type GameServer struct {
	GuildID              string
	ServerID             string
	Name                 string
	Host                 string
	Port                 int
	Username             string
	Password             string
	LogPath              string
	EventsChannelID      string
	ConnectionsChannelID string
	VoiceNotifications   bool
}

// UpsertServer registers or updates a game server for a guild.
func (s *Store) UpsertServer(srv GameServer) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if srv.GuildID == "" || srv.ServerID == "" {
		return fmt.Errorf("guild id and server id are required")
	}
	_, err := s.db.Exec(
		`INSERT INTO guild_servers
           (guild_id, server_id, name, host, port, username, password, log_path,
            events_channel_id, connections_channel_id, voice_notifications)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(guild_id, server_id) DO UPDATE SET
           name=excluded.name,
           host=excluded.host,
           port=excluded.port,
           username=excluded.username,
           password=excluded.password,
           log_path=excluded.log_path,
           events_channel_id=excluded.events_channel_id,
           connections_channel_id=excluded.connections_channel_id,
           voice_notifications=excluded.voice_notifications`,
		srv.GuildID, srv.ServerID, srv.Name, srv.Host, srv.Port, srv.Username,
		srv.Password, srv.LogPath, srv.EventsChannelID, srv.ConnectionsChannelID,
		srv.VoiceNotifications,
	)
	return err
}

// GetServer returns a server registered under the given guild, or nil when the
// server does not exist in that guild. A server registered under another guild
// is never returned, even for an identical server ID.
func (s *Store) GetServer(guildID, serverID string) (*GameServer, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRow(
		`SELECT guild_id, server_id, name, host, port, username, password, log_path,
                events_channel_id, connections_channel_id, voice_notifications
         FROM guild_servers WHERE guild_id=? AND server_id=?`,
		guildID, serverID,
	)
	var srv GameServer
	if err := row.Scan(
		&srv.GuildID, &srv.ServerID, &srv.Name, &srv.Host, &srv.Port,
		&srv.Username, &srv.Password, &srv.LogPath,
		&srv.EventsChannelID, &srv.ConnectionsChannelID, &srv.VoiceNotifications,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &srv, nil
}

// ListServers returns all servers registered under a guild.
func (s *Store) ListServers(guildID string) ([]GameServer, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.Query(
		`SELECT guild_id, server_id, name, host, port, username, password, log_path,
                events_channel_id, connections_channel_id, voice_notifications
         FROM guild_servers WHERE guild_id=? ORDER BY server_id`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []GameServer
	for rows.Next() {
		var srv GameServer
		if err := rows.Scan(
			&srv.GuildID, &srv.ServerID, &srv.Name, &srv.Host, &srv.Port,
			&srv.Username, &srv.Password, &srv.LogPath,
			&srv.EventsChannelID, &srv.ConnectionsChannelID, &srv.VoiceNotifications,
		); err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// DeleteServer removes a guild's server registration. Deleting a server
// another guild owns is a no-op.
func (s *Store) DeleteServer(guildID, serverID string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("store not initialized")
	}
	res, err := s.db.Exec(
		`DELETE FROM guild_servers WHERE guild_id=? AND server_id=?`,
		guildID, serverID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountServers returns how many servers a guild has registered.
func (s *Store) CountServers(guildID string) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("store not initialized")
	}
	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM guild_servers WHERE guild_id=?`, guildID,
	).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// MonitorStatus tracks the lifecycle of one monitor task, keyed by
// (guild_id, server_id, monitor_type).
type MonitorStatus struct {
	GuildID     string
	ServerID    string
	MonitorType string
	Running     bool
	LastUpdated time.Time
	ChannelID   string
	Error       string
}

// UpsertMonitorStatus records a monitor transition (start, poll, stop).
func (s *Store) UpsertMonitorStatus(st MonitorStatus) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	updated := st.LastUpdated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO monitoring (guild_id, server_id, monitor_type, running, last_updated, channel_id, error)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(guild_id, server_id, monitor_type) DO UPDATE SET
           running=excluded.running,
           last_updated=excluded.last_updated,
           channel_id=excluded.channel_id,
           error=excluded.error`,
		st.GuildID, st.ServerID, st.MonitorType, st.Running, updated, st.ChannelID, st.Error,
	)
	return err
}

// TouchMonitorStatus refreshes last_updated for a running monitor.
func (s *Store) TouchMonitorStatus(guildID, serverID, monitorType string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.Exec(
		`UPDATE monitoring SET last_updated=? WHERE guild_id=? AND server_id=? AND monitor_type=?`,
		time.Now().UTC(), guildID, serverID, monitorType,
	)
	return err
}

// MarkMonitorStopped sets running=false, recording the final error if any.
func (s *Store) MarkMonitorStopped(guildID, serverID, monitorType, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.Exec(
		`UPDATE monitoring SET running=0, last_updated=?, error=?
         WHERE guild_id=? AND server_id=? AND monitor_type=?`,
		time.Now().UTC(), errMsg, guildID, serverID, monitorType,
	)
	return err
}

// GetMonitorStatus returns the status row for a monitor, or nil when the
// monitor has never been started.
func (s *Store) GetMonitorStatus(guildID, serverID, monitorType string) (*MonitorStatus, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRow(
		`SELECT guild_id, server_id, monitor_type, running, last_updated, channel_id, error
         FROM monitoring WHERE guild_id=? AND server_id=? AND monitor_type=?`,
		guildID, serverID, monitorType,
	)
	var st MonitorStatus
	if err := row.Scan(
		&st.GuildID, &st.ServerID, &st.MonitorType, &st.Running,
		&st.LastUpdated, &st.ChannelID, &st.Error,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// EventRecord is an append-only game event parsed from a server log line.
type EventRecord struct {
	ServerID  string
	Type      string
	Message   string
	Timestamp time.Time
}

// InsertEvent appends an event record.
func (s *Store) InsertEvent(rec EventRecord) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO events (server_id, type, message, timestamp) VALUES (?, ?, ?, ?)`,
		rec.ServerID, rec.Type, rec.Message, ts.UTC(),
	)
	return err
}

// ConnectionRecord is an append-only player connect/disconnect entry.
type ConnectionRecord struct {
	ServerID  string
	Action    string
	Message   string
	Timestamp time.Time
}

// InsertConnection appends a connection record.
func (s *Store) InsertConnection(rec ConnectionRecord) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO connections (server_id, action, message, timestamp) VALUES (?, ?, ?, ?)`,
		rec.ServerID, rec.Action, rec.Message, ts.UTC(),
	)
	return err
}

// CountEventsSince returns the number of events recorded for a server after
// the given time.
func (s *Store) CountEventsSince(serverID string, since time.Time) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("store not initialized")
	}
	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE server_id=? AND timestamp > ?`,
		serverID, since.UTC(),
	).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ensureSchema creates required tables and indexes if they don't exist.
func ensureSchema(db *sql.DB) error {
	const createGuildPremium = `
CREATE TABLE IF NOT EXISTS guild_premium (
  guild_id   TEXT PRIMARY KEY,
  tier       INTEGER NOT NULL DEFAULT 0,
  expires_at TIMESTAMP,
  updated_at TIMESTAMP NOT NULL
);`

	const createPremiumOverrides = `
CREATE TABLE IF NOT EXISTS premium_overrides (
  guild_id TEXT NOT NULL,
  feature  TEXT NOT NULL,
  PRIMARY KEY (guild_id, feature)
);`

	const createGuildServers = `
CREATE TABLE IF NOT EXISTS guild_servers (
  guild_id               TEXT NOT NULL,
  server_id              TEXT NOT NULL,
  name                   TEXT,
  host                   TEXT,
  port                   INTEGER,
  username               TEXT,
  password               TEXT,
  log_path               TEXT,
  events_channel_id      TEXT,
  connections_channel_id TEXT,
  voice_notifications    INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (guild_id, server_id)
);`

	const createMonitoring = `
CREATE TABLE IF NOT EXISTS monitoring (
  guild_id     TEXT NOT NULL,
  server_id    TEXT NOT NULL,
  monitor_type TEXT NOT NULL,
  running      INTEGER NOT NULL DEFAULT 0,
  last_updated TIMESTAMP NOT NULL,
  channel_id   TEXT,
  error        TEXT,
  PRIMARY KEY (guild_id, server_id, monitor_type)
);`

	const createEvents = `
CREATE TABLE IF NOT EXISTS events (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  server_id TEXT NOT NULL,
  type      TEXT NOT NULL,
  message   TEXT,
  timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_server_ts ON events(server_id, timestamp);`

	const createConnections = `
CREATE TABLE IF NOT EXISTS connections (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  server_id TEXT NOT NULL,
  action    TEXT NOT NULL,
  message   TEXT,
  timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_connections_server_ts ON connections(server_id, timestamp);`

	stmts := []string{
		createGuildPremium,
		createPremiumOverrides,
		createGuildServers,
		createMonitoring,
		createEvents,
		createConnections,
	}
	for _, sqlText := range stmts {
		if _, err := db.Exec(sqlText); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
