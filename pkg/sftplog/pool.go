package sftplog

import (
	"fmt"
	"sync"

	"github.com/toweroftemptation/towerbot/pkg/log"
)

// Pool shares one Source per (guild, server) key across monitors. Handles
// are reference counted; the underlying connection closes when the last
// holder releases it.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*poolEntry

	// newSource is swapped in tests.
	newSource func(cfg Config) Source
}

type poolEntry struct {
	source Source
	refs   int
}

// NewPool creates an empty pool backed by real SFTP clients.
func NewPool() *Pool {
	return &Pool{
		entries:   make(map[string]*poolEntry),
		newSource: func(cfg Config) Source { return NewClient(cfg) },
	}
}

// PoolKey builds the canonical pool key for a guild's game server.
func PoolKey(guildID, serverID string) string {
	return guildID + "/" + serverID
}

// Acquire returns the shared Source for key, creating it on first use. Every
// Acquire must be paired with exactly one Release.
func (p *Pool) Acquire(key string, cfg Config) Source {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		e = &poolEntry{source: p.newSource(cfg)}
		p.entries[key] = e
	}
	e.refs++
	return e.source
}

// Release drops one reference. The last release disconnects and removes the
// entry. Releasing an unknown key is an error.
func (p *Pool) Release(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		return fmt.Errorf("sftp pool: release of unknown key %q", key)
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}

	delete(p.entries, key)
	if err := e.source.Disconnect(); err != nil {
		log.ErrorLogger().Error("sftp pool disconnect failed", "key", key, "err", err)
		return err
	}
	return nil
}

// Len reports how many live connections the pool holds.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
