// ABOUTME: Layout resolves the on-disk layout MAIL uses for its SQLite store and registry file.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout is the filesystem layout rooted at a MAIL data directory:
//
//	home/mail.db            SQLiteStore database
//	home/swarm_registry.json registry persistence file
type Layout struct {
	home string
}

// NewLayout creates home (and any missing parents) and returns a Layout
// rooted there.
func NewLayout(home string) (*Layout, error) {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	return &Layout{home: home}, nil
}

// Home returns the data directory root.
func (l *Layout) Home() string { return l.home }

// DBPath returns the path of the SQLiteStore database file.
func (l *Layout) DBPath() string { return filepath.Join(l.home, "mail.db") }

// RegistryPath returns the path of the swarm registry persistence file.
func (l *Layout) RegistryPath() string { return filepath.Join(l.home, "swarm_registry.json") }
