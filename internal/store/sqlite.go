// ABOUTME: SQLiteStore is the default backing for the pluggable memory/KV interface.
// ABOUTME: Persists acknowledge_broadcast memories and per-agent history snapshots.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/2389-research/mail/internal/message"
)

// SQLiteStore is the concrete default implementation of runtime.Store: a
// queryable cache of acknowledged broadcasts and agent-history snapshots,
// not the runtime's source of truth (the in-memory AgentHistory is), the
// same way the teacher treats its own SQLite index as a rebuildable cache
// rather than a system of record.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite-backed store at path, creating its schema
// if necessary.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS broadcast_memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			broadcast_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			note TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_broadcast_memories_agent
			ON broadcast_memories(agent_id);

		CREATE TABLE IF NOT EXISTS agent_histories (
			agent_id TEXT PRIMARY KEY,
			entries_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Remember persists an acknowledged broadcast for agentID, satisfying
// runtime.Store. Only Broadcast-kind envelopes reach here (the runtime
// enforces that before calling Remember); this method does not re-check.
func (s *SQLiteStore) Remember(ctx context.Context, agentID string, m message.MAILMessage, note string) error {
	broadcastID := ""
	if b, ok := m.Body.(message.BroadcastBody); ok {
		broadcastID = b.BroadcastID.String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcast_memories (agent_id, task_id, broadcast_id, sender, subject, body, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		agentID, m.TaskID().String(), broadcastID, m.Sender().String(), m.Subject(), m.Text(), note, m.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"))
	if err != nil {
		return fmt.Errorf("store: remember: %w", err)
	}
	return nil
}

// Memory is one row recalled from the broadcast-memory table.
type Memory struct {
	TaskID  string
	Sender  string
	Subject string
	Body    string
	Note    string
	At      string
}

// Recall returns every broadcast memory recorded for agentID, most recent last.
func (s *SQLiteStore) Recall(ctx context.Context, agentID string) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, sender, subject, body, note, created_at FROM broadcast_memories
		 WHERE agent_id = ? ORDER BY id ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("store: recall: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.TaskID, &m.Sender, &m.Subject, &m.Body, &m.Note, &m.At); err != nil {
			return nil, fmt.Errorf("store: scan memory row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveHistory snapshots an agent's full history, for recovery across restarts.
func (s *SQLiteStore) SaveHistory(ctx context.Context, agentID string, h *message.AgentHistory) error {
	data, err := json.Marshal(h.Entries)
	if err != nil {
		return fmt.Errorf("store: marshal history: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_histories (agent_id, entries_json, updated_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT(agent_id) DO UPDATE SET entries_json = excluded.entries_json, updated_at = excluded.updated_at`,
		agentID, string(data))
	if err != nil {
		return fmt.Errorf("store: save history: %w", err)
	}
	return nil
}

// LoadHistory restores a previously saved history for agentID, or ok=false
// if nothing was ever saved.
func (s *SQLiteStore) LoadHistory(ctx context.Context, agentID string) (entries []message.HistoryEntry, ok bool, err error) {
	var data string
	err = s.db.QueryRowContext(ctx, `SELECT entries_json FROM agent_histories WHERE agent_id = ?`, agentID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: load history: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, false, fmt.Errorf("store: unmarshal history: %w", err)
	}
	return entries, true, nil
}
