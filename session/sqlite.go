package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tailored-agentic-units/autods/core/protocol"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (session_id, seq)
);
`

type sqliteSession struct {
	id string
	db *sql.DB

	mu       sync.RWMutex
	messages []protocol.Message
	err      error
}

// OpenSQLite opens (creating if needed) the database at path and loads the
// history stored for id. The history stays cached in memory; every
// AddMessage writes through.
func OpenSQLite(path, id string) (Durable, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &sqliteSession{id: id, db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteSession) load() error {
	rows, err := s.db.Query(`SELECT body FROM messages WHERE session_id = ? ORDER BY seq`, s.id)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		var msg protocol.Message
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return fmt.Errorf("corrupt message in session %s: %w", s.id, err)
		}
		s.messages = append(s.messages, msg)
	}
	return rows.Err()
}

func (s *sqliteSession) ID() string {
	return s.id
}

func (s *sqliteSession) AddMessage(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := len(s.messages)
	s.messages = append(s.messages, cloneMessage(msg))

	body, err := json.Marshal(msg)
	if err == nil {
		_, err = s.db.Exec(
			`INSERT INTO messages (session_id, seq, role, body) VALUES (?, ?, ?, ?)`,
			s.id, seq, string(msg.Role), string(body),
		)
	}
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("failed to persist message %d: %w", seq, err)
	}
}

func (s *sqliteSession) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages)
}

func (s *sqliteSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	if _, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ?`, s.id); err != nil && s.err == nil {
		s.err = fmt.Errorf("failed to clear history: %w", err)
	}
}

func (s *sqliteSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *sqliteSession) Close() error {
	return s.db.Close()
}
