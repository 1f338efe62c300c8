package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/conductorhq/conductor/internal/conversation"
)

// SQLiteStore backs HistoryStore and AgentStateStore with a local
// SQLite database for standalone deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and initializes) the database at path. Use
// ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS history (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	agent_name TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_conversation ON history(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS agent_state (
	conversation_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	state TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (conversation_id, agent_id)
);

CREATE TABLE IF NOT EXISTS tool_results (
	conversation_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	result TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (conversation_id, agent_id, tool_name)
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID string, msg conversation.Message) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, conversation_id, role, content, agent_name, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, msg.Role, msg.Content, msg.AgentName, ts)
	if err != nil {
		return fmt.Errorf("insert history message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Messages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	query := `SELECT role, content, COALESCE(agent_name, ''), created_at FROM history WHERE conversation_id = ? ORDER BY created_at ASC`
	args := []any{conversationID}
	if limit > 0 {
		query = `SELECT role, content, agent_name, created_at FROM (
			SELECT role, content, COALESCE(agent_name, '') AS agent_name, created_at
			FROM history WHERE conversation_id = ? ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []conversation.Message
	for rows.Next() {
		var m conversation.Message
		if err := rows.Scan(&m.Role, &m.Content, &m.AgentName, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, conversationID, agentID string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM agent_state WHERE conversation_id = ? AND agent_id = ?`,
		conversationID, agentID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query agent state: %w", err)
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode agent state: %w", err)
	}
	return state, nil
}

func (s *SQLiteStore) Save(ctx context.Context, conversationID, agentID string, state map[string]any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode agent state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_state (conversation_id, agent_id, state, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (conversation_id, agent_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		conversationID, agentID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert agent state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetToolResult(ctx context.Context, conversationID, agentID, toolName, result string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_results (conversation_id, agent_id, tool_name, result, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (conversation_id, agent_id, tool_name) DO UPDATE SET result = excluded.result, updated_at = excluded.updated_at`,
		conversationID, agentID, toolName, result, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert tool result: %w", err)
	}
	return nil
}
