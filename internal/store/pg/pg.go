// Package pg backs the store contracts with Postgres for managed
// deployments.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/conductorhq/conductor/internal/conversation"
)

// OpenDB opens a pooled Postgres connection and verifies it.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Store implements HistoryStore and AgentStateStore on Postgres.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) AddMessage(ctx context.Context, conversationID string, msg conversation.Message) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_history (id, conversation_id, role, content, agent_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, conversationID, msg.Role, msg.Content, msg.AgentName, ts)
	if err != nil {
		return fmt.Errorf("insert history message: %w", err)
	}
	return nil
}

func (s *Store) Messages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	query := `SELECT role, content, COALESCE(agent_name, ''), created_at
		FROM conversation_history WHERE conversation_id = $1 ORDER BY created_at ASC`
	args := []any{conversationID}
	if limit > 0 {
		query = `SELECT role, content, agent_name, created_at FROM (
			SELECT role, content, COALESCE(agent_name, '') AS agent_name, created_at
			FROM conversation_history WHERE conversation_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC`
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

func (s *Store) Get(ctx context.Context, conversationID, agentID string) (map[string]any, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM agent_state WHERE conversation_id = $1 AND agent_id = $2`,
		conversationID, agentID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query agent state: %w", err)
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode agent state: %w", err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, conversationID, agentID string, state map[string]any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode agent state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_state (conversation_id, agent_id, state, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (conversation_id, agent_id)
		 DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		conversationID, agentID, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert agent state: %w", err)
	}
	return nil
}

func (s *Store) SetToolResult(ctx context.Context, conversationID, agentID, toolName, result string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_results (conversation_id, agent_id, tool_name, result, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (conversation_id, agent_id, tool_name)
		 DO UPDATE SET result = EXCLUDED.result, updated_at = EXCLUDED.updated_at`,
		conversationID, agentID, toolName, result, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert tool result: %w", err)
	}
	return nil
}
