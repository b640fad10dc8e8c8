package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aios-dev/aios/internal/log"
)

// Store manages session, message and usage-counter persistence.
// Safe for concurrent use by multiple goroutines; single-row counter
// increments rely on PostgreSQL row-level atomicity.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a Store backed by the given connection pool.
func New(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// CreateSession creates a new conversation session. An empty id gets a
// generated UUID; the id is otherwise treated as an opaque string.
func (s *Store) CreateSession(ctx context.Context, id, title string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (session_id, title)
		VALUES ($1, $2)
		RETURNING session_id, created_at, title, prompt_tokens, completion_tokens, total_tokens`,
		id, title)

	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("created session", "session_id", sess.ID, "title", sess.Title)
	return sess, nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, created_at, title, prompt_tokens, completion_tokens, total_tokens
		FROM sessions WHERE session_id = $1`, id)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions lists all sessions ordered by creation time ascending.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, created_at, title, prompt_tokens, completion_tokens, total_tokens
		FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	s.logger.Debug("listed sessions", "count", len(sessions))
	return sessions, nil
}

// DeleteSession deletes a session and all its messages (FK cascade).
// Returns ErrSessionNotFound when the id does not exist; nothing is
// mutated in that case.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}

	s.logger.Debug("deleted session", "session_id", id)
	return nil
}

// AddMessage inserts a single message and returns it with its assigned id.
// Used for the user half of a turn, which must be durable before any
// provider call is made.
func (s *Store) AddMessage(ctx context.Context, m *Message) (*Message, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (session_id, role, content, timestamp_ms, tool_calls_json,
			prompt_tokens, completion_tokens, total_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		m.SessionID, m.Role, m.Content, m.TimestampMS, m.ToolCallsJSON,
		m.PromptTokens, m.CompletionTokens, m.TotalTokens)

	if err := row.Scan(&m.ID); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	s.logger.Debug("added message", "session_id", m.SessionID, "role", m.Role, "id", m.ID)
	return m, nil
}

// History retrieves the full ordered conversation for a session.
// Ordering is by timestamp then insertion id for same-millisecond ties.
func (s *Store) History(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, timestamp_ms, tool_calls_json,
			prompt_tokens, completion_tokens, total_tokens
		FROM messages WHERE session_id = $1
		ORDER BY timestamp_ms, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.TimestampMS,
			&m.ToolCallsJSON, &m.PromptTokens, &m.CompletionTokens, &m.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get messages for session %s: %w", sessionID, err)
	}

	s.logger.Debug("retrieved history", "session_id", sessionID, "count", len(messages))
	return messages, nil
}

// CompleteTurn persists the assistant half of a completed turn: the
// assistant message insert, the session counter increments and the global
// UserStats increments are committed in one transaction, so a turn's
// effects become visible together or not at all.
func (s *Store) CompleteTurn(ctx context.Context, m *Message, usage Usage) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	row := tx.QueryRow(ctx, `
		INSERT INTO messages (session_id, role, content, timestamp_ms, tool_calls_json,
			prompt_tokens, completion_tokens, total_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		m.SessionID, m.Role, m.Content, m.TimestampMS, m.ToolCallsJSON,
		m.PromptTokens, m.CompletionTokens, m.TotalTokens)
	if err := row.Scan(&m.ID); err != nil {
		return nil, fmt.Errorf("failed to insert assistant message: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sessions
		SET prompt_tokens = prompt_tokens + $2,
			completion_tokens = completion_tokens + $3,
			total_tokens = total_tokens + $4
		WHERE session_id = $1`,
		m.SessionID, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens); err != nil {
		return nil, fmt.Errorf("failed to update session counters: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_stats (id, prompt_tokens, completion_tokens, total_tokens)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET prompt_tokens = user_stats.prompt_tokens + EXCLUDED.prompt_tokens,
			completion_tokens = user_stats.completion_tokens + EXCLUDED.completion_tokens,
			total_tokens = user_stats.total_tokens + EXCLUDED.total_tokens`,
		userStatsID, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens); err != nil {
		return nil, fmt.Errorf("failed to update user stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit turn: %w", err)
	}

	s.logger.Debug("completed turn", "session_id", m.SessionID, "message_id", m.ID,
		"total_tokens", usage.TotalTokens)
	return m, nil
}

// Stats returns the global usage counters, creating the singleton row
// lazily on first use.
func (s *Store) Stats(ctx context.Context) (*UserStats, error) {
	var st UserStats
	row := s.pool.QueryRow(ctx, `
		SELECT id, prompt_tokens, completion_tokens, total_tokens,
			deleted_prompt_tokens, deleted_completion_tokens, deleted_total_tokens
		FROM user_stats WHERE id = $1`, userStatsID)
	err := row.Scan(&st.ID, &st.PromptTokens, &st.CompletionTokens, &st.TotalTokens,
		&st.DeletedPromptTokens, &st.DeletedCompletionTokens, &st.DeletedTotalTokens)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO user_stats (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
			userStatsID); err != nil {
			return nil, fmt.Errorf("failed to create user stats row: %w", err)
		}
		return &UserStats{ID: userStatsID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return &st, nil
}

// scanSession scans one sessions row from a pgx.Row or pgx.Rows.
func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	if err := row.Scan(&sess.ID, &sess.CreatedAt, &sess.Title,
		&sess.PromptTokens, &sess.CompletionTokens, &sess.TotalTokens); err != nil {
		return nil, err
	}
	return &sess, nil
}
