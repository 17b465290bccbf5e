// Package auditlog is the system of record: one append-only entry per inbound
// request, written off the response path by a best-effort emitter.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/aegisgate-ai/aegisgate/internal/config"
	"github.com/aegisgate-ai/aegisgate/internal/detect"
	"github.com/aegisgate-ai/aegisgate/internal/responder"
)

// Entry is the durable audit record of one request's lifecycle and outcome.
type Entry struct {
	RequestID        string          `json:"request_id"`
	ClientID         string          `json:"client_id"`
	ConversationID   string          `json:"conversation_id"`
	Text             string          `json:"text"`
	Context          string          `json:"context"`
	SafetyResult     detect.Result   `json:"safety_result"`
	Action           string          `json:"action"`
	Response         *responder.Reply `json:"response,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	IPAddress        string          `json:"ip_address"`
	UserAgent        string          `json:"user_agent"`
	LoggedAt         time.Time       `json:"logged_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS request_logs (
	request_id         TEXT PRIMARY KEY,
	client_id          TEXT NOT NULL,
	conversation_id    TEXT NOT NULL,
	text               TEXT NOT NULL,
	context            TEXT NOT NULL DEFAULT 'general',
	safety_result      TEXT NOT NULL,
	action             TEXT NOT NULL,
	response           TEXT,
	category           TEXT NOT NULL DEFAULT '',
	timestamp          TIMESTAMP NOT NULL,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	ip_address         TEXT NOT NULL DEFAULT '127.0.0.1',
	user_agent         TEXT NOT NULL DEFAULT 'API-Client/1.0',
	logged_at          TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_logs_client ON request_logs(client_id);
CREATE INDEX IF NOT EXISTS idx_request_logs_action ON request_logs(action);
CREATE INDEX IF NOT EXISTS idx_request_logs_category ON request_logs(category);
CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp);
`

// Store persists entries in SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the audit store.
func Open(cfg config.StorageConfig, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if !cfg.DisableWAL {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("audit store initialized", zap.String("path", cfg.Path))
	return s, nil
}

// NewWithDB wraps an existing database handle (shared with the keystore).
func NewWithDB(db *sql.DB, logger *zap.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init audit schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the store is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Append persists one entry. request_id is the primary key, so a duplicate
// id fails rather than silently double-logging.
func (s *Store) Append(ctx context.Context, e *Entry) error {
	safety, err := json.Marshal(e.SafetyResult)
	if err != nil {
		return fmt.Errorf("encode safety result: %w", err)
	}
	var response []byte
	if e.Response != nil {
		response, err = json.Marshal(e.Response)
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}

	loggedAt := e.LoggedAt
	if loggedAt.IsZero() {
		loggedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO request_logs
			(request_id, client_id, conversation_id, text, context, safety_result, action,
			 response, category, timestamp, processing_time_ms, ip_address, user_agent, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.ClientID, e.ConversationID, e.Text, e.Context, string(safety), e.Action,
		nullableString(response), e.SafetyResult.Category, e.Timestamp, e.ProcessingTimeMS,
		e.IPAddress, e.UserAgent, loggedAt)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// RecentQuery filters a Recent listing.
type RecentQuery struct {
	ClientID string
	Action   string
	Limit    int
	Offset   int
}

// Recent returns entries newest first.
func (s *Store) Recent(ctx context.Context, q RecentQuery) ([]Entry, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}

	query := `
		SELECT request_id, client_id, conversation_id, text, context, safety_result, action,
		       response, timestamp, processing_time_ms, ip_address, user_agent, logged_at
		FROM request_logs WHERE 1=1`
	var args []any
	if q.ClientID != "" {
		query += " AND client_id = ?"
		args = append(args, q.ClientID)
	}
	if q.Action != "" {
		query += " AND action = ?"
		args = append(args, q.Action)
	}
	query += " ORDER BY logged_at DESC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var safety string
		var response sql.NullString
		if err := rows.Scan(&e.RequestID, &e.ClientID, &e.ConversationID, &e.Text, &e.Context,
			&safety, &e.Action, &response, &e.Timestamp, &e.ProcessingTimeMS,
			&e.IPAddress, &e.UserAgent, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		if err := json.Unmarshal([]byte(safety), &e.SafetyResult); err != nil {
			s.logger.Warn("corrupt safety_result in log row", zap.String("request_id", e.RequestID), zap.Error(err))
		}
		if response.Valid {
			var r responder.Reply
			if err := json.Unmarshal([]byte(response.String), &r); err == nil {
				e.Response = &r
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByAction returns how many entries exist per action.
func (s *Store) CountByAction(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, "action")
}

// CountByCategory returns how many entries exist per detected category.
func (s *Store) CountByCategory(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, "category")
}

func (s *Store) countBy(ctx context.Context, column string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM request_logs GROUP BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[k] = n
	}
	return out, rows.Err()
}

// PruneBefore deletes entries logged before cutoff and reports how many went.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM request_logs WHERE logged_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	return res.RowsAffected()
}
