// Package keystore is the API-key collaborator: a SQLite-backed store that
// validates key/client pairs per request and carries the CRUD the admin
// surface needs.
package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/aegisgate-ai/aegisgate/internal/config"
)

// Defaults applied when a stored record omits per-client settings, so
// downstream components never branch on missing config.
const (
	DefaultLLMModel    = "gemini-2.5-flash"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
	DefaultPlan        = "free"
	DefaultRateLimit   = 1000
)

var ErrNotFound = errors.New("keystore: key not found")

// ClientConfig is the per-client generation configuration.
type ClientConfig struct {
	LLMModel    string  `json:"llm_model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// ClientInfo identifies the calling client.
type ClientInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Plan      string `json:"plan"`
	RateLimit int    `json:"rate_limit"`
}

// ClientValidation is the per-request validation outcome. Never cached: every
// request re-validates against the store.
type ClientValidation struct {
	Valid        bool          `json:"valid"`
	ClientConfig *ClientConfig `json:"client_config,omitempty"`
	ClientInfo   *ClientInfo   `json:"client_info,omitempty"`
	Err          string        `json:"error,omitempty"`
}

// Key is one stored API key record.
type Key struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	OwnerID     string    `json:"owner_id"`
	Active      bool      `json:"active"`
	Plan        string    `json:"plan"`
	RateLimit   int       `json:"rate_limit"`
	LLMModel    string    `json:"llm_model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	CreatedAt   time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	key         TEXT NOT NULL UNIQUE,
	owner_id    TEXT NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1,
	plan        TEXT NOT NULL DEFAULT '',
	rate_limit  INTEGER NOT NULL DEFAULT 0,
	llm_model   TEXT NOT NULL DEFAULT '',
	max_tokens  INTEGER NOT NULL DEFAULT 0,
	temperature REAL NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner_id);
`

// Store is a SQLite-backed key store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the key store inside the shared database.
func Open(cfg config.StorageConfig, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open keystore db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := &Store{db: db, logger: logger}
	if err := s.initialize(cfg); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("keystore initialized", zap.String("path", cfg.Path))
	return s, nil
}

// NewWithDB wraps an existing database handle (shared with the audit store).
func NewWithDB(db *sql.DB, logger *zap.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init keystore schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize(cfg config.StorageConfig) error {
	if !cfg.DisableWAL {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("enable wal: %w", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init keystore schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle so other stores can share the connection.
func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the store is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Validate checks that apiKey exists, is active, and belongs to clientID.
// The explicit owner comparison prevents key/client confusion even when the
// key string itself is valid.
func (s *Store) Validate(ctx context.Context, apiKey, clientID string) ClientValidation {
	k, err := s.lookup(ctx, apiKey)
	if errors.Is(err, ErrNotFound) {
		return ClientValidation{Valid: false, Err: "key not found"}
	}
	if err != nil {
		s.logger.Warn("keystore lookup failed", zap.Error(err))
		return ClientValidation{Valid: false, Err: err.Error()}
	}
	if !k.Active {
		return ClientValidation{Valid: false, Err: "key inactive"}
	}
	if k.OwnerID != clientID {
		return ClientValidation{Valid: false, Err: "client id mismatch"}
	}

	cfg := &ClientConfig{
		LLMModel:    k.LLMModel,
		MaxTokens:   k.MaxTokens,
		Temperature: k.Temperature,
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = DefaultLLMModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	info := &ClientInfo{
		ID:        k.OwnerID,
		Name:      k.Name,
		Plan:      k.Plan,
		RateLimit: k.RateLimit,
	}
	if info.Plan == "" {
		info.Plan = DefaultPlan
	}
	if info.RateLimit == 0 {
		info.RateLimit = DefaultRateLimit
	}

	return ClientValidation{Valid: true, ClientConfig: cfg, ClientInfo: info}
}

func (s *Store) lookup(ctx context.Context, apiKey string) (*Key, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, key, owner_id, active, plan, rate_limit, llm_model, max_tokens, temperature, created_at
		FROM api_keys WHERE key = ?`, apiKey)
	return scanKey(row)
}

// Create mints a new random API key for owner.
func (s *Store) Create(ctx context.Context, name, ownerID string) (*Key, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("keystore: name is required")
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, errors.New("keystore: owner id is required")
	}

	k := &Key{
		ID:        uuid.NewString(),
		Name:      name,
		Key:       "ak_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		OwnerID:   ownerID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, key, owner_id, active, plan, rate_limit, llm_model, max_tokens, temperature, created_at)
		VALUES (?, ?, ?, ?, 1, '', 0, '', 0, 0, ?)`,
		k.ID, k.Name, k.Key, k.OwnerID, k.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert key: %w", err)
	}
	return k, nil
}

// ListByOwner returns all keys owned by ownerID, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key, owner_id, active, plan, rate_limit, llm_model, max_tokens, temperature, created_at
		FROM api_keys WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var out []Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

// Deactivate disables a key without deleting its record.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate key: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a key record entirely.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*Key, error) {
	var k Key
	var active int
	err := row.Scan(&k.ID, &k.Name, &k.Key, &k.OwnerID, &active, &k.Plan, &k.RateLimit, &k.LLMModel, &k.MaxTokens, &k.Temperature, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan key: %w", err)
	}
	k.Active = active != 0
	return &k, nil
}
