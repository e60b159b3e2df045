package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/datachat-ai/datachat/internal/ops"
	"github.com/datachat-ai/datachat/internal/suggest"
)

// Store is the SQLite-backed persistence layer. All public methods are
// safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath. Use ":memory:" in
// tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database liveness.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		api_key_hash TEXT NOT NULL,
		unlimited    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS exchanges (
		id               TEXT PRIMARY KEY,
		session_id       TEXT NOT NULL,
		role             TEXT NOT NULL,
		content          TEXT NOT NULL,
		chart_json       TEXT,
		table_json       TEXT,
		suggestions_json TEXT,
		operations_json  TEXT,
		error            TEXT,
		created_at       TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_exchanges_role_time ON exchanges(role, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Users

// CreateUser persists a new user. keyHash is the bcrypt hash of the
// API key secret.
func (s *Store) CreateUser(ctx context.Context, name, keyHash string, unlimited bool) (*User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	u := &User{
		ID:         id.String(),
		Name:       name,
		Unlimited:  unlimited,
		APIKeyHash: keyHash,
		CreatedAt:  time.Now().UTC(),
	}

	_, err = sq.Insert("users").
		Columns("id", "name", "api_key_hash", "unlimited", "created_at").
		Values(u.ID, u.Name, u.APIKeyHash, u.Unlimited, u.CreatedAt).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := sq.Select("id", "name", "api_key_hash", "unlimited", "created_at").
		From("users").Where(sq.Eq{"id": id}).
		RunWith(s.db).QueryRowContext(ctx)

	var u User
	err := row.Scan(&u.ID, &u.Name, &u.APIKeyHash, &u.Unlimited, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// Sessions

// CreateSession persists a new session owned by userID.
func (s *Store) CreateSession(ctx context.Context, userID, name string) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:        id.String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = sq.Insert("sessions").
		Columns("id", "user_id", "name", "created_at", "updated_at").
		Values(sess.ID, sess.UserID, sess.Name, sess.CreatedAt, sess.UpdatedAt).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// GetSession fetches a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := sq.Select("id", "user_id", "name", "created_at", "updated_at").
		From("sessions").Where(sq.Eq{"id": id}).
		RunWith(s.db).QueryRowContext(ctx)

	var sess Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := sq.Select("id", "user_id", "name", "created_at", "updated_at").
		From("sessions").Where(sq.Eq{"user_id": userID}).
		OrderBy("updated_at DESC").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// RenameSession updates a session's display name.
func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	res, err := sq.Update("sessions").
		Set("name", name).
		Where(sq.Eq{"id": id}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session; its exchanges cascade.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := sq.Delete("sessions").Where(sq.Eq{"id": id}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Exchanges

// AppendExchange persists an exchange and advances the owning session's
// updated_at in the same transaction. If ex.ID is empty a UUIDv7 is
// generated; if CreatedAt is zero, now is used.
func (s *Store) AppendExchange(ctx context.Context, ex *Exchange) error {
	if ex.Error != "" && (ex.Chart != nil || ex.Table != nil) {
		return fmt.Errorf("exchange with error must not carry chart or table payloads")
	}

	if ex.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate exchange ID: %w", err)
		}
		ex.ID = id.String()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	chartJSON, err := marshalOrNil(ex.Chart)
	if err != nil {
		return fmt.Errorf("marshal chart: %w", err)
	}
	tableJSON, err := marshalOrNil(ex.Table)
	if err != nil {
		return fmt.Errorf("marshal table: %w", err)
	}
	suggestionsJSON, err := marshalOrNil(ex.Suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	operationsJSON, err := marshalOrNil(ex.Operations)
	if err != nil {
		return fmt.Errorf("marshal operations: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = sq.Insert("exchanges").
		Columns("id", "session_id", "role", "content", "chart_json", "table_json",
			"suggestions_json", "operations_json", "error", "created_at").
		Values(ex.ID, ex.SessionID, ex.Role, ex.Content, chartJSON, tableJSON,
			suggestionsJSON, operationsJSON, nullIfEmpty(ex.Error), ex.CreatedAt).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}

	res, err := sq.Update("sessions").
		Set("updated_at", ex.CreatedAt).
		Where(sq.Eq{"id": ex.SessionID}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}

	return tx.Commit()
}

// ListExchanges returns a session's exchanges in insertion order.
func (s *Store) ListExchanges(ctx context.Context, sessionID string) ([]*Exchange, error) {
	return s.listExchanges(ctx, sq.Eq{"session_id": sessionID})
}

// ListExchangesSince returns a session's exchanges created at or after
// ts, in insertion order.
func (s *Store) ListExchangesSince(ctx context.Context, sessionID string, ts time.Time) ([]*Exchange, error) {
	return s.listExchanges(ctx, sq.And{
		sq.Eq{"session_id": sessionID},
		sq.GtOrEq{"created_at": ts.UTC()},
	})
}

func (s *Store) listExchanges(ctx context.Context, pred any) ([]*Exchange, error) {
	rows, err := sq.Select("id", "session_id", "role", "content", "chart_json", "table_json",
		"suggestions_json", "operations_json", "error", "created_at").
		From("exchanges").Where(pred).
		OrderBy("rowid ASC").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

func scanExchange(rows *sql.Rows) (*Exchange, error) {
	var (
		ex          Exchange
		chartJSON   sql.NullString
		tableJSON   sql.NullString
		suggJSON    sql.NullString
		opsJSON     sql.NullString
		errText     sql.NullString
	)
	err := rows.Scan(&ex.ID, &ex.SessionID, &ex.Role, &ex.Content,
		&chartJSON, &tableJSON, &suggJSON, &opsJSON, &errText, &ex.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan exchange: %w", err)
	}

	if chartJSON.Valid {
		if err := json.Unmarshal([]byte(chartJSON.String), &ex.Chart); err != nil {
			return nil, fmt.Errorf("unmarshal chart: %w", err)
		}
	}
	if tableJSON.Valid {
		if err := json.Unmarshal([]byte(tableJSON.String), &ex.Table); err != nil {
			return nil, fmt.Errorf("unmarshal table: %w", err)
		}
	}
	if suggJSON.Valid {
		if err := json.Unmarshal([]byte(suggJSON.String), &ex.Suggestions); err != nil {
			return nil, fmt.Errorf("unmarshal suggestions: %w", err)
		}
	}
	if opsJSON.Valid {
		if err := json.Unmarshal([]byte(opsJSON.String), &ex.Operations); err != nil {
			return nil, fmt.Errorf("unmarshal operations: %w", err)
		}
	}
	ex.Error = errText.String
	return &ex, nil
}

// CountUserExchangesSince counts user-role exchanges created at or
// after since across all sessions owned by userID. This is the quota
// scan: deriving the count from history avoids a dual-write counter.
func (s *Store) CountUserExchangesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	row := sq.Select("COUNT(*)").
		From("exchanges e").
		Join("sessions s ON s.id = e.session_id").
		Where(sq.And{
			sq.Eq{"s.user_id": userID},
			sq.Eq{"e.role": RoleUser},
			sq.GtOrEq{"e.created_at": since.UTC()},
		}).
		RunWith(s.db).QueryRowContext(ctx)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count exchanges: %w", err)
	}
	return count, nil
}

func marshalOrNil(v any) (any, error) {
	switch t := v.(type) {
	case *ops.Chart:
		if t == nil {
			return nil, nil
		}
	case *ops.Table:
		if t == nil {
			return nil, nil
		}
	case []suggest.Action:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
