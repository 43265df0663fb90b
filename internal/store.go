package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type SessionInfo struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore persists users, chat sessions and their messages.
type SessionStore interface {
	CreateOrTouchUser(ctx context.Context, username string) (int64, error)
	CreateSession(ctx context.Context, userID int64, name string) (int64, error)
	GetSession(ctx context.Context, sessionID int64) (SessionInfo, error)
	ListSessions(ctx context.Context, userID int64) ([]SessionInfo, error)
	AppendMessage(ctx context.Context, sessionID int64, role Role, text string) error
	AppendExchange(ctx context.Context, sessionID int64, question, answer string) error
	LoadMessages(ctx context.Context, sessionID int64) ([]Turn, error)
	DeleteSession(ctx context.Context, sessionID int64) error
	Close() error
}

var _ SessionStore = (*SQLStore)(nil)

// SQLStore implements SessionStore on SQLite or Postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// OpenStore opens the database for driver ("sqlite" or "postgres") and
// creates the tables if needed. For sqlite, dsn is a file path.
func OpenStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite, "sqlite3", "":
		driver, sqlDriver = DriverSQLite, "sqlite3"
		if !strings.Contains(dsn, "?") {
			dsn += "?_busy_timeout=5000&_journal_mode=WAL"
		}
	case DriverPostgres, "postgresql":
		driver, sqlDriver = DriverPostgres, "postgres"
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s store: %w", driver, err)
	}

	store, err := NewSQLStoreWithDB(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStoreWithDB reuses an open *sql.DB.
func NewSQLStoreWithDB(ctx context.Context, db *sql.DB, driver string) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	s := &SQLStore{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}
	if err := s.ensureTables(ctx); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLStore) ensureTables(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS users (
  id ` + id + `,
  username TEXT NOT NULL UNIQUE,
  created_at TIMESTAMP NOT NULL,
  last_active TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
  id ` + id + `,
  user_id BIGINT NOT NULL REFERENCES users(id),
  session_name TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
  id ` + id + `,
  session_id BIGINT NOT NULL REFERENCES chat_sessions(id),
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id)`,
	}

	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) CreateOrTouchUser(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(strings.ToValidUTF8(username, ""))
	if username == "" {
		return 0, errors.New("username is required")
	}

	now := s.now()
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
INSERT INTO users (username, created_at, last_active) VALUES (?, ?, ?)
ON CONFLICT (username) DO UPDATE SET last_active = excluded.last_active
RETURNING id`), username, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert user %q: %w", username, err)
	}
	return id, nil
}

func (s *SQLStore) CreateSession(ctx context.Context, userID int64, name string) (int64, error) {
	name = strings.TrimSpace(strings.ToValidUTF8(name, ""))
	if name == "" {
		name = "Session " + s.now().Format("2006-01-02 15:04")
	}

	now := s.now()
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
INSERT INTO chat_sessions (user_id, session_name, created_at, updated_at) VALUES (?, ?, ?, ?)
RETURNING id`), userID, name, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (s *SQLStore) GetSession(ctx context.Context, sessionID int64) (SessionInfo, error) {
	var info SessionInfo
	err := s.db.QueryRowContext(ctx, s.rebind(`
SELECT id, user_id, session_name, created_at, updated_at FROM chat_sessions WHERE id = ?`), sessionID).
		Scan(&info.ID, &info.UserID, &info.Name, &info.CreatedAt, &info.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionInfo{}, fmt.Errorf("%w: %d", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return SessionInfo{}, fmt.Errorf("get session: %w", err)
	}
	return info, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *SQLStore) ListSessions(ctx context.Context, userID int64) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT id, user_id, session_name, created_at, updated_at FROM chat_sessions
WHERE user_id = ? ORDER BY updated_at DESC, id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.UserID, &info.Name, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// AppendMessage stores a message and bumps the session's updated_at.
func (s *SQLStore) AppendMessage(ctx context.Context, sessionID int64, role Role, text string) error {
	return s.appendTurns(ctx, sessionID, Turn{Role: role, Text: text})
}

// AppendExchange stores a question and its answer in one transaction, so
// a session never holds half an exchange.
func (s *SQLStore) AppendExchange(ctx context.Context, sessionID int64, question, answer string) error {
	return s.appendTurns(ctx, sessionID,
		Turn{Role: RoleUser, Text: question},
		Turn{Role: RoleAssistant, Text: answer},
	)
}

func (s *SQLStore) appendTurns(ctx context.Context, sessionID int64, turns ...Turn) error {
	for _, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return fmt.Errorf("unknown role %q", t.Role)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now()
	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`), now, sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, sessionID)
	}

	insert := s.rebind(`
INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`)
	for _, t := range turns {
		if _, err := tx.ExecContext(ctx, insert, sessionID, string(t.Role), strings.ToValidUTF8(t.Text, ""), now); err != nil {
			return fmt.Errorf("insert %s message: %w", t.Role, err)
		}
	}

	return tx.Commit()
}

// LoadMessages returns the session's messages in insertion order. Rows
// with an unknown role are skipped.
func (s *SQLStore) LoadMessages(ctx context.Context, sessionID int64) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT role, content FROM chat_messages WHERE session_id = ? ORDER BY id`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		r, err := ParseRole(role)
		if err != nil {
			continue
		}
		turns = append(turns, Turn{Role: r, Text: content})
	}
	return turns, rows.Err()
}

func (s *SQLStore) DeleteSession(ctx context.Context, sessionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM chat_messages WHERE session_id = ?`), sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM chat_sessions WHERE id = ?`), sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, sessionID)
	}

	return tx.Commit()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
