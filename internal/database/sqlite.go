package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/explorers/internal/models"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	password     TEXT NOT NULL DEFAULT '',
	is_anonymous INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	slug          TEXT PRIMARY KEY,
	owner_host_id TEXT NOT NULL,
	game_id       TEXT NOT NULL DEFAULT '',
	configuration TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id   TEXT NOT NULL,
	schema      TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	command     TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	occurred_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS entity_events_entity_idx ON entity_events (entity_id);
`

// SQLite is a single-file Store for local development.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func mapSQLiteError(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %s", ErrDuplicate, sqliteErr.Error())
	}
	return err
}

func (s *SQLite) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password, is_anonymous, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Password, user.IsAnonymous, user.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", mapSQLiteError(err))
	}
	return nil
}

func (s *SQLite) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var (
		u       models.User
		created string
	)
	row := s.db.QueryRowContext(ctx, `SELECT id, email, password, is_anonymous, created_at FROM users WHERE `+where, arg)
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.IsAnonymous, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
	return &u, nil
}

func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *SQLite) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *SQLite) UpdateUserCredentials(ctx context.Context, id, email, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, password = ?, is_anonymous = 0 WHERE id = ?`,
		email, passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update user credentials: %w", mapSQLiteError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) CreateRoom(ctx context.Context, room *models.RoomRecord) error {
	cfg, err := marshalConfiguration(room.Configuration)
	if err != nil {
		return err
	}
	var cfgArg any
	if cfg != nil {
		cfgArg = string(cfg)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rooms (slug, owner_host_id, game_id, configuration, created_at) VALUES (?, ?, ?, ?, ?)`,
		room.Slug, room.OwnerHostID, string(room.GameID), cfgArg, room.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", mapSQLiteError(err))
	}
	return nil
}

func (s *SQLite) GetRoomBySlug(ctx context.Context, slug string) (*models.RoomRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT slug, owner_host_id, game_id, configuration, created_at FROM rooms WHERE slug = ?`, slug)
	rec, err := scanSQLiteRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *SQLite) ListRooms(ctx context.Context) ([]models.RoomRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slug, owner_host_id, game_id, configuration, created_at FROM rooms ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RoomRecord
	for rows.Next() {
		rec, err := scanSQLiteRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLite) InsertEntityEvents(ctx context.Context, events []models.EntityEventRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entity_events (entity_id, schema, event_type, command, error, occurred_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err := stmt.ExecContext(ctx,
			ev.EntityID, string(ev.Schema), ev.EventType, string(ev.Command), ev.Error,
			time.UnixMilli(ev.Timestamp).UTC().Format(sqliteTimeLayout),
		)
		if err != nil {
			return fmt.Errorf("insert entity event: %w", err)
		}
	}
	return tx.Commit()
}

// CountEntityEvents is used by the historian tests.
func (s *SQLite) CountEntityEvents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entity_events`).Scan(&n)
	return n, err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanSQLiteRoom(row rowScanner) (*models.RoomRecord, error) {
	var (
		rec     models.RoomRecord
		gameID  string
		cfg     sql.NullString
		created string
	)
	if err := row.Scan(&rec.Slug, &rec.OwnerHostID, &gameID, &cfg, &created); err != nil {
		return nil, err
	}
	rec.GameID = models.GameID(gameID)
	rec.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
	if cfg.Valid && cfg.String != "" {
		var c models.GameConfiguration
		if err := json.Unmarshal([]byte(cfg.String), &c); err != nil {
			return nil, fmt.Errorf("decode room configuration: %w", err)
		}
		rec.Configuration = &c
	}
	return &rec, nil
}
