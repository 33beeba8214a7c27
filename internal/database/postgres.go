package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/explorers/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	password     TEXT NOT NULL DEFAULT '',
	is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS rooms (
	slug          TEXT PRIMARY KEY,
	owner_host_id TEXT NOT NULL,
	game_id       TEXT NOT NULL DEFAULT '',
	configuration JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS entity_events (
	id          BIGSERIAL PRIMARY KEY,
	entity_id   TEXT NOT NULL,
	schema      TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	command     TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS entity_events_entity_idx ON entity_events (entity_id);
`

// Postgres is the pgx backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool against connStr, pings it and applies the schema.
func ConnectPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// mapPgError turns unique violations into ErrDuplicate.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func (p *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	q := `INSERT INTO users (id, email, password, is_anonymous, created_at)
	      VALUES ($1, $2, $3, $4, $5)`

	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.ID, user.Email, user.Password, user.IsAnonymous, user.CreatedAt,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", mapPgError(err))
	}
	return nil
}

func (p *Postgres) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	q := `SELECT id, email, password, is_anonymous, created_at FROM users WHERE ` + where
	err := p.pool.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Email, &u.Password, &u.IsAnonymous, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.getUser(ctx, "email=$1", email)
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return p.getUser(ctx, "id=$1", id)
}

// UpdateUserCredentials attaches an email and password to a user and clears its anonymous flag.
func (p *Postgres) UpdateUserCredentials(ctx context.Context, id, email, passwordHash string) error {
	q := `UPDATE users SET email = $1, password = $2, is_anonymous = FALSE WHERE id = $3`
	var affected int64
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, e := tx.Exec(ctx, q, email, passwordHash, id)
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to update user credentials: %w", mapPgError(err))
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateRoom(ctx context.Context, room *models.RoomRecord) error {
	cfg, err := marshalConfiguration(room.Configuration)
	if err != nil {
		return err
	}
	q := `INSERT INTO rooms (slug, owner_host_id, game_id, configuration, created_at)
	      VALUES ($1, $2, $3, $4, $5)`
	err = pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, room.Slug, room.OwnerHostID, string(room.GameID), cfg, room.CreatedAt)
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", mapPgError(err))
	}
	return nil
}

func (p *Postgres) GetRoomBySlug(ctx context.Context, slug string) (*models.RoomRecord, error) {
	q := `SELECT slug, owner_host_id, game_id, configuration, created_at FROM rooms WHERE slug=$1`
	rec, err := scanRoom(p.pool.QueryRow(ctx, q, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (p *Postgres) ListRooms(ctx context.Context) ([]models.RoomRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT slug, owner_host_id, game_id, configuration, created_at FROM rooms ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RoomRecord
	for rows.Next() {
		rec, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// InsertEntityEvents writes a batch in one transaction.
func (p *Postgres) InsertEntityEvents(ctx context.Context, events []models.EntityEventRecord) error {
	q := `INSERT INTO entity_events (entity_id, schema, event_type, command, error, occurred_at)
	      VALUES ($1, $2, $3, $4, $5, $6)`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, ev := range events {
			_, err := tx.Exec(ctx, q,
				ev.EntityID, string(ev.Schema), ev.EventType, string(ev.Command), ev.Error,
				time.UnixMilli(ev.Timestamp).UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert entity event: %w", err)
			}
		}
		return nil
	})
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*models.RoomRecord, error) {
	var (
		rec    models.RoomRecord
		gameID string
		cfg    []byte
	)
	if err := row.Scan(&rec.Slug, &rec.OwnerHostID, &gameID, &cfg, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.GameID = models.GameID(gameID)
	if len(cfg) > 0 {
		var c models.GameConfiguration
		if err := json.Unmarshal(cfg, &c); err != nil {
			return nil, fmt.Errorf("decode room configuration: %w", err)
		}
		rec.Configuration = &c
	}
	return &rec, nil
}

func marshalConfiguration(cfg *models.GameConfiguration) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode room configuration: %w", err)
	}
	return data, nil
}
