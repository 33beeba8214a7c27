// Package database persists users, rooms and the entity event history.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason-s-yu/explorers/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Store is implemented by the Postgres, SQLite and in-memory backends.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUserCredentials(ctx context.Context, id, email, passwordHash string) error

	CreateRoom(ctx context.Context, room *models.RoomRecord) error
	GetRoomBySlug(ctx context.Context, slug string) (*models.RoomRecord, error)
	ListRooms(ctx context.Context) ([]models.RoomRecord, error)

	InsertEntityEvents(ctx context.Context, events []models.EntityEventRecord) error

	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the backend named by driver. dsn is the Postgres URL or
// the SQLite file path; it is ignored for the memory store.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres:
		return ConnectPostgres(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}
