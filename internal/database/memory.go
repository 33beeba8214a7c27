package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jason-s-yu/explorers/internal/models"
)

// Memory is a Store that keeps everything in maps. It backs tests and
// single-process runs without a database.
type Memory struct {
	mu      sync.Mutex
	users   map[string]models.User
	byEmail map[string]string
	rooms   map[string]models.RoomRecord
	events  []models.EntityEventRecord
}

func NewMemoryStore() *Memory {
	return &Memory{
		users:   make(map[string]models.User),
		byEmail: make(map[string]string),
		rooms:   make(map[string]models.RoomRecord),
	}
}

func (m *Memory) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return fmt.Errorf("%w: user %s", ErrDuplicate, user.ID)
	}
	if _, ok := m.byEmail[user.Email]; ok {
		return fmt.Errorf("%w: email %s", ErrDuplicate, user.Email)
	}
	m.users[user.ID] = *user
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.users[id]
	return &u, nil
}

func (m *Memory) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) UpdateUserCredentials(_ context.Context, id, email, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := m.byEmail[email]; taken && owner != id {
		return fmt.Errorf("%w: email %s", ErrDuplicate, email)
	}
	delete(m.byEmail, u.Email)
	u.Email = email
	u.Password = passwordHash
	u.IsAnonymous = false
	m.users[id] = u
	m.byEmail[email] = id
	return nil
}

func (m *Memory) CreateRoom(_ context.Context, room *models.RoomRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.Slug]; ok {
		return fmt.Errorf("%w: room %s", ErrDuplicate, room.Slug)
	}
	m.rooms[room.Slug] = *room
	return nil
}

func (m *Memory) GetRoomBySlug(_ context.Context, slug string) (*models.RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) ListRooms(_ context.Context) ([]models.RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RoomRecord, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) InsertEntityEvents(_ context.Context, events []models.EntityEventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// EntityEvents returns everything inserted so far.
func (m *Memory) EntityEvents() []models.EntityEventRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EntityEventRecord(nil), m.events...)
}

func (m *Memory) Close() error { return nil }
