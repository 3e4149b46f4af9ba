package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemDB keeps everything in maps for the lifetime of the process.
type MemDB struct {
	mu      sync.RWMutex
	users   map[string]*User
	emails  map[string]string
	notes   map[int64]*Note
	userSeq int64
	noteSeq int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		users:  map[string]*User{},
		emails: map[string]string{},
		notes:  map[int64]*Note{},
	}
}

func (m *MemDB) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.Username]; ok {
		return ErrDuplicate
	}
	if u.Email != "" {
		if _, ok := m.emails[u.Email]; ok {
			return ErrDuplicate
		}
	}
	m.userSeq++
	u.ID = m.userSeq
	u.CreatedAt = time.Now().UTC()

	cp := *u
	m.users[u.Username] = &cp
	if u.Email != "" {
		m.emails[u.Email] = u.Username
	}
	return nil
}

func (m *MemDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.users[name]
	return &cp, nil
}

func (m *MemDB) CreateNote(ctx context.Context, title, content string) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.noteSeq++
	n := &Note{ID: m.noteSeq, Title: title, Content: content, CreatedAt: time.Now().UTC()}
	m.notes[n.ID] = n
	cp := *n
	return &cp, nil
}

func (m *MemDB) ListNotes(ctx context.Context) ([]*Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Note, 0, len(m.notes))
	for _, n := range m.notes {
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemDB) GetNote(ctx context.Context, id int64) (*Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *MemDB) UpdateNote(ctx context.Context, id int64, title, content string) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if title != "" {
		n.Title = title
	}
	if content != "" {
		n.Content = content
	}
	cp := *n
	return &cp, nil
}

func (m *MemDB) DeleteNote(ctx context.Context, id int64) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.notes, id)
	return n, nil
}

func (m *MemDB) Ping(ctx context.Context) error { return nil }
func (m *MemDB) Close() error                   { return nil }
