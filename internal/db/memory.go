package db

import (
	"context"
	"sort"
	"sync"

	"github.com/student-api/backend/internal/model"
)

// Memory is a mutex-guarded student store. UpdateByEmail holds the lock for
// the whole read-modify-write, so refresh-token updates never interleave.
type Memory struct {
	mu       sync.Mutex
	students map[int]*model.Student
}

func NewMemory(seed ...model.Student) *Memory {
	m := &Memory{students: make(map[int]*model.Student, len(seed))}
	for i := range seed {
		m.students[seed[i].ID] = seed[i].Clone()
	}
	return m
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.byEmailLocked(email)
	if s == nil {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) FindByID(_ context.Context, id int) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.students[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Save persists profile fields. Refresh state is only written through
// UpdateByEmail.
func (m *Memory) Save(_ context.Context, student *model.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.students[student.ID]
	if !ok {
		return ErrNotFound
	}
	if other := m.byEmailLocked(student.Email); other != nil && other.ID != student.ID {
		return ErrDuplicateEmail
	}
	saved := student.Clone()
	saved.Refresh = existing.Refresh
	m.students[student.ID] = saved
	return nil
}

func (m *Memory) UpdateByEmail(_ context.Context, email string, fn func(*model.Student) error) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.byEmailLocked(email)
	if current == nil {
		return nil, ErrNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	m.students[working.ID] = working
	return working.Clone(), nil
}

func (m *Memory) List(_ context.Context) ([]model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, *s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Create(_ context.Context, student *model.Student) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if student.Email != "" && m.byEmailLocked(student.Email) != nil {
		return nil, ErrDuplicateEmail
	}

	nextID := 1
	for id := range m.students {
		if id >= nextID {
			nextID = id + 1
		}
	}

	created := student.Clone()
	created.ID = nextID
	m.students[nextID] = created
	return created.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.students[id]; !ok {
		return ErrNotFound
	}
	delete(m.students, id)
	return nil
}

func (m *Memory) byEmailLocked(email string) *model.Student {
	if email == "" {
		return nil
	}
	for _, s := range m.students {
		if s.Email == email {
			return s
		}
	}
	return nil
}
