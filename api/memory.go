package main

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore keeps everything in process. It backs development runs (no
// -db-dsn) and the test suite. The task maps are guarded by a single
// mutex; mutations additionally take a per-task lock so that the
// copy-mutate-commit cycle for one task serializes against itself without
// blocking unrelated tasks.
type memStore struct {
	mu           sync.Mutex
	users        map[int]*user
	tasks        map[int]*task
	changes      []changeEntry
	taskLocks    map[int]*sync.Mutex
	nextUserID   int
	nextTaskID   int
	nextChangeID int
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[int]*user),
		tasks:        make(map[int]*task),
		taskLocks:    make(map[int]*sync.Mutex),
		nextUserID:   1,
		nextTaskID:   1,
		nextChangeID: 1,
	}
}

func (m *memStore) insertUser(ctx context.Context, u *user) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return errDuplicateEmail
		}
	}
	u.ID = m.nextUserID
	m.nextUserID++
	u.CreatedAt = time.Now()
	u.Version = 1
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) getUserByEmail(ctx context.Context, email string) (*user, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) getUserByID(ctx context.Context, id int) (*user, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) listUsers(ctx context.Context) ([]user, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []user
	for _, u := range m.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *memStore) updateUser(ctx context.Context, u *user) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok || existing.Version != u.Version {
		return errNotFound
	}
	for _, other := range m.users {
		if other.ID != u.ID && other.Email == u.Email {
			return errDuplicateEmail
		}
	}
	u.Version++
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) deleteUser(ctx context.Context, u *user, actorID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return errNotFound
	}
	var owned []*task
	for _, t := range m.tasks {
		if t.UserID == u.ID {
			owned = append(owned, t)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })
	now := time.Now()
	for _, t := range owned {
		entry := deletedEntry(t, actorID)
		m.appendChange(&entry, now)
		delete(m.tasks, t.ID)
	}
	delete(m.users, u.ID)
	return nil
}

func (m *memStore) createTask(ctx context.Context, t *task, created *changeEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextTaskID
	m.nextTaskID++
	t.CreatedAt = time.Now()
	t.Version = 1
	cp := copyTask(t)
	m.tasks[t.ID] = cp
	created.TaskID = t.ID
	m.appendChange(created, t.CreatedAt)
	return nil
}

func (m *memStore) getTask(ctx context.Context, id int) (*task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return copyTask(t), nil
}

func (m *memStore) listTasks(ctx context.Context, f taskFilters) ([]task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var tasks []task
	for _, t := range m.tasks {
		if f.owner != nil && t.UserID != *f.owner {
			continue
		}
		if f.status != nil && t.Status != *f.status {
			continue
		}
		if f.dueFrom != nil && (t.DueDate == nil || t.DueDate.Before(*f.dueFrom)) {
			continue
		}
		if f.dueTo != nil && (t.DueDate == nil || t.DueDate.After(*f.dueTo)) {
			continue
		}
		tasks = append(tasks, *copyTask(t))
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// withTask runs fn on a private copy of the task under the task's own
// lock. The copy and the returned history entries are committed together;
// if fn fails, neither the mutation nor any entry becomes visible.
func (m *memStore) withTask(ctx context.Context, id int, fn func(t *task) ([]changeEntry, error)) (*task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	stored, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return nil, errNotFound
	}
	cp := copyTask(stored)
	m.mu.Unlock()

	entries, err := fn(cp)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		// deleteUser removed the task while fn ran
		return nil, errNotFound
	}
	cp.Version++
	m.tasks[id] = copyTask(cp)
	now := time.Now()
	for i := range entries {
		m.appendChange(&entries[i], now)
	}
	return cp, nil
}

func (m *memStore) removeTask(ctx context.Context, id int, fn func(t *task) (changeEntry, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	stored, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return errNotFound
	}
	cp := copyTask(stored)
	m.mu.Unlock()

	entry, err := fn(cp)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return errNotFound
	}
	m.appendChange(&entry, time.Now())
	delete(m.tasks, id)
	return nil
}

func (m *memStore) listChanges(ctx context.Context, taskID int) ([]changeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []changeEntry
	for _, e := range m.changes {
		if e.TaskID == taskID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// appendChange assigns the next serial id and the shared batch timestamp.
// Caller must hold m.mu.
func (m *memStore) appendChange(e *changeEntry, now time.Time) {
	e.ID = m.nextChangeID
	m.nextChangeID++
	e.CreatedAt = now
	m.changes = append(m.changes, *e)
}

func (m *memStore) lockFor(id int) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.taskLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.taskLocks[id] = l
	}
	return l
}

func copyTask(t *task) *task {
	cp := *t
	if t.DueDate != nil {
		due := *t.DueDate
		cp.DueDate = &due
	}
	return &cp
}
