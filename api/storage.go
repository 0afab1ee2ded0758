package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// storage is the persistence boundary. The core logic only ever talks to
// this interface; sqlStore backs it with postgres and memStore keeps
// everything in process for development and tests.
//
// withTask and removeTask are the transactional scoped resource around a
// single task: the callback runs with the task locked, and the mutation it
// performs plus the history entries it returns commit together or not at
// all. Tasks never contend with each other.
type storage interface {
	insertUser(ctx context.Context, u *user) error
	getUserByEmail(ctx context.Context, email string) (*user, error)
	getUserByID(ctx context.Context, id int) (*user, error)
	listUsers(ctx context.Context) ([]user, error)
	updateUser(ctx context.Context, u *user) error
	deleteUser(ctx context.Context, u *user, actorID int) error

	createTask(ctx context.Context, t *task, created *changeEntry) error
	getTask(ctx context.Context, id int) (*task, error)
	listTasks(ctx context.Context, f taskFilters) ([]task, error)
	withTask(ctx context.Context, id int, fn func(t *task) ([]changeEntry, error)) (*task, error)
	removeTask(ctx context.Context, id int, fn func(t *task) (changeEntry, error)) error
	listChanges(ctx context.Context, taskID int) ([]changeEntry, error)
}

type taskFilters struct {
	owner   *int
	status  *taskStatus
	dueFrom *time.Time
	dueTo   *time.Time
}

const queryTimeout = 5 * time.Second

func openDB(cfg config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.db.dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.db.maxOpenConnections)
	db.SetMaxIdleConns(cfg.db.maxIdleConnections)
	db.SetConnMaxIdleTime(cfg.db.maxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// task_changes has no foreign key to tasks on purpose: history rows must
// outlive the task (and the actor) they describe.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id bigserial PRIMARY KEY,
	created_at timestamp(0) with time zone NOT NULL DEFAULT now(),
	email text UNIQUE NOT NULL,
	password_hash bytea NOT NULL,
	role text NOT NULL DEFAULT 'Regular',
	version integer NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS tasks (
	id bigserial PRIMARY KEY,
	created_at timestamp(0) with time zone NOT NULL DEFAULT now(),
	user_id bigint NOT NULL REFERENCES users (id),
	title text NOT NULL,
	description text NOT NULL DEFAULT '',
	due_date timestamp(0) with time zone,
	status text NOT NULL DEFAULT 'TO_DO',
	is_favorite boolean NOT NULL DEFAULT false,
	version integer NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS task_changes (
	id bigserial PRIMARY KEY,
	task_id bigint NOT NULL,
	actor_id bigint NOT NULL,
	kind text NOT NULL,
	payload jsonb NOT NULL,
	created_at timestamp(0) with time zone NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS task_changes_task_id_idx ON task_changes (task_id, id);
`

type sqlStore struct {
	db *sql.DB
}

func newSQLStore(db *sql.DB) (*sqlStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return nil, err
	}
	return &sqlStore{db: db}, nil
}

func (s *sqlStore) insertUser(ctx context.Context, u *user) error {
	query := `INSERT INTO users (email, password_hash, role)
			  VALUES ($1, $2, $3)
			  RETURNING id, created_at, version`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, query, u.Email, u.PasswordHash, u.Role)
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Version)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return errDuplicateEmail
	}
	return err
}

func (s *sqlStore) getUserByEmail(ctx context.Context, email string) (*user, error) {
	query := `SELECT id, created_at, email, password_hash, role, version
			  FROM users
			  WHERE email = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *sqlStore) getUserByID(ctx context.Context, id int) (*user, error) {
	query := `SELECT id, created_at, email, password_hash, role, version
			  FROM users
			  WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

func scanUser(row *sql.Row) (*user, error) {
	var u user
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Email, &u.PasswordHash, &u.Role, &u.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, nil
		default:
			return nil, err
		}
	}
	return &u, nil
}

func (s *sqlStore) listUsers(ctx context.Context) ([]user, error) {
	query := `SELECT id, created_at, email, password_hash, role, version
			  FROM users
			  ORDER BY id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []user
	for rows.Next() {
		var u user
		err = rows.Scan(&u.ID, &u.CreatedAt, &u.Email, &u.PasswordHash, &u.Role, &u.Version)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *sqlStore) updateUser(ctx context.Context, u *user) error {
	query := `UPDATE users SET email = $1, password_hash = $2, role = $3, version = version + 1
			  WHERE id = $4 AND version = $5
			  RETURNING version`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, query, u.Email, u.PasswordHash, u.Role, u.ID, u.Version)
	err := row.Scan(&u.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound
	}
	return err
}

// deleteUser removes the user together with every task they own. Each task
// gets a terminal DELETED history entry attributed to actorID before its
// row goes away, all in one transaction.
func (s *sqlStore) deleteUser(ctx context.Context, u *user, actorID int) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY id FOR UPDATE`, u.ID)
	if err != nil {
		return err
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return err
	}
	for i := range tasks {
		entry := deletedEntry(&tasks[i], actorID)
		err = insertChange(ctx, tx, &entry)
		if err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = $1`, u.ID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, u.ID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

const taskColumns = `SELECT id, created_at, user_id, title, description, due_date, status, is_favorite, version`

func scanTaskRow(row interface {
	Scan(dest ...any) error
}, t *task) error {
	return row.Scan(&t.ID, &t.CreatedAt, &t.UserID, &t.Title, &t.Description, &t.DueDate, &t.Status, &t.IsFavorite, &t.Version)
}

func collectTasks(rows *sql.Rows) ([]task, error) {
	defer rows.Close()
	var tasks []task
	for rows.Next() {
		var t task
		err := scanTaskRow(rows, &t)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *sqlStore) createTask(ctx context.Context, t *task, created *changeEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO tasks (user_id, title, description, due_date, status, is_favorite)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id, created_at, version`
	row := tx.QueryRowContext(ctx, query, t.UserID, t.Title, t.Description, t.DueDate, t.Status, t.IsFavorite)
	err = row.Scan(&t.ID, &t.CreatedAt, &t.Version)
	if err != nil {
		return err
	}
	created.TaskID = t.ID
	err = insertChange(ctx, tx, created)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) getTask(ctx context.Context, id int) (*task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var t task
	err := scanTaskRow(s.db.QueryRowContext(ctx, taskColumns+` FROM tasks WHERE id = $1`, id), &t)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, nil
		default:
			return nil, err
		}
	}
	return &t, nil
}

func (s *sqlStore) listTasks(ctx context.Context, f taskFilters) ([]task, error) {
	// Creation order (serial id) keeps pagination deterministic.
	query := taskColumns + `
			 FROM tasks
			 WHERE ($1::bigint IS NULL OR user_id = $1)
			   AND ($2::text IS NULL OR status = $2)
			   AND ($3::timestamptz IS NULL OR due_date >= $3)
			   AND ($4::timestamptz IS NULL OR due_date <= $4)
			 ORDER BY id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, f.owner, f.status, f.dueFrom, f.dueTo)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func (s *sqlStore) withTask(ctx context.Context, id int, fn func(t *task) ([]changeEntry, error)) (*task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := lockTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	entries, err := fn(t)
	if err != nil {
		return nil, err
	}
	query := `UPDATE tasks SET title = $1, description = $2, due_date = $3, status = $4, is_favorite = $5, version = version + 1
			  WHERE id = $6
			  RETURNING version`
	err = tx.QueryRowContext(ctx, query, t.Title, t.Description, t.DueDate, t.Status, t.IsFavorite, t.ID).Scan(&t.Version)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		err = insertChange(ctx, tx, &entries[i])
		if err != nil {
			return nil, err
		}
	}
	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *sqlStore) removeTask(ctx context.Context, id int, fn func(t *task) (changeEntry, error)) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := lockTask(ctx, tx, id)
	if err != nil {
		return err
	}
	entry, err := fn(t)
	if err != nil {
		return err
	}
	err = insertChange(ctx, tx, &entry)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// lockTask loads the task row with FOR UPDATE, serializing concurrent
// mutations of the same task for the lifetime of the transaction.
func lockTask(ctx context.Context, tx *sql.Tx, id int) (*task, error) {
	var t task
	err := scanTaskRow(tx.QueryRowContext(ctx, taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id), &t)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, errNotFound
		default:
			return nil, err
		}
	}
	return &t, nil
}

func insertChange(ctx context.Context, tx *sql.Tx, e *changeEntry) error {
	query := `INSERT INTO task_changes (task_id, actor_id, kind, payload)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id, created_at`
	// lib/pq would send the raw payload bytes as bytea; jsonb wants text.
	row := tx.QueryRowContext(ctx, query, e.TaskID, e.ActorID, e.Kind, string(e.Payload))
	return row.Scan(&e.ID, &e.CreatedAt)
}

func (s *sqlStore) listChanges(ctx context.Context, taskID int) ([]changeEntry, error) {
	query := `SELECT id, task_id, actor_id, kind, payload, created_at
			  FROM task_changes
			  WHERE task_id = $1
			  ORDER BY id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []changeEntry
	for rows.Next() {
		var e changeEntry
		err = rows.Scan(&e.ID, &e.TaskID, &e.ActorID, &e.Kind, &e.Payload, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
