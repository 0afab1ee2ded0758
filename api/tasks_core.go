package main

import (
	"context"
	"time"
)

// taskStore carries the access-controlled task operations. Every mutation
// re-checks authorization inside the per-task transaction (the HTTP layer
// has already verified the token; the ownership check belongs here, next
// to the data it guards) and commits atomically with its history entries.
type taskStore struct {
	store storage
}

func newTaskStore(store storage) *taskStore {
	return &taskStore{store: store}
}

type taskInput struct {
	Title       string
	Description string
	DueDate     *time.Time
	Status      taskStatus
	IsFavorite  bool
}

// taskChanges holds a partial update; nil means "leave alone".
type taskChanges struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Status      *taskStatus
}

func (s *taskStore) create(ctx context.Context, caller principal, in taskInput) (*task, error) {
	if in.Status == "" {
		in.Status = statusToDo
	}
	v := newValidator()
	checkTitle(v, in.Title)
	v.checkCond(in.Status.valid(), "status", "must be one of TO_DO, IN_PROGRESS, COMPLETED")
	if v.hasErrors() {
		return nil, v.toError()
	}

	t := &task{
		UserID:      caller.UserID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Status:      in.Status,
		IsFavorite:  in.IsFavorite,
	}
	entry := createdEntry(t, caller.UserID)
	err := s.store.createTask(ctx, t, &entry)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// get hides tasks the caller may not see behind errNotFound so that a
// Regular user cannot probe for other users' task ids.
func (s *taskStore) get(ctx context.Context, caller principal, id int) (*task, error) {
	t, err := s.store.getTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errNotFound
	}
	if authorize(caller, t.UserID) != nil {
		return nil, errNotFound
	}
	return t, nil
}

// update applies a partial update atomically with its history entries. A
// status transition and any other field changes are logged as separate
// entries, status first, so reading the history back always replays the
// update in a deterministic order.
func (s *taskStore) update(ctx context.Context, caller principal, id int, ch taskChanges) (*task, error) {
	v := newValidator()
	if ch.Title != nil {
		checkTitle(v, *ch.Title)
	}
	if ch.Status != nil {
		v.checkCond(ch.Status.valid(), "status", "must be one of TO_DO, IN_PROGRESS, COMPLETED")
	}
	if v.hasErrors() {
		return nil, v.toError()
	}

	return s.store.withTask(ctx, id, func(t *task) ([]changeEntry, error) {
		err := authorize(caller, t.UserID)
		if err != nil {
			return nil, err
		}
		var entries []changeEntry
		if ch.Status != nil && *ch.Status != t.Status {
			entries = append(entries, statusChangedEntry(t.ID, caller.UserID, t.Status, *ch.Status))
			t.Status = *ch.Status
		}
		fields := make(map[string]fieldChange)
		if ch.Title != nil && *ch.Title != t.Title {
			fields["title"] = fieldChange{Old: t.Title, New: *ch.Title}
			t.Title = *ch.Title
		}
		if ch.Description != nil && *ch.Description != t.Description {
			fields["description"] = fieldChange{Old: t.Description, New: *ch.Description}
			t.Description = *ch.Description
		}
		if ch.DueDate != nil && (t.DueDate == nil || !ch.DueDate.Equal(*t.DueDate)) {
			fields["due_date"] = fieldChange{Old: t.DueDate, New: *ch.DueDate}
			due := *ch.DueDate
			t.DueDate = &due
		}
		if len(fields) > 0 {
			entries = append(entries, fieldUpdatedEntry(t.ID, caller.UserID, fields))
		}
		return entries, nil
	})
}

// delete writes the terminal DELETED entry before the row disappears; the
// audit trail survives the task.
func (s *taskStore) delete(ctx context.Context, caller principal, id int) error {
	return s.store.removeTask(ctx, id, func(t *task) (changeEntry, error) {
		err := authorize(caller, t.UserID)
		if err != nil {
			return changeEntry{}, err
		}
		return deletedEntry(t, caller.UserID), nil
	})
}

// list scopes Regular callers to their own tasks. Administrators see
// everything unless they narrow the owner filter themselves.
func (s *taskStore) list(ctx context.Context, caller principal, f taskFilters) ([]task, error) {
	if caller.Role != roleAdministrator {
		owner := caller.UserID
		f.owner = &owner
	}
	return s.store.listTasks(ctx, f)
}

func checkTitle(v *validator, title string) {
	v.checkCond(title != "", "title", "must be provided")
	v.checkCond(len(title) <= 255, "title", "must be atmost 255 characters")
}
