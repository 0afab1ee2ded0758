package main

import (
	"context"
	"encoding/json"
	"time"
)

// Payload shapes for the audit trail. Marshalling plain structs of strings,
// times and bools cannot fail, so the constructors drop the error.

type taskSnapshot struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      taskStatus `json:"status"`
	IsFavorite  bool       `json:"is_favorite"`
}

type fieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

func snapshot(t *task) taskSnapshot {
	return taskSnapshot{
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Status:      t.Status,
		IsFavorite:  t.IsFavorite,
	}
}

func createdEntry(t *task, actorID int) changeEntry {
	payload, _ := json.Marshal(snapshot(t))
	return changeEntry{TaskID: t.ID, ActorID: actorID, Kind: changeCreated, Payload: payload}
}

func deletedEntry(t *task, actorID int) changeEntry {
	payload, _ := json.Marshal(snapshot(t))
	return changeEntry{TaskID: t.ID, ActorID: actorID, Kind: changeDeleted, Payload: payload}
}

func statusChangedEntry(taskID, actorID int, from, to taskStatus) changeEntry {
	payload, _ := json.Marshal(fieldChange{Old: from, New: to})
	return changeEntry{TaskID: taskID, ActorID: actorID, Kind: changeStatusChanged, Payload: payload}
}

func fieldUpdatedEntry(taskID, actorID int, fields map[string]fieldChange) changeEntry {
	payload, _ := json.Marshal(map[string]any{"fields": fields})
	return changeEntry{TaskID: taskID, ActorID: actorID, Kind: changeFieldUpdated, Payload: payload}
}

func favoriteToggledEntry(taskID, actorID int, favorite bool) changeEntry {
	payload, _ := json.Marshal(map[string]bool{"is_favorite": favorite})
	return changeEntry{TaskID: taskID, ActorID: actorID, Kind: changeFavoriteToggled, Payload: payload}
}

// history returns the full audit trail of a task in recorded order. The
// visibility rule matches reading the task itself, and it keeps working
// after deletion: tasks are always created by their owner, so the CREATED
// entry's actor identifies the owner once the task row is gone. Regular
// callers never learn whether a task they cannot see exists.
func (s *taskStore) history(ctx context.Context, caller principal, taskID int) ([]changeEntry, error) {
	t, err := s.store.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t != nil {
		if authorize(caller, t.UserID) != nil {
			return nil, errNotFound
		}
		return s.store.listChanges(ctx, taskID)
	}
	entries, err := s.store.listChanges(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errNotFound
	}
	if authorize(caller, entries[0].ActorID) != nil {
		return nil, errNotFound
	}
	return entries, nil
}
