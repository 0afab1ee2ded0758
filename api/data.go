package main

import (
	"encoding/json"
	"time"
)

type role string

const (
	roleRegular       role = "Regular"
	roleAdministrator role = "Administrator"
)

func (r role) valid() bool {
	return r == roleRegular || r == roleAdministrator
}

type taskStatus string

const (
	statusToDo       taskStatus = "TO_DO"
	statusInProgress taskStatus = "IN_PROGRESS"
	statusCompleted  taskStatus = "COMPLETED"
)

func (s taskStatus) valid() bool {
	switch s {
	case statusToDo, statusInProgress, statusCompleted:
		return true
	}
	return false
}

type user struct {
	ID           int       `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Role         role      `json:"role"`
	Version      int       `json:"-"`
}

type task struct {
	ID          int        `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UserID      int        `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      taskStatus `json:"status"`
	IsFavorite  bool       `json:"is_favorite"`
	Version     int        `json:"-"`
}

type changeKind string

const (
	changeCreated         changeKind = "CREATED"
	changeFieldUpdated    changeKind = "FIELD_UPDATED"
	changeStatusChanged   changeKind = "STATUS_CHANGED"
	changeFavoriteToggled changeKind = "FAVORITE_TOGGLED"
	changeDeleted         changeKind = "DELETED"
)

// changeEntry is one immutable audit record. Entries are never updated or
// deleted, even after the task they describe is gone; the serial ID is the
// authoritative recording order within a task.
type changeEntry struct {
	ID        int             `json:"id"`
	TaskID    int             `json:"task_id"`
	ActorID   int             `json:"actor_id"`
	Kind      changeKind      `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// principal is the verified identity attached to a request by the auth
// middleware. It comes straight out of the token; the role is a snapshot
// taken at issuance.
type principal struct {
	UserID int
	Role   role
}
