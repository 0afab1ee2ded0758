package main

import (
	"net/http"
	"strconv"
	"time"
)

func (app *application) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		DueDate     *string `json:"due_date"`
		Status      *string `json:"status"`
		IsFavorite  bool    `json:"is_favorite"`
	}
	err := readJSON(r, &input)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	in := taskInput{
		Title:       input.Title,
		Description: input.Description,
		IsFavorite:  input.IsFavorite,
	}
	v := newValidator()
	if input.DueDate != nil {
		in.DueDate = parseDueDate(v, *input.DueDate)
	}
	if input.Status != nil {
		in.Status = taskStatus(*input.Status)
	}
	if v.hasErrors() {
		writeError(w, v.toError(), http.StatusBadRequest)
		return
	}
	t, err := app.tasks.create(r.Context(), getPrincipal(r), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (app *application) getTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	t, err := app.tasks.get(r.Context(), getPrincipal(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (app *application) updateTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	var input struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		DueDate     *string `json:"due_date"`
		Status      *string `json:"status"`
	}
	err := readJSON(r, &input)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	ch := taskChanges{
		Title:       input.Title,
		Description: input.Description,
	}
	v := newValidator()
	if input.DueDate != nil {
		ch.DueDate = parseDueDate(v, *input.DueDate)
	}
	if input.Status != nil {
		status := taskStatus(*input.Status)
		ch.Status = &status
	}
	if v.hasErrors() {
		writeError(w, v.toError(), http.StatusBadRequest)
		return
	}
	t, err := app.tasks.update(r.Context(), getPrincipal(r), id, ch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (app *application) deleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	err := app.tasks.delete(r.Context(), getPrincipal(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) getTasksHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	var f taskFilters
	v := newValidator()
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		status := taskStatus(s)
		v.checkCond(status.valid(), "status", "must be one of TO_DO, IN_PROGRESS, COMPLETED")
		f.status = &status
	}
	if s := q.Get("due_from"); s != "" {
		f.dueFrom = parseDueDate(v, s)
	}
	if s := q.Get("due_to"); s != "" {
		f.dueTo = parseDueDate(v, s)
	}
	if s := q.Get("user_id"); s != "" {
		owner, err := strconv.Atoi(s)
		v.checkCond(err == nil, "user_id", "must be an integer")
		f.owner = &owner
	}
	if v.hasErrors() {
		writeError(w, v.toError(), http.StatusBadRequest)
		return
	}
	tasks, err := app.tasks.list(r.Context(), p, f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if tasks == nil {
		tasks = []task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (app *application) toggleFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	t, err := app.tasks.toggleFavorite(r.Context(), getPrincipal(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (app *application) getTaskChangesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	entries, err := app.tasks.history(r.Context(), getPrincipal(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func taskID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, errNotFound, http.StatusNotFound)
		return 0, false
	}
	return id, true
}

// parseDueDate accepts a bare calendar date or a full RFC 3339 timestamp.
func parseDueDate(v *validator, s string) *time.Time {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return &t
		}
	}
	v.checkCond(false, "due_date", "must be a valid date (YYYY-MM-DD or RFC 3339)")
	return nil
}
