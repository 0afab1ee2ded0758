package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// createUserHandler registers a new account. Everybody registers as a
// Regular user; roles are granted afterwards by an administrator through
// updateUserHandler.
func (app *application) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	err := readJSON(r, &input)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	v := newValidator()
	v.checkEmail(input.Email)
	v.checkPassword(input.Password)
	if v.hasErrors() {
		writeError(w, v.toError(), http.StatusBadRequest)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), 12)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	u := &user{
		Email:        input.Email,
		PasswordHash: hash,
		Role:         roleRegular,
	}
	err = app.store.insertUser(r.Context(), u)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if app.mailer != nil {
		go func() {
			err := app.mailer.sendWelcome(u.Email)
			if err != nil {
				log.Println(err)
			}
		}()
	}
	writeJSON(w, http.StatusCreated, u)
}

// authenticateUserHandler exchanges credentials for a session token. A
// wrong email and a wrong password get the same answer.
func (app *application) authenticateUserHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	err := readJSON(r, &input)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	u, err := app.store.getUserByEmail(r.Context(), input.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if u == nil {
		writeDomainError(w, errInvalidCredentials)
		return
	}
	err = bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(input.Password))
	if err != nil {
		writeDomainError(w, errInvalidCredentials)
		return
	}
	token, err := app.tokens.issue(u)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (app *application) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := app.store.listUsers(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if users == nil {
		users = []user{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (app *application) getUserHandler(w http.ResponseWriter, r *http.Request) {
	u, err := app.lookupUser(w, r)
	if u == nil || err != nil {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// updateUserHandler changes a user's role. Only administrators reach this
// handler; the identity and password of an account stay with its owner.
func (app *application) updateUserHandler(w http.ResponseWriter, r *http.Request) {
	u, err := app.lookupUser(w, r)
	if u == nil || err != nil {
		return
	}
	var input struct {
		Role role `json:"role"`
	}
	err = readJSON(r, &input)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	v := newValidator()
	v.checkCond(input.Role.valid(), "role", "must be one of Regular, Administrator")
	if v.hasErrors() {
		writeError(w, v.toError(), http.StatusBadRequest)
		return
	}
	u.Role = input.Role
	err = app.store.updateUser(r.Context(), u)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// deleteUserHandler removes a user and their tasks. Each task gets a
// terminal DELETED history entry attributed to the acting administrator;
// the history itself is retained.
func (app *application) deleteUserHandler(w http.ResponseWriter, r *http.Request) {
	u, err := app.lookupUser(w, r)
	if u == nil || err != nil {
		return
	}
	actor := getPrincipal(r)
	err = app.store.deleteUser(r.Context(), u, actor.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lookupUser resolves the {id} path segment. On failure it has already
// written the response and returns nil.
func (app *application) lookupUser(w http.ResponseWriter, r *http.Request) (*user, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, errNotFound, http.StatusNotFound)
		return nil, err
	}
	u, err := app.store.getUserByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, err
	}
	if u == nil {
		writeError(w, errors.New("user not found"), http.StatusNotFound)
		return nil, nil
	}
	return u, nil
}
