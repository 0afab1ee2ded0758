package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	var cfg config
	cfg.env = "test"
	store := newMemStore()
	app := &application{
		config: cfg,
		store:  store,
		tasks:  newTaskStore(store),
		tokens: newTokenService("test-secret", time.Hour),
	}
	require.NoError(t, seedAdmin(store, "admin@example.com", "adminpass123"))
	srv := httptest.NewServer(composeRoutes(app))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any, out any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &reqBody)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func register(t *testing.T, srv *httptest.Server, email string) {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/v1/users", "", map[string]string{
		"email":    email,
		"password": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func login(t *testing.T, srv *httptest.Server, email, password string) string {
	t.Helper()
	var out map[string]string
	resp := do(t, srv, http.MethodPost, "/v1/users/auth", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, out["token"])
	return out["token"]
}

func TestHealthcheck(t *testing.T) {
	srv := newTestServer(t)
	var out map[string]string
	resp := do(t, srv, http.MethodGet, "/v1/healthcheck", "", nil, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "available", out["status"])
	assert.Equal(t, "test", out["environment"])
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodPost, "/v1/users", "", map[string]string{
		"email":    "not-an-email",
		"password": "short",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	register(t, srv, "dup@example.com")
	resp = do(t, srv, http.MethodPost, "/v1/users", "", map[string]string{
		"email":    "dup@example.com",
		"password": "password123",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "alice@example.com")

	for _, creds := range []map[string]string{
		{"email": "alice@example.com", "password": "wrongpassword"},
		{"email": "nobody@example.com", "password": "password123"},
	} {
		resp := do(t, srv, http.MethodPost, "/v1/users/auth", "", creds, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestTasksRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/v1/tasks", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/v1/tasks", "garbage-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTaskFlow(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "alice@example.com")
	register(t, srv, "bob@example.com")
	aliceToken := login(t, srv, "alice@example.com", "password123")
	bobToken := login(t, srv, "bob@example.com", "password123")
	adminToken := login(t, srv, "admin@example.com", "adminpass123")

	var t1 task
	resp := do(t, srv, http.MethodPost, "/v1/tasks", aliceToken, map[string]any{
		"title":    "Buy milk",
		"due_date": "2026-09-01",
	}, &t1)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, statusToDo, t1.Status)
	require.NotNil(t, t1.DueDate)

	taskPath := fmt.Sprintf("/v1/tasks/%d", t1.ID)

	// Bob cannot see or mutate alice's task.
	resp = do(t, srv, http.MethodGet, taskPath, bobToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, srv, http.MethodPut, taskPath, bobToken, map[string]string{"status": "COMPLETED"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The administrator can complete it.
	var updated task
	resp = do(t, srv, http.MethodPut, taskPath, adminToken, map[string]string{"status": "COMPLETED"}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, statusCompleted, updated.Status)
	assert.Equal(t, t1.UserID, updated.UserID)

	// Favorite twice; each toggle is logged.
	resp = do(t, srv, http.MethodPut, taskPath+"/favorite", aliceToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, srv, http.MethodPut, taskPath+"/favorite", aliceToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []changeEntry
	resp = do(t, srv, http.MethodGet, taskPath+"/changes", aliceToken, nil, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []changeKind{
		changeCreated,
		changeStatusChanged,
		changeFavoriteToggled,
		changeFavoriteToggled,
	}, kinds(entries))

	// Deletion keeps the trail readable for the owner.
	resp = do(t, srv, http.MethodDelete, taskPath, aliceToken, nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, taskPath, aliceToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	entries = nil
	resp = do(t, srv, http.MethodGet, taskPath+"/changes", aliceToken, nil, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, entries, 5)
	assert.Equal(t, changeDeleted, entries[4].Kind)

	resp = do(t, srv, http.MethodGet, taskPath+"/changes", bobToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "alice@example.com")
	aliceToken := login(t, srv, "alice@example.com", "password123")
	adminToken := login(t, srv, "admin@example.com", "adminpass123")

	resp := do(t, srv, http.MethodGet, "/v1/users", aliceToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var users []user
	resp = do(t, srv, http.MethodGet, "/v1/users", adminToken, nil, &users)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, users, 2)

	var promoted user
	alicePath := fmt.Sprintf("/v1/users/%d", users[1].ID)
	resp = do(t, srv, http.MethodPut, alicePath, adminToken, map[string]string{"role": "Administrator"}, &promoted)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, roleAdministrator, promoted.Role)

	// The promotion only shows up in tokens issued afterwards.
	newAliceToken := login(t, srv, "alice@example.com", "password123")
	resp = do(t, srv, http.MethodGet, "/v1/users", aliceToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/v1/users", newAliceToken, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodDelete, alicePath, adminToken, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/v1/users/auth", "", map[string]string{
		"email":    "alice@example.com",
		"password": "password123",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
