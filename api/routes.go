package main

import (
	"net/http"
)

func composeRoutes(app *application) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/healthcheck", app.healthCheckHandler)

	mux.HandleFunc("POST /v1/users", app.createUserHandler)
	mux.HandleFunc("POST /v1/users/auth", app.authenticateUserHandler)

	mux.HandleFunc("GET /v1/users", app.requireAuth(app.requireAdmin(app.listUsersHandler)))
	mux.HandleFunc("GET /v1/users/{id}", app.requireAuth(app.requireAdmin(app.getUserHandler)))
	mux.HandleFunc("PUT /v1/users/{id}", app.requireAuth(app.requireAdmin(app.updateUserHandler)))
	mux.HandleFunc("DELETE /v1/users/{id}", app.requireAuth(app.requireAdmin(app.deleteUserHandler)))

	mux.HandleFunc("POST /v1/tasks", app.requireAuth(app.createTaskHandler))
	mux.HandleFunc("GET /v1/tasks", app.requireAuth(app.getTasksHandler))
	mux.HandleFunc("GET /v1/tasks/{id}", app.requireAuth(app.getTaskHandler))
	mux.HandleFunc("PUT /v1/tasks/{id}", app.requireAuth(app.updateTaskHandler))
	mux.HandleFunc("DELETE /v1/tasks/{id}", app.requireAuth(app.deleteTaskHandler))
	mux.HandleFunc("PUT /v1/tasks/{id}/favorite", app.requireAuth(app.toggleFavoriteHandler))
	mux.HandleFunc("GET /v1/tasks/{id}/changes", app.requireAuth(app.getTaskChangesHandler))

	var h http.Handler = mux
	if len(app.config.cors.trustedOrigins) > 0 {
		h = app.enableCORS(h)
	}
	if app.config.limiter.enabled {
		h = app.rateLimit(h)
	}
	return h
}
