package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
)

func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	heathCheck := struct {
		Status      string `json:"status"`
		Environment string `json:"environment"`
		Version     string `json:"version"`
	}{
		Status:      "available",
		Environment: app.config.env,
		Version:     version,
	}
	writeJSON(w, http.StatusOK, heathCheck)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Println(err)
		writeError(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
}

func composeJSONError(err error) string {
	jsonError := map[string]string{
		"error": err.Error(),
	}
	result, err := json.Marshal(jsonError)
	if err != nil {
		log.Println(err)
		return ""
	}
	return string(result)
}

func writeError(w http.ResponseWriter, err error, statusCode int) {
	h := w.Header()
	h.Del("Content-Length")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	fmt.Fprintln(w, composeJSONError(err))
}

// writeDomainError maps the core error kinds onto status codes. Anything
// unrecognized is a storage fault or a bug; it is logged and answered with
// a bare 500 so no internals leak.
func writeDomainError(w http.ResponseWriter, err error) {
	var vErr validationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, vErr, http.StatusBadRequest)
	case errors.Is(err, errDuplicateEmail):
		writeError(w, err, http.StatusBadRequest)
	case errors.Is(err, errInvalidToken), errors.Is(err, errInvalidCredentials):
		writeError(w, err, http.StatusUnauthorized)
	case errors.Is(err, errForbidden):
		writeError(w, err, http.StatusForbidden)
	case errors.Is(err, errNotFound):
		writeError(w, err, http.StatusNotFound)
	default:
		log.Println(err)
		writeError(w, errors.New("internal server error"), http.StatusInternalServerError)
	}
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
