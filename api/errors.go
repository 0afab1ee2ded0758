package main

import "errors"

var (
	errInvalidToken       = errors.New("invalid token")
	errInvalidCredentials = errors.New("invalid credentials")
	errForbidden          = errors.New("forbidden")
	errNotFound           = errors.New("not found")
	errDuplicateEmail     = errors.New("a user with this email address already exists")
)
