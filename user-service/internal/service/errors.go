// Package service defines the error kinds shared by the user command and
// query services. Callers branch on them with errors.Is, never on the text.
package service

import "errors"

var (
	ErrAlreadyExists = errors.New("user already exists")
	ErrNotFound      = errors.New("user does not exist")
	ErrInvalidInput  = errors.New("invalid user input")
)
