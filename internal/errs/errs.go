// Package errs defines the coded errors reported back to relay clients.
package errs

import (
	"github.com/pkg/errors"
)

// Code identifies a recoverable failure reported to the originating connection.
type Code string

const (
	CodeMissingField         Code = "MISSING_FIELD"
	CodeDuplicateName        Code = "DUPLICATE_NAME"
	CodeInvalidCredentials   Code = "INVALID_CREDENTIALS"
	CodeNotFound             Code = "NOT_FOUND"
	CodeUnauthenticated      Code = "UNAUTHENTICATED"
	CodeRecipientUnreachable Code = "RECIPIENT_UNREACHABLE"
	CodeInvalidCode          Code = "INVALID_CODE"
)

// CodeError pairs a taxonomy code with the message shown to the client.
type CodeError struct {
	Code Code   `json:"code"`
	Msg  string `json:"error"`
}

func New(code Code, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	return string(e.Code) + ": " + e.Msg
}

// Is matches any CodeError carrying the same code.
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrMissingField         = New(CodeMissingField, "Missing fields.")
	ErrDuplicateName        = New(CodeDuplicateName, "Username taken.")
	ErrInvalidCredentials   = New(CodeInvalidCredentials, "Invalid credentials.")
	ErrNotFound             = New(CodeNotFound, "Not found.")
	ErrUnauthenticated      = New(CodeUnauthenticated, "You are not authenticated.")
	ErrRecipientUnreachable = New(CodeRecipientUnreachable, "Recipient offline or not found.")
	ErrInvalidCode          = New(CodeInvalidCode, "Invalid code.")
)

// As extracts the CodeError from a possibly wrapped chain.
func As(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
