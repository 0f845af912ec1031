package errors

import "errors"

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired session token")
)

// Record store errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("record already exists")
	ErrUnknownStatus = errors.New("unknown status value")
)

// Remote API errors.
var (
	ErrRemoteRejected = errors.New("remote rejected request")
	ErrListIncomplete = errors.New("document listing incomplete")
)

// Id-resolution errors, raised when an uploaded document's display name
// cannot be matched to exactly one remote id.
var (
	ErrNameAmbiguous  = errors.New("display name maps to multiple remote documents")
	ErrNameUnresolved = errors.New("display name not found in remote listing")
)
