package errors

import "errors"

// Auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid client credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)

// Sync errors.
var (
	ErrRootResolve  = errors.New("could not resolve or create remote root folder")
	ErrItemNotFound = errors.New("remote item not found")
	ErrSimulatedID  = errors.New("simulated id passed to real remote client")
)
