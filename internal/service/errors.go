package service

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrForbidden       = errors.New("session belongs to another founder")
	ErrSessionClosed   = errors.New("session closed")
	ErrInvalidValue    = errors.New("invalid field value")
	ErrDocumentMissing = errors.New("document not attached to this session")
	ErrSubmitInFlight  = errors.New("submit already in progress")
)

// BackendError is a non-success reply from the funding platform API
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

