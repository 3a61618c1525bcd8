package store

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound means the remote document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrUnauthorized means the credential was missing, invalid or lacks access.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransientNetwork covers transport failures and unexpected server responses.
	ErrTransientNetwork = errors.New("network error")

	// ErrMalformedPayload means the remote content could not be parsed as a document.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrVersionConflict means the expected version was stale. Carries no payload;
	// the caller must read again.
	ErrVersionConflict = errors.New("version conflict")

	// ErrNoCredential means the store has no write credential.
	ErrNoCredential = errors.New("no write credential")
)

// StatusError is a non-success response from an HTTP-based backend.
// It unwraps to one of the sentinel errors above.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
	Kind       error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Kind }

// Classify maps an HTTP status code to an error kind.
func Classify(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusConflict, http.StatusPreconditionFailed:
		return ErrVersionConflict
	}
	return ErrTransientNetwork
}

// NewStatusError builds a StatusError classified by status code.
func NewStatusError(op string, status int, message string) *StatusError {
	return &StatusError{Op: op, StatusCode: status, Message: message, Kind: Classify(status)}
}

// Network wraps a transport-level failure as ErrTransientNetwork.
func Network(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientNetwork, err)
}

// Malformed wraps a decode failure as ErrMalformedPayload.
func Malformed(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrMalformedPayload, err)
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
