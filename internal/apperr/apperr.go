// Package apperr defines the failure kinds surfaced by the subscription
// pipeline and the one place they are translated into HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindClientInput means the submitted form was missing a required field.
	KindClientInput
	// KindPersistence means the store rejected or never received the write.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error carries a Kind together with the operation that failed and its cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ClientInput wraps err as a client input failure.
func ClientInput(op string, err error) error {
	return &Error{Kind: KindClientInput, Op: op, Err: err}
}

// Persistence wraps err as a persistence failure.
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps err to the status code returned to the client.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindClientInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
