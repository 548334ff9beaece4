package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the typed error returned across service boundaries.
type Error struct {
	Code string
	Msg  string
	Err  error
}

const (
	Unknown           = "Unknown"
	BadRequest        = "BadRequest"
	Unauthorized      = "Unauthorized"
	InvalidTransition = "InvalidTransition"
	Forbidden         = "Forbidden"
	OrderNotFound     = "OrderNotFound"
	KitchenNotFound   = "KitchenNotFound"
	Conflict          = "Conflict"
	CapacityExhausted = "CapacityExhausted"
	StoreUnavailable  = "StoreUnavailable"
	QueueUnavailable  = "QueueUnavailable"
	Internal          = "Internal"
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Code == e.Code
}

var (
	ErrInvalidTransition = &Error{Code: InvalidTransition}
	ErrForbidden         = &Error{Code: Forbidden}
	ErrOrderNotFound     = &Error{Code: OrderNotFound}
	ErrKitchenNotFound   = &Error{Code: KitchenNotFound}
	ErrConflict          = &Error{Code: Conflict}
	ErrCapacityExhausted = &Error{Code: CapacityExhausted}
	ErrStoreUnavailable  = &Error{Code: StoreUnavailable}
	ErrQueueUnavailable  = &Error{Code: QueueUnavailable}
)

func New(code, msg string) error { return &Error{Code: code, Msg: msg} }

func Newf(code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(code, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Err: err}
}

// Store wraps an infrastructure error from the persistent store unless it is
// already typed.
func Store(msg string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(StoreUnavailable, msg, err)
}

// Queue is Store for the waiting queue and the event bus.
func Queue(msg string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(QueueUnavailable, msg, err)
}

// CodeOf returns the error's code, or Unknown.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

// HTTPStatus maps an error to the status the API answers with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case BadRequest, InvalidTransition:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case OrderNotFound, KitchenNotFound:
		return http.StatusNotFound
	case Conflict, CapacityExhausted:
		return http.StatusConflict
	case StoreUnavailable, QueueUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
