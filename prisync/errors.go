package prisync

import (
	"errors"
	"fmt"
)

// FetchError marks a whole-run fetch failure. A partial remote snapshot
// is never usable: missing products would surface as false "no match"
// failures across the entire run.
type FetchError struct {
	Offset int
	Err    error
}

func (e FetchError) Error() string {
	return fmt.Sprintf("fetch remote catalog at offset %d: %v", e.Offset, e.Err)
}

func (e FetchError) Unwrap() error {
	return e.Err
}

// ErrTransport indicates the page request never produced a response.
type ErrTransport struct {
	Err error
}

func (e ErrTransport) Error() string {
	return fmt.Errorf("transport: %w", e.Err).Error()
}

func (e ErrTransport) Unwrap() error {
	return e.Err
}

// ErrStatus indicates a non-success response status.
type ErrStatus struct {
	Code int
	Body string
}

func (e ErrStatus) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// ErrDecode indicates an unreadable response payload.
type ErrDecode struct {
	Err error
}

func (e ErrDecode) Error() string {
	return fmt.Errorf("decode: %w", e.Err).Error()
}

func (e ErrDecode) Unwrap() error {
	return e.Err
}

// retryable reports whether a page failure is worth another attempt.
// Client errors other than 429 are permanent.
func retryable(err error) bool {
	var transport ErrTransport
	if errors.As(err, &transport) {
		return true
	}
	var status ErrStatus
	if errors.As(err, &status) {
		return status.Code == 429 || status.Code >= 500
	}
	return false
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var transport ErrTransport
	if errors.As(err, &transport) {
		return "transport"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		switch {
		case status.Code == 429:
			return "rate_limited"
		case status.Code >= 500:
			return "server_error"
		default:
			return "client_error"
		}
	}
	var decode ErrDecode
	if errors.As(err, &decode) {
		return "decode"
	}
	return "other"
}
