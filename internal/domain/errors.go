package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStore            = errors.New("session store error")
	ErrNetwork          = errors.New("network error")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrUpload           = errors.New("upload error")
	ErrInvalidMode      = errors.New("invalid mode")
)

// ServerError is a non-success status returned by the response backend.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (code %d)", e.Code)
	}
	return fmt.Sprintf("server error (code %d): %s", e.Code, e.Message)
}

// UserFacingError maps a generation or upload failure to the short banner text shown in the UI.
func UserFacingError(err error) string {
	var serverErr *ServerError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUpload):
		return "couldn't upload your image. try again?"
	case errors.Is(err, ErrNetwork):
		return "looks like you're offline. check your connection and try again."
	case errors.Is(err, ErrModelUnavailable):
		return "the model is taking a break right now. try again in a bit."
	case errors.As(err, &serverErr):
		return fmt.Sprintf("something went wrong on our side (%d). try again.", serverErr.Code)
	default:
		return "something went wrong. try again."
	}
}
