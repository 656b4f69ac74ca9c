package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrNoEventsFetched = errors.New("no events fetched")
	ErrUnknownSource   = errors.New("unknown source")
	ErrEventNotFound   = errors.New("event not found")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is lets callers match any ValidationError with errors.Is(err, ErrInvalidRequest).
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}
