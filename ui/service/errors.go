package service

import (
	"errors"
	"fmt"

	"github.com/youssefsiam38/contextpg/storage"
)

// Service package errors.
var (
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("service: not found")
)

// notFound maps storage's missing-session error onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, storage.ErrSessionNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
