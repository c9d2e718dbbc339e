package domain

import "errors"

// Domain errors
var (
	ErrPlayerNotFound   = errors.New("player not found")
	ErrScoreNotFound    = errors.New("score not found")
	ErrUnsupportedMode  = errors.New("game mode not supported for replay analysis")
	ErrQueueClosed      = errors.New("queue closed")
	ErrPoolClosed       = errors.New("worker pool closed")
	ErrInvalidInterval  = errors.New("job interval must be positive")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInternalError    = errors.New("internal server error")
	ErrQueueUnavailable = errors.New("queue does not accept submissions")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrScoreNotFound)
}
