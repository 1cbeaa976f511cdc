package queue

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrQueuePaused         = errors.New("queue is paused")
	ErrQueueClosed         = errors.New("queue is outside opening hours")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrCapabilityDisabled  = errors.New("capability disabled for this queue")
	ErrInvalidInput        = errors.New("invalid input")

	// ErrJoinCodeTaken is returned by stores when a generated join code collides.
	ErrJoinCodeTaken = errors.New("join code already in use")
)
