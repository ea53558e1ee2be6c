package domain

import "errors"

var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrQueueFull     = errors.New("queue full")
	ErrLimiterClosed = errors.New("rate limiter closed")
)
