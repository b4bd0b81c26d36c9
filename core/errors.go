package core

import "github.com/pkg/errors"

// Runtime errors
var (
	ErrNotFound       = errors.New("process not found")
	ErrTerminated     = errors.New("process terminated")
	ErrTypeMismatch   = errors.New("process type mismatch")
	ErrTimeout        = errors.New("timed out")
	ErrAlreadySpawned = errors.New("process already spawned")
	ErrDuplicateID    = errors.New("process id already in use")
	ErrShutdown       = errors.New("runtime is shut down")
	ErrPanic          = errors.New("handler panicked")
)
