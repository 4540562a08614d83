package recompiler

import "errors"

var (
	ErrNoExecutableMemory = errors.New("no executable memory available")
	ErrBufferAlloc        = errors.New("code buffer allocation failed")
	ErrDisplacementRange  = errors.New("relocation displacement out of range")
	ErrStepUnsupported    = errors.New("single step is not available in recompile mode")
	ErrNoExecutor         = errors.New("backend has no executor in this build")
	ErrUnmapped           = errors.New("address is not backed by memory")
	ErrUnknownMode        = errors.New("unknown execution mode")
	ErrUnknownBackend     = errors.New("unknown host backend")
)
