// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package tinykernel

import "time"

// DefaultPriorityLevels is the number of ready-queue priority slots used
// when [WithPriorityLevels] is not supplied. The lowest slot (index
// DefaultPriorityLevels-1) is reserved for the idle task.
const DefaultPriorityLevels = 32

// DefaultTimeSlice is the per-task round-robin time-slice length, in
// ticks, used when a task is created without an explicit slice (see
// [WithDefaultTimeSlice]).
const DefaultTimeSlice = 10

// kernelOptions holds configuration resolved at Kernel creation time.
type kernelOptions struct {
	priorityLevels   int
	paramChecking    bool
	deadlockDetect   bool
	ceilingProtocol  bool
	defaultTimeSlice uint32
	port             Port
	tickDriver       TickDriver
	logger           Logger
	fatal            func(string)
	onDeadlock       func([]*Task)
}

// --- Kernel Options ---

// KernelOption configures a Kernel instance.
type KernelOption interface {
	applyKernel(*kernelOptions) error
}

// kernelOptionImpl implements KernelOption.
type kernelOptionImpl struct {
	applyFunc func(*kernelOptions) error
}

func (o *kernelOptionImpl) applyKernel(opts *kernelOptions) error {
	return o.applyFunc(opts)
}

// WithPriorityLevels sets the number of ready-queue priority slots. Must
// be at least 2 (one for the idle task, one for user tasks); defaults to
// [DefaultPriorityLevels].
func WithPriorityLevels(n int) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if n < 2 || n > 64 {
			return wrapErr("WithPriorityLevels", "", ErrBadParam)
		}
		opts.priorityLevels = n
		return nil
	}}
}

// WithParamChecking enables the identity-tag check on every public
// operation that takes a *Task or *Mutex. Disabling this mirrors shipping a
// release build of an embedded kernel with TN_CHECK_PARAM off: a stale,
// nil or zero-value object gets undefined results instead of
// ErrInvalidObject. Range and argument checks that return ErrBadParam run
// regardless of this setting. Enabled by default.
func WithParamChecking(enabled bool) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.paramChecking = enabled
		return nil
	}}
}

// WithDeadlockDetection enables lock-wait-for cycle tracking. When a
// cycle is detected, onDeadlock (if non-nil, see [WithDeadlockCallback])
// is invoked and the lock call still proceeds to block or time out —
// detection is advisory, not a change in blocking semantics.
func WithDeadlockDetection(enabled bool) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.deadlockDetect = enabled
		return nil
	}}
}

// WithDeadlockCallback sets the callback invoked with the cycle of tasks
// involved whenever WithDeadlockDetection reports a cycle.
func WithDeadlockCallback(fn func(cycle []*Task)) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.onDeadlock = fn
		return nil
	}}
}

// WithCeilingProtocol enables the priority-ceiling mutex protocol
// ([ProtocolCeiling]) in addition to the always-available priority
// inheritance protocol.
func WithCeilingProtocol(enabled bool) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.ceilingProtocol = enabled
		return nil
	}}
}

// WithDefaultTimeSlice sets the round-robin time-slice length, in ticks,
// used for tasks created without an explicit slice.
func WithDefaultTimeSlice(ticks uint32) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if ticks == 0 {
			return wrapErr("WithDefaultTimeSlice", "", ErrBadParam)
		}
		opts.defaultTimeSlice = ticks
		return nil
	}}
}

// WithPort injects a custom [Port] implementation, replacing
// [DefaultPort]. Intended for tests or alternative execution substrates.
func WithPort(p Port) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if p == nil {
			return wrapErr("WithPort", "", ErrBadParam)
		}
		opts.port = p
		return nil
	}}
}

// WithTickDriver injects a custom [TickDriver], e.g. [NewFakeClock] for
// deterministic tests.
func WithTickDriver(d TickDriver) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if d == nil {
			return wrapErr("WithTickDriver", "", ErrBadParam)
		}
		opts.tickDriver = d
		return nil
	}}
}

// WithLogger sets the Kernel's structured logger, overriding the package
// global (see [SetStructuredLogger]).
func WithLogger(l Logger) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if l == nil {
			return wrapErr("WithLogger", "", ErrBadParam)
		}
		opts.logger = l
		return nil
	}}
}

// WithFatalHandler sets the function invoked on internal invariant
// violations (the kernel's "trap to the port layer"). Without it the
// port's own Fatal is used; DefaultPort's panics, which is appropriate for
// tests. Production embedders should supply a
// handler that halts or breaks into a debugger without unwinding Go
// state further, matching the architecture port's fatal-error trap.
func WithFatalHandler(fn func(string)) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		if fn == nil {
			return wrapErr("WithFatalHandler", "", ErrBadParam)
		}
		opts.fatal = fn
		return nil
	}}
}

// resolveKernelOptions applies KernelOption instances over the defaults.
func resolveKernelOptions(opts []KernelOption) (*kernelOptions, error) {
	cfg := &kernelOptions{
		priorityLevels:   DefaultPriorityLevels,
		paramChecking:    true,
		defaultTimeSlice: DefaultTimeSlice,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyKernel(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.port == nil {
		cfg.port = NewDefaultPort()
	}
	if cfg.tickDriver == nil {
		cfg.tickDriver = NewTicker(time.Millisecond)
	}
	if cfg.logger == nil {
		cfg.logger = getGlobalLogger()
	}
	if cfg.fatal == nil {
		cfg.fatal = cfg.port.Fatal
	}
	return cfg, nil
}

func defaultFatalHandler(msg string) {
	panic(msg)
}
