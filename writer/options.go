package writer

import "github.com/jbigot/ah5go/log"

// Option configures an Instance at construction time, matching the
// corpus's functional-options convention.
type Option func(*Instance)

// WithLogLevel sets the initial logging verbosity threshold.
func WithLogLevel(level log.Level) Option {
	return func(inst *Instance) { inst.log.SetLevel(level) }
}

// WithParallelCopy sets the initial parallel-copy flag.
func WithParallelCopy(on bool) Option {
	return func(inst *Instance) { inst.parallelCopy = on }
}

// WithScalarAsArray sets the initial scalar-promotion flag.
func WithScalarAsArray(on bool) Option {
	return func(inst *Instance) { inst.scalarAsArray = on }
}

// WithSurfacedErrors replaces the default fatal-on-storage-failure policy
// with a surfaced-error mode: instead of terminating the process, the
// worker's failure is recorded and returned to the caller's next Open
// call, which fails instead of proceeding.
func WithSurfacedErrors() Option {
	return func(inst *Instance) { inst.surfaceErrors = true }
}
