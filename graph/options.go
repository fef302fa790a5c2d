package graph

import "github.com/stepflow-ai/stepflow/graph/emit"

// Options configures engine execution behavior. Zero values get
// sensible defaults when the engine is constructed.
type Options struct {
	// MaxSteps is the hard safety cap on node executions per run,
	// guarding against graphs that never satisfy an exit condition.
	// Defaults to DefaultMaxSteps. Exhausting the cap terminates the
	// run as completed, not as an error.
	MaxSteps int
}

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine := graph.New(registry,
//	    graph.WithMaxSteps(100),
//	    graph.WithEmitter(emit.NewLogEmitter(os.Stderr, true)),
//	)
type Option func(*Engine)

// WithMaxSteps overrides the per-run step cap.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.opts.MaxSteps = n
		}
	}
}

// WithEmitter sets the observability event emitter. The default is a
// NullEmitter.
func WithEmitter(emitter emit.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithMetrics attaches Prometheus metrics collection. Without it the
// engine records nothing.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator overrides how graph and run identifiers are
// generated. The default is random UUIDs; tests use this for
// deterministic identifiers.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}
