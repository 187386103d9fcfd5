package fluxroute

import (
	"time"

	"github.com/nolandwork/fluxroute/fluxroute/emit"
)

// Option configures an Engine at construction, following the teacher's
// graph/options.go functional-option pattern: each Option mutates an
// internal engineConfig, so New can validate and compose settings before an
// Engine is built.
type Option func(*engineConfig)

type engineConfig struct {
	emitter           emit.Emitter
	metrics           *PrometheusMetrics
	traversalTimeout  time.Duration
	useConcurrentExec bool
}

func defaultEngineConfig() engineConfig {
	return engineConfig{emitter: emit.NewNullEmitter()}
}

// WithEmitter attaches an observability sink that receives an event for
// every key-function evaluation, nonterminal route decision, and handler
// dispatch/completion during Engine.Forward. Default is emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(c *engineConfig) { c.emitter = e }
}

// WithMetrics attaches Prometheus metrics collection (in-flight traversals,
// executor queue depth, key-function latency, routing exception and
// handler error counters). Default is nil (disabled).
func WithMetrics(m *PrometheusMetrics) Option {
	return func(c *engineConfig) { c.metrics = m }
}

// WithTraversalTimeout bounds how long a single Engine.Forward call's
// routing-and-dispatch may run before its context is cancelled. Zero (the
// default) means no engine-imposed bound; the caller's own context.Context
// still applies.
func WithTraversalTimeout(d time.Duration) Option {
	return func(c *engineConfig) { c.traversalTimeout = d }
}

// WithConcurrentExecutor switches the per-Forward Executor from the
// strictly sequential PriorityExecutor to ConcurrentExecutor, which runs
// same-priority-tier handlers concurrently (spec.md design notes' "plausible
// acceptable extension", resolved in SPEC_FULL.md's Open Question 3).
func WithConcurrentExecutor() Option {
	return func(c *engineConfig) { c.useConcurrentExec = true }
}
