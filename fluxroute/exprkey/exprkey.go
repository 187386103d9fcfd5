// Package exprkey compiles an expression-language string into a
// fluxroute.KeyFunction, giving graph constructors like If/Equals a
// data-driven alternative to hand-written Go predicate closures — the kind
// of ergonomic surface a bot framework's router author wants for simple
// routing rules ("args[0] > 0", "kwargs.user.age >= 18") without writing a
// Go closure per rule.
//
// Grounded on yesoreyeram-thaiyyal's backend/pkg/expression package, which
// wraps github.com/expr-lang/expr the same way: compile once against a
// dynamic map[string]any environment, cache the *vm.Program, and Run it
// per evaluation.
package exprkey

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/nolandwork/fluxroute/fluxroute"
)

// buildEnv assembles the evaluation environment an expression sees:
//   - args: the positional arguments passed to Engine.Forward, as []any
//   - kwargs: the flattened scope built so far (RouteState.Build())
//
// A compiled expression may also reference any top-level kwargs key
// directly, the way the teacher's expression package exposes "variables"
// entries both nested and flattened for convenience.
func buildEnv(args []any, built map[string]any) map[string]any {
	env := make(map[string]any, len(built)+2)
	for k, v := range built {
		env[k] = v
	}
	env["args"] = args
	env["kwargs"] = built
	if len(args) > 0 {
		env["arg0"] = args[0]
	}
	return env
}

// compiledExpr caches a compiled program, so a compilation failure is reported once at Compile time rather than on every
// evaluation.
type compiledExpr struct {
	mu      sync.Mutex
	program *vm.Program
}

// Compile parses expression once and returns a *fluxroute.KeyFunction named
// name that evaluates it on every call, binding "args" and "kwargs" (plus
// every flattened scope key directly) into the expression environment.
//
// Compile errors are returned immediately — a malformed expression is a
// programmer error caught at graph-construction time, not a routing-time
// surprise.
func Compile(name, expression string) (*fluxroute.KeyFunction, error) {
	sampleEnv := buildEnv(nil, nil)
	program, err := expr.Compile(expression, expr.Env(sampleEnv), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("exprkey: compiling %q: %w", name, err)
	}
	c := &compiledExpr{program: program}

	return fluxroute.NewKeyFunction(func(ctx context.Context, state *fluxroute.RouteState, built map[string]any) (any, error) {
		c.mu.Lock()
		prog := c.program
		c.mu.Unlock()

		env := buildEnv(state.Args, built)
		out, err := expr.Run(prog, env)
		if err != nil {
			return nil, fmt.Errorf("exprkey: evaluating %q: %w", name, err)
		}
		return out, nil
	}, fluxroute.WithKeyName(name)), nil
}

// CompilePredicate is Compile plus a boolean-return assertion (expr.AsBool
// at compile time), for use directly as an If/PredicateNode edge-key where
// a non-boolean result would otherwise be silently treated as truthy/falsy
// by fluxroute's duck-typed truthy().
func CompilePredicate(name, expression string) (*fluxroute.KeyFunction, error) {
	sampleEnv := buildEnv(nil, nil)
	program, err := expr.Compile(expression, expr.Env(sampleEnv), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("exprkey: compiling predicate %q: %w", name, err)
	}
	c := &compiledExpr{program: program}

	return fluxroute.NewKeyFunction(func(ctx context.Context, state *fluxroute.RouteState, built map[string]any) (any, error) {
		c.mu.Lock()
		prog := c.program
		c.mu.Unlock()

		env := buildEnv(state.Args, built)
		out, err := expr.Run(prog, env)
		if err != nil {
			return nil, fmt.Errorf("exprkey: evaluating predicate %q: %w", name, err)
		}
		return out, nil
	}, fluxroute.WithKeyName(name)), nil
}
