package fluxroute

import (
	"context"
	"reflect"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// KeyStore is a traversal's memoization table: plain keys (strings,
// anything comparable) map to caller-supplied values, and KeyFunction
// results are cached by the function's identity so that a key function
// referenced from several nonterminals is evaluated at most once per
// traversal. Concurrent callers racing to evaluate the same KeyFunction
// during one traversal converge on a single in-flight call via singleflight.
//
// Writing a *KeyFunction as a plain key is a programmer error: KeyStore
// reserves that keyspace for its own identity-indirection bookkeeping (see
// RouteState / handler.go's resolveBinding), so Set panics on it.
type KeyStore struct {
	mu      sync.Mutex
	plain   map[any]any
	results map[*KeyFunction]any
	group   singleflight.Group
	raw     bool
}

// NewKeyStore builds a KeyStore pre-populated with items (typically the
// kwargs passed to Engine.Forward).
func NewKeyStore(items map[string]any) *KeyStore {
	ks := &KeyStore{
		plain:   make(map[any]any, len(items)),
		results: make(map[*KeyFunction]any),
	}
	for k, v := range items {
		ks.plain[k] = v
	}
	return ks
}

// NewUnmemoizedKeyStore returns a KeyStore that evaluates every KeyFunction
// directly on each call, without caching or in-flight sharing. It is meant
// for sub-traversals that should not pollute or read a parent traversal's
// scope — see SPEC_FULL.md's supplemented NoneKeyStore.
func NewUnmemoizedKeyStore() *KeyStore {
	return &KeyStore{raw: true}
}

// Evaluate is the only way a KeyFunction's result enters the store. It
// evaluates kf at most once per traversal; if a second caller asks for the
// same kf while the first evaluation is still in flight, both converge on
// the same result.
func (ks *KeyStore) Evaluate(ctx context.Context, kf *KeyFunction, state *RouteState) (any, error) {
	name, _ := kf.Name()
	if name == "" {
		name = "anonymous"
	}

	if ks.raw {
		start := time.Now()
		v, err := kf.call(ctx, state)
		recordKeyFuncEvaluation(state, name, time.Since(start), err)
		return v, err
	}

	if v, ok := ks.completed(kf); ok {
		return v, nil
	}

	groupKey := strconv.FormatUint(kf.id, 10)
	start := time.Now()
	v, err, _ := ks.group.Do(groupKey, func() (interface{}, error) {
		// Re-check and store inside the shared call, so a caller arriving
		// just after a previous call finished sees its result instead of
		// running the body a second time.
		if v, ok := ks.completed(kf); ok {
			return v, nil
		}
		v, err := kf.call(ctx, state)
		if err == nil {
			ks.mu.Lock()
			ks.results[kf] = v
			ks.mu.Unlock()
		}
		return v, err
	})
	recordKeyFuncEvaluation(state, name, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if name, ok := kf.Name(); ok {
		// Publish an indirection pointer, not the value itself: a handler
		// parameter bound to this name dereferences it back through
		// completed() at resolution time (see handler.go resolveBinding).
		state.Set(name, kf)
	}
	return v, nil
}

// recordKeyFuncEvaluation surfaces a single KeyFunction evaluation to state's
// attached metrics and emitter, a no-op when state carries neither (the
// common case in this package's tests, which build a RouteState directly).
func recordKeyFuncEvaluation(state *RouteState, name string, latency time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if state.metrics != nil {
		state.metrics.RecordKeyFunctionLatency(name, latency, status)
	}
	state.emit(name, "keyfunc_evaluated", map[string]interface{}{
		"key_function": name,
		"duration_ms":  latency.Milliseconds(),
		"status":       status,
	})
}

func (ks *KeyStore) completed(kf *KeyFunction) (any, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	v, ok := ks.results[kf]
	return v, ok
}

// Get returns the value stored under key, or def if absent. key may be a
// *KeyFunction (looked up among completed evaluations) or any comparable
// plain key.
func (ks *KeyStore) Get(key any, def any) any {
	if v, ok := ks.Lookup(key); ok {
		return v
	}
	return def
}

// Lookup returns the value stored under key and whether it was present.
func (ks *KeyStore) Lookup(key any) (any, bool) {
	if kf, ok := key.(*KeyFunction); ok {
		return ks.completed(kf)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	v, ok := ks.plain[key]
	return v, ok
}

// Set writes a plain key directly into the store, bypassing key-function
// evaluation entirely. It panics if key is a *KeyFunction.
func (ks *KeyStore) Set(key any, value any) {
	if _, ok := key.(*KeyFunction); ok {
		panic("fluxroute: cannot use a *KeyFunction as a plain KeyStore key")
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.plain[key] = value
}

// Contains reports whether key has a value in the store.
func (ks *KeyStore) Contains(key any) bool {
	_, ok := ks.Lookup(key)
	return ok
}

// Items returns a copy of every plain key/value pair in the store.
// KeyFunction results are not included — they are addressed by identity,
// not enumerated.
func (ks *KeyStore) Items() map[any]any {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	out := make(map[any]any, len(ks.plain))
	for k, v := range ks.plain {
		out[k] = v
	}
	return out
}

// isHashable reports whether key can safely be used as a Go map key —
// the equivalent of Python's Hashable check, used by AddKey and by
// EqualNode on its key function's result. Non-comparable types (slices,
// maps, funcs) would panic on map insertion; those callers check up front
// so a bad key is a clean programmer error. Set does not call it.
func isHashable(key any) bool {
	if key == nil {
		return true
	}
	t := reflect.TypeOf(key)
	return t.Comparable()
}
