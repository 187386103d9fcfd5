package fluxroute

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errType = reflect.TypeOf((*error)(nil)).Elem()
var keyStoreType = reflect.TypeOf((*KeyStore)(nil))

// keywordBind is one (param name, lookup key) pair from a handler's
// signature, resolved by struct-tag alias if present. It is the Go
// equivalent of wrap_function's (param.name, alias-or-name) tuples.
type keywordBind struct {
	fieldIndex int
	paramName  string
	lookupKey  string
	optional   bool
}

// handlerDescriptor is computed once per TerminalNode at construction and
// reused on every Forward call, mirroring wrap_function's one-time
// inspect.signature pass.
//
// Go cannot recover a plain func's parameter names via reflect, so the
// binding surface is split in two: leading non-struct parameters bind
// positionally by count from RouteState.Args (only the count matters, not
// a name); a single trailing struct parameter's exported fields bind by
// name (optionally aliased with a `route:"other"` tag, the idiomatic
// stand-in for Alias's default-value mechanism, following the same
// convention as encoding/json tags).
type handlerDescriptor struct {
	fnType       reflect.Type
	fnValue      reflect.Value
	positional   int  // count of leading non-struct parameters
	bindStruct   bool // a trailing struct parameter carries keyword binds
	structIndex  int
	binds        []keywordBind
	storeIndex   int // index of a *KeyStore parameter, or -1
	takesCtx     bool
	ctxIndex     int
	returnsError bool
	returnsValue bool
}

func newHandlerDescriptor(fn any) (*handlerDescriptor, error) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, &BindingError{Detail: fmt.Sprintf("handler must be a function, got %T", fn)}
	}

	d := &handlerDescriptor{fnType: t, fnValue: v, storeIndex: -1, ctxIndex: -1}

	i := 0
	if t.NumIn() > 0 && t.In(0) == ctxType {
		d.takesCtx = true
		d.ctxIndex = 0
		i = 1
	}

	for ; i < t.NumIn(); i++ {
		p := t.In(i)
		switch {
		case p == keyStoreType:
			d.storeIndex = i
		case p.Kind() == reflect.Struct:
			if d.bindStruct {
				return nil, &BindingError{Detail: "handler may declare at most one trailing struct parameter"}
			}
			d.bindStruct = true
			d.structIndex = i
			for f := 0; f < p.NumField(); f++ {
				field := p.Field(f)
				if field.PkgPath != "" {
					continue // unexported field, not bindable
				}
				key := field.Name
				optional := false
				if tag, ok := field.Tag.Lookup("route"); ok && tag != "" && tag != "-" {
					parts := strings.Split(tag, ",")
					if parts[0] != "" {
						key = parts[0]
					}
					for _, opt := range parts[1:] {
						if opt == "optional" {
							optional = true
						}
					}
				}
				d.binds = append(d.binds, keywordBind{fieldIndex: f, paramName: field.Name, lookupKey: key, optional: optional})
			}
		default:
			if d.bindStruct {
				return nil, &BindingError{Detail: "positional parameters must precede the struct parameter"}
			}
			d.positional++
		}
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errType {
			d.returnsError = true
		} else {
			d.returnsValue = true
		}
	case 2:
		if t.Out(1) != errType {
			return nil, &BindingError{Detail: "handler's second return value must be error"}
		}
		d.returnsValue = true
		d.returnsError = true
	default:
		return nil, &BindingError{Detail: "handler may return at most (value, error)"}
	}

	return d, nil
}

// HandlerOption configures a TerminalNode at construction.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	priority      int
	countFinished bool
}

// WithPriority sets the priority this terminal's matches are submitted to
// the executor at. Smaller values run first; the default is 0.
func WithPriority(p int) HandlerOption {
	return func(c *handlerConfig) { c.priority = p }
}

// WithoutCountingFinished marks this terminal's completions as not
// contributing to any "handlers finished" counter the caller tracks
// alongside Engine.Forward's result stream.
func WithoutCountingFinished() HandlerOption {
	return func(c *handlerConfig) { c.countFinished = false }
}

// TerminalNode wraps a user handler function, its cached binding
// descriptor, and its executor submission settings.
type TerminalNode struct {
	predecessorSet
	descriptor    *handlerDescriptor
	original      any
	priority      int
	countFinished bool
}

// NewTerminalNode builds a TerminalNode around fn, inspecting its signature
// once. fn's shape determines how RouteState.Args and the traversal mapping
// are bound to its parameters at Forward time — see handlerDescriptor.
func NewTerminalNode(fn any, opts ...HandlerOption) (*TerminalNode, error) {
	d, err := newHandlerDescriptor(fn)
	if err != nil {
		return nil, err
	}
	cfg := handlerConfig{countFinished: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TerminalNode{
		descriptor:    d,
		original:      fn,
		priority:      cfg.priority,
		countFinished: cfg.countFinished,
	}, nil
}

// Priority is this terminal's executor submission priority.
func (t *TerminalNode) Priority() int { return t.priority }

// CountFinished reports whether this terminal's completions should count
// toward an enclosing "handlers finished" tally.
func (t *TerminalNode) CountFinished() bool { return t.countFinished }

// ID returns a stable-for-process-lifetime label identifying this terminal,
// used as the "node_id" label on handler-error metrics and emitted events.
func (t *TerminalNode) ID() string {
	return fmt.Sprintf("handler:%s@%p", t.descriptor.fnType, t)
}

func (t *TerminalNode) mergeIdentity() nodeIdentity {
	panic("fluxroute: TerminalNode does not participate in merge-union")
}

func (t *TerminalNode) Copy(nodeMap map[Node]Node) Node {
	cp := &TerminalNode{descriptor: t.descriptor, original: t.original, priority: t.priority, countFinished: t.countFinished}
	return cp
}

func (t *TerminalNode) DebugString(indent int) string {
	pad := make([]byte, indent)
	for i := range pad {
		pad[i] = ' '
	}
	return fmt.Sprintf("%s<TerminalNode %s>", string(pad), t.descriptor.fnType)
}

// Forward binds result.Mapping and state against the cached descriptor and
// invokes the wrapped handler, returning its value (if any) and error.
func (t *TerminalNode) Forward(ctx context.Context, state *RouteState, result *RouteResult) (any, error) {
	d := t.descriptor
	in := make([]reflect.Value, d.fnType.NumIn())

	if d.takesCtx {
		in[d.ctxIndex] = reflect.ValueOf(ctx)
	}

	// Bind positional-only parameters straight from state.Args, in order.
	// If the caller passed more args than this handler declares positional
	// slots for, the extra leading args are simply not bound (spec.md 4.3
	// step 1 — there is no variadic-positional case in the struct-binding
	// model, so "skip the first N" degenerates to "bind the last N slots").
	pIdx := 0
	if d.takesCtx {
		pIdx = 1
	}
	argIdx := 0
	if len(state.Args) > d.positional {
		argIdx = len(state.Args) - d.positional
	}
	for p := 0; p < d.positional; p++ {
		if argIdx >= len(state.Args) {
			return nil, &BindingError{Handler: d.fnType.String(), Detail: fmt.Sprintf("missing positional arg %d", p)}
		}
		in[pIdx] = reflect.ValueOf(state.Args[argIdx])
		argIdx++
		pIdx++
	}

	if d.storeIndex >= 0 {
		in[d.storeIndex] = reflect.ValueOf(state.Store)
	}

	if d.bindStruct {
		structType := d.fnType.In(d.structIndex)
		sv := reflect.New(structType).Elem()
		for _, b := range d.binds {
			val, found, err := resolveBinding(state, result.Mapping, b.lookupKey)
			if err != nil {
				return nil, &BindingError{Handler: d.fnType.String(), Detail: fmt.Sprintf("parameter %q: %v", b.paramName, err)}
			}
			if !found {
				if b.optional {
					continue
				}
				return nil, &BindingError{Handler: d.fnType.String(), Detail: fmt.Sprintf("parameter %q: no value bound under key %q", b.paramName, b.lookupKey)}
			}
			fv := sv.Field(b.fieldIndex)
			if val == nil {
				continue
			}
			rv := reflect.ValueOf(val)
			if !rv.Type().AssignableTo(fv.Type()) {
				return nil, &BindingError{Handler: d.fnType.String(), Detail: fmt.Sprintf("parameter %q: cannot assign %T to %s", b.paramName, val, fv.Type())}
			}
			fv.Set(rv)
		}
		in[d.structIndex] = sv
	}

	out := t.descriptor.fnValue.Call(in)
	return splitResults(out, d)
}

// resolveBinding implements spec.md section 4.3 step 2: look up key in
// mapping first — and if that yields a *KeyFunction (the indirection
// KeyStore.Evaluate publishes under a named key function, see
// keystore.go's Evaluate), dereference it through the store — else fall
// back to looking key up directly in the store.
func resolveBinding(state *RouteState, mapping map[string]any, key string) (any, bool, error) {
	if v, ok := mapping[key]; ok {
		if kf, ok := v.(*KeyFunction); ok {
			if resolved, ok := state.Store.Lookup(kf); ok {
				return resolved, true, nil
			}
			return nil, false, fmt.Errorf("key function %q referenced in mapping has no completed value", key)
		}
		return v, true, nil
	}
	if v, ok := state.Store.Lookup(key); ok {
		return v, true, nil
	}
	return nil, false, nil
}

func splitResults(out []reflect.Value, d *handlerDescriptor) (any, error) {
	var value any
	var err error
	idx := 0
	if d.returnsValue {
		value = out[idx].Interface()
		idx++
	}
	if d.returnsError {
		if e, ok := out[idx].Interface().(error); ok {
			err = e
		}
	}
	return value, err
}
