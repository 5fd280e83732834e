package ops

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/marplemr/wt-contracts/identity"
)

// CallContext carries the decoded operation to its handler.
type CallContext struct {
	Caller   identity.Caller
	Resource identity.Address
	Args     map[string]any
}

type Handler func(ctx context.Context, call CallContext) error

// Dispatcher routes encoded operations to registered method handlers.
// Authorization is the handler's job: a gated ("wrapped") method calls
// identity.RequireSelf so it only accepts the gate's self path, a
// mediated method calls identity.RequireThroughMediator.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(method string, h Handler) error {
	method = strings.TrimSpace(method)
	if method == "" {
		return fmt.Errorf("register: missing method name")
	}
	if h == nil {
		return fmt.Errorf("register: nil handler for %q", method)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[method]; ok {
		return fmt.Errorf("register: method %q already registered", method)
	}
	d.handlers[method] = h
	return nil
}

// Execute decodes encoded and invokes the matching handler. The
// envelope's target must equal the resource the call is being applied
// to; a mismatch means the operation was submitted against the wrong
// gate and is rejected before any handler runs.
func (d *Dispatcher) Execute(ctx context.Context, caller identity.Caller, resource identity.Address, encoded []byte) error {
	op, err := Decode(encoded)
	if err != nil {
		return err
	}
	if op.Target != resource {
		return fmt.Errorf("execute: operation targets %s, not %s", op.Target.Hex(), resource.Hex())
	}

	d.mu.RLock()
	h, ok := d.handlers[op.Method]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("execute: unknown method %q", op.Method)
	}
	return h(ctx, CallContext{Caller: caller, Resource: resource, Args: op.Args})
}
