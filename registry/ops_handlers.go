package registry

import (
	"context"
	"fmt"

	"github.com/marplemr/wt-contracts/events"
	"github.com/marplemr/wt-contracts/identity"
	"github.com/marplemr/wt-contracts/ops"
)

// Built-in wrapped operations. They mutate registry state and only
// accept the two authorized routes: the gate's self path, or a relay
// through the resource's configured mediator. A direct call from
// anyone else, the owner included, fails with ErrUnauthorized.
const (
	MethodSetPolicy   = "registry.set_policy"
	MethodChildAdd    = "registry.child_add"
	MethodChildRemove = "registry.child_remove"
)

// BindOps registers the built-in methods on a dispatcher.
func (s *Service) BindOps(d *ops.Dispatcher) error {
	if err := d.Register(MethodSetPolicy, s.opSetPolicy); err != nil {
		return err
	}
	if err := d.Register(MethodChildAdd, s.opChildAdd); err != nil {
		return err
	}
	return d.Register(MethodChildRemove, s.opChildRemove)
}

func (s *Service) opSetPolicy(ctx context.Context, call ops.CallContext) error {
	rec, err := s.requireRoute(ctx, call)
	if err != nil {
		return err
	}
	require, err := boolArg(call.Args, "require_confirmation")
	if err != nil {
		return err
	}
	rec.RequireConfirmation = require
	return s.resources.Update(ctx, rec)
}

func (s *Service) opChildAdd(ctx context.Context, call ops.CallContext) error {
	if _, err := s.requireRoute(ctx, call); err != nil {
		return err
	}
	child, err := addressArg(call.Args, "child")
	if err != nil {
		return err
	}
	if err := s.children.Add(ctx, call.Resource, child); err != nil {
		return err
	}
	s.emitChild(ctx, events.TypeChildAdded, call.Resource, child)
	return nil
}

func (s *Service) opChildRemove(ctx context.Context, call ops.CallContext) error {
	if _, err := s.requireRoute(ctx, call); err != nil {
		return err
	}
	child, err := addressArg(call.Args, "child")
	if err != nil {
		return err
	}
	if err := s.children.Remove(ctx, call.Resource, child); err != nil {
		return err
	}
	s.emitChild(ctx, events.TypeChildRemoved, call.Resource, child)
	return nil
}

// requireRoute loads the resource record and verifies the call arrived
// through an authorized path: self (gate) or mediator relay.
func (s *Service) requireRoute(ctx context.Context, call ops.CallContext) (Record, error) {
	rec, err := s.resources.Get(ctx, call.Resource)
	if err != nil {
		return Record{}, err
	}
	if identity.RequireSelf(call.Caller, call.Resource) == nil {
		return rec, nil
	}
	if err := identity.RequireThroughMediator(call.Caller, rec.Mediator, rec.Owner); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Service) emitChild(ctx context.Context, t events.Type, parent, child identity.Address) {
	e := events.New(t)
	e.Parent = parent.Hex()
	e.Child = child.Hex()
	if err := s.sink.Emit(ctx, e); err != nil {
		s.log.WarnContext(ctx, "event_emit_error", "type", string(t), "error", err.Error())
	}
}

func boolArg(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, fmt.Errorf("missing arg %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("arg %q is not a bool", key)
	}
	return b, nil
}

func addressArg(args map[string]any, key string) (identity.Address, error) {
	v, ok := args[key]
	if !ok {
		return identity.Address{}, fmt.Errorf("missing arg %q", key)
	}
	str, ok := v.(string)
	if !ok {
		return identity.Address{}, fmt.Errorf("arg %q is not a string", key)
	}
	return identity.ParseAddress(str)
}
