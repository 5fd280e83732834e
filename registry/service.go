package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marplemr/wt-contracts/events"
	"github.com/marplemr/wt-contracts/identity"
)

// Service enforces the ownership rules in front of the raw stores.
// Every mutation validates its guard immediately before touching state.
type Service struct {
	resources ResourceStore
	children  ChildStore
	sink      events.Sink
	log       *slog.Logger
}

func NewService(resources ResourceStore, children ChildStore, sink events.Sink, log *slog.Logger) *Service {
	if sink == nil {
		sink = events.NopSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{resources: resources, children: children, sink: sink, log: log}
}

// Register creates the resource record. The registering caller becomes
// the owner. The mediator may be set here (at creation) or later by
// the owner via SetMediator, but never changed once set.
func (s *Service) Register(ctx context.Context, caller identity.Caller, resource, mediator identity.Address) (Record, error) {
	rec := Record{
		Address:  resource,
		Owner:    caller.Sender,
		Mediator: mediator,
	}
	if err := s.resources.Put(ctx, rec); err != nil {
		return Record{}, err
	}
	s.log.InfoContext(ctx, "resource_registered",
		"resource", resource.Hex(), "owner", caller.Sender.Hex())
	return rec, nil
}

func (s *Service) Get(ctx context.Context, resource identity.Address) (Record, error) {
	return s.resources.Get(ctx, resource)
}

func (s *Service) List(ctx context.Context) ([]Record, error) {
	return s.resources.List(ctx)
}

// SetMediator installs the mediator for a resource. Owner-only, and
// only while no mediator is configured.
func (s *Service) SetMediator(ctx context.Context, caller identity.Caller, resource, mediator identity.Address) error {
	rec, err := s.resources.Get(ctx, resource)
	if err != nil {
		return err
	}
	if err := identity.RequireOwner(caller, rec.Owner); err != nil {
		return err
	}
	if (rec.Mediator != identity.Address{}) {
		return ErrMediatorSet
	}
	rec.Mediator = mediator
	return s.resources.Update(ctx, rec)
}

// SetOwner transfers the resource to a new owner. Only the current
// owner may transfer, and never to the zero address.
func (s *Service) SetOwner(ctx context.Context, caller identity.Caller, resource, newOwner identity.Address) error {
	rec, err := s.resources.Get(ctx, resource)
	if err != nil {
		return err
	}
	if err := identity.RequireOwner(caller, rec.Owner); err != nil {
		return err
	}
	if (newOwner == identity.Address{}) {
		return fmt.Errorf("set owner: zero address")
	}
	rec.Owner = newOwner
	if err := s.resources.Update(ctx, rec); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "owner_transferred",
		"resource", resource.Hex(), "owner", newOwner.Hex())
	return nil
}

// Deregister removes the resource record. Owner-only. The pending-call
// audit trail is untouched; only the registry entry disappears.
func (s *Service) Deregister(ctx context.Context, caller identity.Caller, resource identity.Address) error {
	rec, err := s.resources.Get(ctx, resource)
	if err != nil {
		return err
	}
	if err := identity.RequireOwner(caller, rec.Owner); err != nil {
		return err
	}
	if err := s.resources.Delete(ctx, resource); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "resource_deregistered",
		"resource", resource.Hex(), "owner", caller.Sender.Hex())
	return nil
}

// SetConfirmationPolicy flips the per-resource confirmation flag.
// Owner-only.
func (s *Service) SetConfirmationPolicy(ctx context.Context, caller identity.Caller, resource identity.Address, require bool) error {
	rec, err := s.resources.Get(ctx, resource)
	if err != nil {
		return err
	}
	if err := identity.RequireOwner(caller, rec.Owner); err != nil {
		return err
	}
	rec.RequireConfirmation = require
	return s.resources.Update(ctx, rec)
}

// AddChild authorizes child to call parent-restricted operations.
// Owner-only; fails if already registered.
func (s *Service) AddChild(ctx context.Context, caller identity.Caller, parent, child identity.Address) error {
	rec, err := s.resources.Get(ctx, parent)
	if err != nil {
		return err
	}
	if err := identity.RequireOwner(caller, rec.Owner); err != nil {
		return err
	}
	if err := s.children.Add(ctx, parent, child); err != nil {
		return err
	}

	e := events.New(events.TypeChildAdded)
	e.Parent = parent.Hex()
	e.Child = child.Hex()
	if err := s.sink.Emit(ctx, e); err != nil {
		s.log.WarnContext(ctx, "event_emit_error", "type", string(e.Type), "error", err.Error())
	}
	return nil
}

// RemoveChild revokes the authorization. Owner-only; effective for the
// very next membership check.
func (s *Service) RemoveChild(ctx context.Context, caller identity.Caller, parent, child identity.Address) error {
	rec, err := s.resources.Get(ctx, parent)
	if err != nil {
		return err
	}
	if err := identity.RequireOwner(caller, rec.Owner); err != nil {
		return err
	}
	if err := s.children.Remove(ctx, parent, child); err != nil {
		return err
	}

	e := events.New(events.TypeChildRemoved)
	e.Parent = parent.Hex()
	e.Child = child.Hex()
	if err := s.sink.Emit(ctx, e); err != nil {
		s.log.WarnContext(ctx, "event_emit_error", "type", string(e.Type), "error", err.Error())
	}
	return nil
}

// Children lists the current authorized set.
func (s *Service) Children(ctx context.Context, parent identity.Address) ([]identity.Address, error) {
	return s.children.Children(ctx, parent)
}

// RequireChild is the guard for parent operations that only a
// registered child may invoke.
func (s *Service) RequireChild(ctx context.Context, parent identity.Address, caller identity.Caller) error {
	ok, err := s.children.IsChild(ctx, parent, caller.Sender)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("caller %s is not a child of %s: %w",
			caller.Sender.Hex(), parent.Hex(), identity.ErrUnauthorized)
	}
	return nil
}
