// Package proxy implements the ownership-mediated call relay: a
// protected resource only accepts mutating operations that arrive
// through its configured mediator, and the mediator only relays for
// the resource's registered owner.
package proxy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marplemr/wt-contracts/gate"
	"github.com/marplemr/wt-contracts/identity"
	"github.com/marplemr/wt-contracts/registry"
)

// Proxy is one mediator ("index"). Several resources may share it.
type Proxy struct {
	addr      identity.Address
	resources registry.ResourceStore
	exec      gate.Executor
	log       *slog.Logger
}

func New(addr identity.Address, resources registry.ResourceStore, exec gate.Executor, log *slog.Logger) *Proxy {
	if log == nil {
		log = slog.Default()
	}
	return &Proxy{addr: addr, resources: resources, exec: exec, log: log}
}

// Address returns the mediator's own identity.
func (p *Proxy) Address() identity.Address {
	return p.addr
}

// Relay applies the encoded operation to the resource on behalf of the
// calling owner. Preconditions: this proxy is the resource's
// configured mediator, and the caller is the resource's registered
// owner. Any guard failure aborts with ErrUnauthorized and no state
// change; the relayed call carries the mediator as the immediate
// sender and the owner as the origin, which the resource's own
// mediator guard verifies.
func (p *Proxy) Relay(ctx context.Context, caller identity.Caller, resource identity.Address, encoded []byte) error {
	if p == nil {
		return fmt.Errorf("nil proxy")
	}
	rec, err := p.resources.Get(ctx, resource)
	if err != nil {
		return err
	}
	if rec.Mediator != p.addr {
		return fmt.Errorf("proxy %s is not mediator for %s: %w",
			p.addr.Hex(), resource.Hex(), identity.ErrUnauthorized)
	}
	if err := identity.RequireOwner(caller, rec.Owner); err != nil {
		return err
	}

	relayed := identity.Caller{Sender: p.addr, Origin: caller.Sender}
	if err := p.exec.Execute(ctx, relayed, resource, encoded); err != nil {
		return err
	}
	p.log.InfoContext(ctx, "call_relayed",
		"mediator", p.addr.Hex(),
		"resource", resource.Hex(),
		"owner", caller.Sender.Hex(),
	)
	return nil
}
