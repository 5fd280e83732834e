// Package registry keeps the bookkeeping state the call-mediation core
// depends on: which resources exist, who owns them, which mediator may
// relay to them, whether calls need owner confirmation, and which
// children a parent has authorized.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marplemr/wt-contracts/identity"
)

var (
	ErrResourceExists   = errors.New("resource already registered")
	ErrResourceNotFound = fmt.Errorf("resource: %w", identity.ErrNotFound)
	ErrChildRegistered  = errors.New("child already registered")
	ErrChildNotFound    = fmt.Errorf("child: %w", identity.ErrNotFound)
	ErrMediatorSet      = errors.New("mediator already set")
)

// Record is the per-resource ownership link and confirmation policy.
type Record struct {
	Address             identity.Address
	Owner               identity.Address
	Mediator            identity.Address
	RequireConfirmation bool
	CreatedAt           time.Time
}

// ResourceStore persists resource records. Implementations return
// ErrResourceNotFound for unknown addresses and ErrResourceExists on
// duplicate registration.
type ResourceStore interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, addr identity.Address) (Record, error)
	Update(ctx context.Context, rec Record) error
	Delete(ctx context.Context, addr identity.Address) error
	List(ctx context.Context) ([]Record, error)
}

// ChildStore persists parent→child authorization sets. Removal takes
// effect for the very next membership check.
type ChildStore interface {
	Add(ctx context.Context, parent, child identity.Address) error
	Remove(ctx context.Context, parent, child identity.Address) error
	IsChild(ctx context.Context, parent, child identity.Address) (bool, error)
	Children(ctx context.Context, parent identity.Address) ([]identity.Address, error)
}
