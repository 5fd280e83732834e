package identity

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a party or a resource. It is a 20-byte account
// address in the usual hex form.
type Address = common.Address

var zero Address

// Caller is the identity pair threaded through every operation.
// Sender is the immediate caller; Origin is the party the call is
// ultimately acting for. For a direct call the two are equal; a
// mediator substitutes itself as Sender and keeps the owner as Origin.
type Caller struct {
	Sender Address
	Origin Address
}

// Direct builds the caller pair for an unmediated call.
func Direct(a Address) Caller {
	return Caller{Sender: a, Origin: a}
}

func (c Caller) String() string {
	if c.Sender == c.Origin {
		return c.Sender.Hex()
	}
	return fmt.Sprintf("%s(for %s)", c.Sender.Hex(), c.Origin.Hex())
}

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrDuplicateCall    = errors.New("duplicate call")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyFinalized = errors.New("already finalized")
	ErrExecutionFailed  = errors.New("execution failed")
)

// IsOwner reports whether caller is the given owner. The zero address
// never owns anything.
func IsOwner(caller, owner Address) bool {
	return owner != zero && caller == owner
}

// IsSelf reports whether caller is the resource itself.
func IsSelf(caller, resource Address) bool {
	return resource != zero && caller == resource
}

// RequireOwner fails with ErrUnauthorized unless caller's sender is owner.
func RequireOwner(c Caller, owner Address) error {
	if !IsOwner(c.Sender, owner) {
		return fmt.Errorf("caller %s is not owner %s: %w", c.Sender.Hex(), owner.Hex(), ErrUnauthorized)
	}
	return nil
}

// RequireSelf fails with ErrUnauthorized unless caller's sender is the
// resource itself, i.e. the call arrived through the gate's self path.
func RequireSelf(c Caller, resource Address) error {
	if !IsSelf(c.Sender, resource) {
		return fmt.Errorf("caller %s is not resource %s: %w", c.Sender.Hex(), resource.Hex(), ErrUnauthorized)
	}
	return nil
}

// RequireThroughMediator fails with ErrUnauthorized unless the
// immediate caller is the configured mediator and the mediator attests
// the originating party is the configured owner.
func RequireThroughMediator(c Caller, mediator, owner Address) error {
	if mediator == zero || c.Sender != mediator {
		return fmt.Errorf("caller %s is not mediator %s: %w", c.Sender.Hex(), mediator.Hex(), ErrUnauthorized)
	}
	if !IsOwner(c.Origin, owner) {
		return fmt.Errorf("origin %s is not owner %s: %w", c.Origin.Hex(), owner.Hex(), ErrUnauthorized)
	}
	return nil
}

// ParseAddress parses a hex address, rejecting malformed input.
func ParseAddress(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return zero, fmt.Errorf("invalid address: %q", s)
	}
	return common.HexToAddress(s), nil
}
