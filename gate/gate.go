// Package gate implements the confirmation-gated deferred call
// protocol. A caller submits an encoded operation plus an opaque
// payload; the gate records it under a content-derived fingerprint and
// either executes it inline or waits for the resource owner to approve
// it in a later transaction. Every record is kept forever as an audit
// trail; a consumed fingerprint can never be executed again.
package gate

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marplemr/wt-contracts/identity"
)

// PendingCall is the durable record of one submitted operation.
// Approved, Finalized and Succeeded only ever transition false→true.
type PendingCall struct {
	Fingerprint common.Hash
	Resource    identity.Address
	EncodedOp   []byte
	Payload     []byte
	Submitter   identity.Address

	Approved  bool
	Finalized bool
	Succeeded bool

	CreatedAt   time.Time
	FinalizedAt *time.Time
}

// CallStore persists pending-call records. Create fails with
// identity.ErrDuplicateCall when the fingerprint exists, pending or
// finalized. Approve and Finalize fail with ErrAlreadyFinalized when
// the record has been consumed; records are never deleted.
type CallStore interface {
	Create(ctx context.Context, rec PendingCall) error
	Get(ctx context.Context, fp common.Hash) (PendingCall, bool, error)
	Approve(ctx context.Context, fp common.Hash) error
	Finalize(ctx context.Context, fp common.Hash, succeeded bool) error
	ListPending(ctx context.Context, resource identity.Address) ([]PendingCall, error)
}

// Executor applies an encoded operation to a resource. The gate always
// invokes it with the resource itself as the immediate caller, so
// wrapped operations can require the self path.
type Executor interface {
	Execute(ctx context.Context, caller identity.Caller, resource identity.Address, encoded []byte) error
}
