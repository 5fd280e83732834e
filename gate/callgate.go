package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marplemr/wt-contracts/events"
	"github.com/marplemr/wt-contracts/identity"
	"github.com/marplemr/wt-contracts/ops"
	"github.com/marplemr/wt-contracts/registry"
)

// Gate is the deferred-execution state machine. Per fingerprint:
//
//	absent → pending (unapproved) → pending (approved) → finalized
//	absent → finalized                 (no confirmation required)
//
// There is no cancellation: a pending call the owner never approves
// stays pending indefinitely.
type Gate struct {
	calls     CallStore
	resources registry.ResourceStore
	exec      Executor
	sink      events.Sink
	log       *slog.Logger
}

func New(calls CallStore, resources registry.ResourceStore, exec Executor, sink events.Sink, log *slog.Logger) *Gate {
	if sink == nil {
		sink = events.NopSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gate{calls: calls, resources: resources, exec: exec, sink: sink, log: log}
}

// Submit records the encoded operation under its fingerprint and
// either executes it inline (resource requires no confirmation) or
// leaves it pending for a later Continue by the owner. The payload is
// stored untouched; it never contributes to the fingerprint.
//
// Resubmitting an existing fingerprint fails with ErrDuplicateCall,
// pending or finalized alike. When the inline execution of the wrapped
// operation fails, the record is still finalized with Succeeded=false
// and the returned error wraps identity.ErrExecutionFailed; the
// fingerprint is consumed either way.
func (g *Gate) Submit(ctx context.Context, caller identity.Caller, resource identity.Address, encoded, payload []byte) (common.Hash, error) {
	if len(encoded) == 0 {
		return common.Hash{}, fmt.Errorf("submit: empty encoded operation")
	}
	rec, err := g.resources.Get(ctx, resource)
	if err != nil {
		return common.Hash{}, err
	}

	fp := ops.Fingerprint(encoded)
	call := PendingCall{
		Fingerprint: fp,
		Resource:    resource,
		EncodedOp:   encoded,
		Payload:     payload,
		Submitter:   caller.Sender,
	}
	if err := g.calls.Create(ctx, call); err != nil {
		return common.Hash{}, err
	}

	g.emitStarted(ctx, call)
	g.log.InfoContext(ctx, "call_submitted",
		"resource", resource.Hex(),
		"submitter", caller.Sender.Hex(),
		"fingerprint", fp.Hex(),
		"requires_confirmation", rec.RequireConfirmation,
	)

	if rec.RequireConfirmation {
		return fp, nil
	}

	// Self path: the wrapped operation sees the resource itself as the
	// immediate caller and the submitter as the originator.
	if err := g.calls.Approve(ctx, fp); err != nil {
		return fp, err
	}
	return fp, g.finalize(ctx, call, g.execute(ctx, caller.Sender, call))
}

// Continue approves and executes a pending call. Only the owner of the
// resource that holds the record may continue it. The record is
// finalized exactly once, success or failure.
func (g *Gate) Continue(ctx context.Context, caller identity.Caller, resource identity.Address, fp common.Hash) error {
	call, ok, err := g.calls.Get(ctx, fp)
	if err != nil {
		return err
	}
	if !ok || call.Resource != resource {
		return fmt.Errorf("fingerprint %s: %w", fp.Hex(), identity.ErrNotFound)
	}
	if call.Finalized {
		return fmt.Errorf("fingerprint %s: %w", fp.Hex(), identity.ErrAlreadyFinalized)
	}

	rec, err := g.resources.Get(ctx, resource)
	if err != nil {
		return err
	}
	if err := identity.RequireOwner(caller, rec.Owner); err != nil {
		return err
	}

	if err := g.calls.Approve(ctx, fp); err != nil {
		return err
	}
	return g.finalize(ctx, call, g.execute(ctx, caller.Sender, call))
}

// Status returns the stored record for a fingerprint.
func (g *Gate) Status(ctx context.Context, fp common.Hash) (PendingCall, error) {
	call, ok, err := g.calls.Get(ctx, fp)
	if err != nil {
		return PendingCall{}, err
	}
	if !ok {
		return PendingCall{}, fmt.Errorf("fingerprint %s: %w", fp.Hex(), identity.ErrNotFound)
	}
	return call, nil
}

// Pending lists unfinalized records, optionally scoped to a resource
// (zero address means all).
func (g *Gate) Pending(ctx context.Context, resource identity.Address) ([]PendingCall, error) {
	return g.calls.ListPending(ctx, resource)
}

func (g *Gate) execute(ctx context.Context, origin identity.Address, call PendingCall) error {
	self := identity.Caller{Sender: call.Resource, Origin: origin}
	return g.exec.Execute(ctx, self, call.Resource, call.EncodedOp)
}

// finalize consumes the fingerprint regardless of the execution
// outcome: a failed wrapped operation is not retryable.
func (g *Gate) finalize(ctx context.Context, call PendingCall, execErr error) error {
	succeeded := execErr == nil
	if err := g.calls.Finalize(ctx, call.Fingerprint, succeeded); err != nil {
		return err
	}
	g.emitFinish(ctx, call, succeeded)
	g.log.InfoContext(ctx, "call_finalized",
		"resource", call.Resource.Hex(),
		"fingerprint", call.Fingerprint.Hex(),
		"succeeded", succeeded,
	)
	if execErr != nil {
		return fmt.Errorf("%w: %v", identity.ErrExecutionFailed, execErr)
	}
	return nil
}

func (g *Gate) emitStarted(ctx context.Context, call PendingCall) {
	e := events.New(events.TypeCallStarted)
	e.Resource = call.Resource.Hex()
	e.Submitter = call.Submitter.Hex()
	e.Fingerprint = call.Fingerprint.Hex()
	if err := g.sink.Emit(ctx, e); err != nil {
		g.log.WarnContext(ctx, "event_emit_error", "type", string(e.Type), "error", err.Error())
	}
}

func (g *Gate) emitFinish(ctx context.Context, call PendingCall, succeeded bool) {
	e := events.New(events.TypeCallFinish)
	e.Resource = call.Resource.Hex()
	e.Submitter = call.Submitter.Hex()
	e.Fingerprint = call.Fingerprint.Hex()
	e.Succeeded = &succeeded
	if err := g.sink.Emit(ctx, e); err != nil {
		g.log.WarnContext(ctx, "event_emit_error", "type", string(e.Type), "error", err.Error())
	}
}
