package gate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marplemr/wt-contracts/events"
	"github.com/marplemr/wt-contracts/identity"
	"github.com/marplemr/wt-contracts/ops"
	"github.com/marplemr/wt-contracts/registry"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	submitter = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	unit      = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

type recordSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordSink) Emit(ctx context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordSink) Close() error { return nil }

func (s *recordSink) ofType(t events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	gate      *Gate
	calls     *MemoryCallStore
	resources *registry.MemoryResourceStore
	sink      *recordSink
	booked    *int
}

func newFixture(t *testing.T, requireConfirmation bool) *fixture {
	t.Helper()
	ctx := context.Background()

	resources := registry.NewMemoryResourceStore()
	if err := resources.Put(ctx, registry.Record{
		Address:             unit,
		Owner:               owner,
		RequireConfirmation: requireConfirmation,
	}); err != nil {
		t.Fatalf("seed resource: %v", err)
	}

	booked := 0
	disp := ops.NewDispatcher()
	mustRegister(t, disp, "unit.book", func(ctx context.Context, call ops.CallContext) error {
		if err := identity.RequireSelf(call.Caller, call.Resource); err != nil {
			return err
		}
		booked++
		return nil
	})
	mustRegister(t, disp, "unit.fail", func(ctx context.Context, call ops.CallContext) error {
		if err := identity.RequireSelf(call.Caller, call.Resource); err != nil {
			return err
		}
		return errors.New("insufficient balance")
	})

	calls := NewMemoryCallStore()
	sink := &recordSink{}
	return &fixture{
		gate:      New(calls, resources, disp, sink, nil),
		calls:     calls,
		resources: resources,
		sink:      sink,
		booked:    &booked,
	}
}

func mustRegister(t *testing.T, d *ops.Dispatcher, method string, h ops.Handler) {
	t.Helper()
	if err := d.Register(method, h); err != nil {
		t.Fatalf("register %s: %v", method, err)
	}
}

func encodeOp(t *testing.T, method string, args map[string]any) []byte {
	t.Helper()
	encoded, err := ops.Encode(ops.Op{Target: unit, Method: method, Args: args})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return encoded
}

func TestSubmitInlineExecutes(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	encoded := encodeOp(t, "unit.book", map[string]any{"nights": 2})

	fp, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if *f.booked != 1 {
		t.Fatalf("wrapped operation ran %d times, want 1", *f.booked)
	}

	rec, err := f.gate.Status(ctx, fp)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !rec.Finalized || !rec.Succeeded || !rec.Approved {
		t.Fatalf("inline record = %+v, want approved+finalized+succeeded", rec)
	}
	if len(f.sink.ofType(events.TypeCallStarted)) != 1 || len(f.sink.ofType(events.TypeCallFinish)) != 1 {
		t.Fatalf("expected one CallStarted and one CallFinish, got %+v", f.sink.events)
	}
}

func TestSubmitDuplicateFingerprint(t *testing.T) {
	for _, requireConfirmation := range []bool{false, true} {
		name := "finalized_first"
		if requireConfirmation {
			name = "pending_first"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, requireConfirmation)
			ctx := context.Background()
			encoded := encodeOp(t, "unit.book", map[string]any{"nights": 2})

			if _, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, nil); err != nil {
				t.Fatalf("first Submit: %v", err)
			}
			_, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, nil)
			if !errors.Is(err, identity.ErrDuplicateCall) {
				t.Fatalf("expected ErrDuplicateCall, got %v", err)
			}
		})
	}
}

func TestSubmitDeferredLeavesPending(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	encoded := encodeOp(t, "unit.book", map[string]any{"nights": 2})

	fp, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, []byte("sealed"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if *f.booked != 0 {
		t.Fatal("wrapped operation ran before approval")
	}

	rec, err := f.gate.Status(ctx, fp)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rec.Approved || rec.Finalized {
		t.Fatalf("deferred record = %+v, want unapproved+unfinalized", rec)
	}
	if string(rec.Payload) != "sealed" {
		t.Fatalf("payload = %q, want stored untouched", rec.Payload)
	}
	if len(f.sink.ofType(events.TypeCallFinish)) != 0 {
		t.Fatal("CallFinish emitted by submit alone")
	}
}

func TestContinueByOwner(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	encoded := encodeOp(t, "unit.book", map[string]any{"nights": 2})

	fp, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := f.gate.Continue(ctx, identity.Direct(owner), unit, fp); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if *f.booked != 1 {
		t.Fatalf("wrapped operation ran %d times, want 1", *f.booked)
	}

	rec, _ := f.gate.Status(ctx, fp)
	if !rec.Approved || !rec.Finalized || !rec.Succeeded {
		t.Fatalf("continued record = %+v", rec)
	}
	if n := len(f.sink.ofType(events.TypeCallFinish)); n != 1 {
		t.Fatalf("CallFinish emitted %d times, want exactly once", n)
	}

	// Consumed fingerprint: neither continue nor resubmit may run it again.
	if err := f.gate.Continue(ctx, identity.Direct(owner), unit, fp); !errors.Is(err, identity.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if _, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, nil); !errors.Is(err, identity.ErrDuplicateCall) {
		t.Fatalf("expected ErrDuplicateCall, got %v", err)
	}
	if *f.booked != 1 {
		t.Fatalf("wrapped operation re-ran: %d", *f.booked)
	}
}

func TestContinueUnauthorized(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	encoded := encodeOp(t, "unit.book", nil)

	fp, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for _, caller := range []identity.Address{stranger, submitter, unit} {
		if err := f.gate.Continue(ctx, identity.Direct(caller), unit, fp); !errors.Is(err, identity.ErrUnauthorized) {
			t.Fatalf("Continue by %s: expected ErrUnauthorized, got %v", caller.Hex(), err)
		}
	}

	rec, _ := f.gate.Status(ctx, fp)
	if rec.Approved || rec.Finalized {
		t.Fatalf("record mutated by rejected continue: %+v", rec)
	}
	if *f.booked != 0 {
		t.Fatal("wrapped operation ran despite rejection")
	}
}

func TestContinueNotFound(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	err := f.gate.Continue(ctx, identity.Direct(owner), unit, common.HexToHash("0xdead"))
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// A fingerprint held by a different resource is not found either.
	encoded := encodeOp(t, "unit.book", nil)
	fp, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	otherResource := common.HexToAddress("0x00000000000000000000000000000000000000f2")
	if err := f.gate.Continue(ctx, identity.Direct(owner), otherResource, fp); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong resource, got %v", err)
	}
}

func TestInlineExecutionFailureConsumesFingerprint(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	encoded := encodeOp(t, "unit.fail", nil)

	fp, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, nil)
	if !errors.Is(err, identity.ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}

	rec, serr := f.gate.Status(ctx, fp)
	if serr != nil {
		t.Fatalf("Status: %v", serr)
	}
	if !rec.Finalized || rec.Succeeded {
		t.Fatalf("failed record = %+v, want finalized+not-succeeded", rec)
	}

	// Not retryable: the fingerprint is consumed.
	if _, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, nil); !errors.Is(err, identity.ErrDuplicateCall) {
		t.Fatalf("expected ErrDuplicateCall, got %v", err)
	}
}

func TestContinueExecutionFailureFinalizes(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	encoded := encodeOp(t, "unit.fail", nil)

	fp, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, encoded, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := f.gate.Continue(ctx, identity.Direct(owner), unit, fp); !errors.Is(err, identity.ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}

	rec, _ := f.gate.Status(ctx, fp)
	if !rec.Finalized || rec.Succeeded || !rec.Approved {
		t.Fatalf("record = %+v, want approved+finalized+failed", rec)
	}
	if err := f.gate.Continue(ctx, identity.Direct(owner), unit, fp); !errors.Is(err, identity.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestWrappedOpRejectsDirectCall(t *testing.T) {
	ctx := context.Background()

	disp := ops.NewDispatcher()
	mustRegister(t, disp, "unit.book", func(ctx context.Context, call ops.CallContext) error {
		return identity.RequireSelf(call.Caller, call.Resource)
	})
	encoded := encodeOp(t, "unit.book", nil)

	// Bypassing the gate fails even for the owner.
	err := disp.Execute(ctx, identity.Direct(owner), unit, encoded)
	if !errors.Is(err, identity.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for direct call, got %v", err)
	}
}

func TestSubmitUnknownResource(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	encoded, _ := ops.Encode(ops.Op{Target: unknown, Method: "unit.book"})

	if _, err := f.gate.Submit(ctx, identity.Direct(submitter), unknown, encoded, nil); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPendingListing(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first := encodeOp(t, "unit.book", map[string]any{"nights": 1})
	second := encodeOp(t, "unit.book", map[string]any{"nights": 2})
	fp1, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, first, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.gate.Submit(ctx, identity.Direct(submitter), unit, second, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	pending, err := f.gate.Pending(ctx, unit)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d records, want 2", len(pending))
	}

	if err := f.gate.Continue(ctx, identity.Direct(owner), unit, fp1); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	pending, _ = f.gate.Pending(ctx, unit)
	if len(pending) != 1 {
		t.Fatalf("pending after finalize = %d records, want 1", len(pending))
	}
}
