package ops

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marplemr/wt-contracts/identity"
)

var (
	unit  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	other = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func TestEncodeDeterministic(t *testing.T) {
	a, err := Encode(Op{Target: unit, Method: "unit.book", Args: map[string]any{
		"from": "2026-09-01", "nights": 3, "unit": "101",
	}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := Encode(Op{Target: unit, Method: "unit.book", Args: map[string]any{
		"unit": "101", "nights": 3, "from": "2026-09-01",
	}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("same operation encoded differently:\n%s\n%s", a, b)
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("fingerprints differ for identical encodings")
	}
}

func TestEncodeDifferentArgsDifferentFingerprint(t *testing.T) {
	a, _ := Encode(Op{Target: unit, Method: "unit.book", Args: map[string]any{"nights": 3}})
	b, _ := Encode(Op{Target: unit, Method: "unit.book", Args: map[string]any{"nights": 4}})
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("materially different operations share a fingerprint")
	}
}

func TestEncodeRejectsMissingMethod(t *testing.T) {
	if _, err := Encode(Op{Target: unit, Method: "  "}); err == nil {
		t.Fatal("expected error for missing method")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	encoded, err := Encode(Op{Target: unit, Method: "unit.book", Args: map[string]any{"nights": 3}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	op, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if op.Target != unit || op.Method != "unit.book" {
		t.Fatalf("round trip mismatch: %+v", op)
	}
	if op.V != Version {
		t.Fatalf("version = %d, want %d", op.V, Version)
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		encoded string
	}{
		{"not_json", "not json"},
		{"wrong_version", `{"v":99,"target":"0x00000000000000000000000000000000000000f1","method":"x"}`},
		{"missing_method", `{"v":1,"target":"0x00000000000000000000000000000000000000f1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode([]byte(tc.encoded)); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestDispatcherExecute(t *testing.T) {
	d := NewDispatcher()
	var gotCall CallContext
	if err := d.Register("unit.book", func(ctx context.Context, call CallContext) error {
		gotCall = call
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	encoded, _ := Encode(Op{Target: unit, Method: "unit.book", Args: map[string]any{"nights": float64(3)}})
	caller := identity.Caller{Sender: unit, Origin: alice}
	if err := d.Execute(context.Background(), caller, unit, encoded); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotCall.Caller != caller || gotCall.Resource != unit {
		t.Fatalf("handler saw %+v", gotCall)
	}
	if gotCall.Args["nights"] != float64(3) {
		t.Fatalf("args not threaded: %+v", gotCall.Args)
	}
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := NewDispatcher()
	encoded, _ := Encode(Op{Target: unit, Method: "unit.book"})
	err := d.Execute(context.Background(), identity.Direct(alice), unit, encoded)
	if err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Fatalf("expected unknown method error, got %v", err)
	}
}

func TestDispatcherTargetMismatch(t *testing.T) {
	d := NewDispatcher()
	_ = d.Register("unit.book", func(ctx context.Context, call CallContext) error { return nil })
	encoded, _ := Encode(Op{Target: other, Method: "unit.book"})
	if err := d.Execute(context.Background(), identity.Direct(alice), unit, encoded); err == nil {
		t.Fatal("expected target mismatch error")
	}
}

func TestDispatcherDuplicateRegister(t *testing.T) {
	d := NewDispatcher()
	h := func(ctx context.Context, call CallContext) error { return nil }
	if err := d.Register("unit.book", h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Register("unit.book", h); err == nil {
		t.Fatal("expected duplicate register error")
	}
}

func TestHandlerErrorPropagates(t *testing.T) {
	d := NewDispatcher()
	want := errors.New("boom")
	_ = d.Register("unit.fail", func(ctx context.Context, call CallContext) error { return want })
	encoded, _ := Encode(Op{Target: unit, Method: "unit.fail"})
	if err := d.Execute(context.Background(), identity.Direct(alice), unit, encoded); !errors.Is(err, want) {
		t.Fatalf("expected handler error, got %v", err)
	}
}
