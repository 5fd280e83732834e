// Package ops defines the encoded-operation envelope and the method
// dispatcher that executes it against a resource.
package ops

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/marplemr/wt-contracts/identity"
)

// Version of the envelope encoding. The fingerprint of a call is
// derived from these bytes, so the encoding is a versioned contract:
// any change to field names, ordering or value normalization bumps it.
const Version = 1

// Op is the wrapped operation: "invoke Method on Target with Args".
type Op struct {
	V      int              `json:"v"`
	Target identity.Address `json:"target"`
	Method string           `json:"method"`
	Args   map[string]any   `json:"args,omitempty"`
}

// Encode produces the canonical byte form of op. Encoding the same
// logical operation always yields identical bytes: struct fields keep
// their declared order and map keys are sorted by encoding/json; Args
// values are normalized through a JSON round trip first so that e.g.
// int and float64 representations of the same number agree.
func Encode(op Op) ([]byte, error) {
	if strings.TrimSpace(op.Method) == "" {
		return nil, fmt.Errorf("encode: missing method")
	}
	op.V = Version
	if op.Args != nil {
		norm, err := normalizeArgs(op.Args)
		if err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
		op.Args = norm
	}
	return json.Marshal(op)
}

// Decode parses encoded bytes produced by Encode (or an equivalent
// producer). It rejects unknown envelope versions.
func Decode(encoded []byte) (Op, error) {
	var op Op
	if err := json.Unmarshal(encoded, &op); err != nil {
		return Op{}, fmt.Errorf("decode: %w", err)
	}
	if op.V != Version {
		return Op{}, fmt.Errorf("decode: unsupported envelope version %d", op.V)
	}
	if strings.TrimSpace(op.Method) == "" {
		return Op{}, fmt.Errorf("decode: missing method")
	}
	return op, nil
}

// Fingerprint is the keccak-256 digest of the encoded operation bytes,
// exactly as submitted. The opaque payload never contributes to it.
func Fingerprint(encoded []byte) common.Hash {
	return crypto.Keccak256Hash(encoded)
}

func normalizeArgs(args map[string]any) (map[string]any, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("cannot normalize args: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("cannot normalize args: %w", err)
	}
	return out, nil
}
