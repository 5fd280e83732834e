// Package keydir models the external key directory. The core never
// interprets the opaque payload attached to a submitted call; the
// resource owner fetches the submitter's public key here and performs
// decryption out of band before deciding to approve.
package keydir

import (
	"context"
	"fmt"

	"github.com/marplemr/wt-contracts/identity"
)

var ErrKeyNotFound = fmt.Errorf("public key: %w", identity.ErrNotFound)

// Directory resolves identities to registered public keys.
type Directory interface {
	LookupPublicKey(ctx context.Context, id identity.Address) ([]byte, error)
}

// Decrypter opens an opaque payload with a private key. Implementations
// live outside this module; the core only hands bytes across.
type Decrypter interface {
	Decrypt(payload, privateKey []byte) ([]byte, error)
}
