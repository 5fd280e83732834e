package keydir

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/marplemr/wt-contracts/identity"
)

const keysFileVersion = 1

// FileDirectory is a flat-file Directory for local setups and tests.
type FileDirectory struct {
	path string

	mu sync.Mutex
}

type keysFile struct {
	Version int        `yaml:"version"`
	Keys    []keyEntry `yaml:"keys"`
}

type keyEntry struct {
	Address   string `yaml:"address"`
	PublicKey string `yaml:"public_key"` // hex
}

func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: strings.TrimSpace(path)}
}

func (d *FileDirectory) LookupPublicKey(ctx context.Context, id identity.Address) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("nil key directory")
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := d.loadLocked()
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(id.Hex())
	for _, e := range f.Keys {
		if strings.ToLower(strings.TrimSpace(e.Address)) == want {
			return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(e.PublicKey), "0x"))
		}
	}
	return nil, fmt.Errorf("%s: %w", id.Hex(), ErrKeyNotFound)
}

// Register stores (or replaces) the public key for an identity.
func (d *FileDirectory) Register(ctx context.Context, id identity.Address, pub []byte) error {
	if d == nil {
		return fmt.Errorf("nil key directory")
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if len(pub) == 0 {
		return fmt.Errorf("empty public key")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := d.loadLocked()
	if err != nil {
		return err
	}

	want := strings.ToLower(id.Hex())
	kept := f.Keys[:0]
	for _, e := range f.Keys {
		if strings.ToLower(strings.TrimSpace(e.Address)) != want {
			kept = append(kept, e)
		}
	}
	f.Keys = append(kept, keyEntry{
		Address:   id.Hex(),
		PublicKey: "0x" + hex.EncodeToString(pub),
	})
	sort.Slice(f.Keys, func(i, j int) bool { return f.Keys[i].Address < f.Keys[j].Address })
	return d.saveLocked(f)
}

func (d *FileDirectory) loadLocked() (keysFile, error) {
	var f keysFile
	b, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return keysFile{Version: keysFileVersion}, nil
	}
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("parse %s: %w", d.path, err)
	}
	if f.Version != keysFileVersion {
		return f, fmt.Errorf("unsupported keys file version %d", f.Version)
	}
	return f, nil
}

func (d *FileDirectory) saveLocked(f keysFile) error {
	f.Version = keysFileVersion
	b, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	dir := filepath.Dir(d.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, d.path)
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
