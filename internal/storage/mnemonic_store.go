package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	lvstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/internal/keyexec"
	"github.com/better-wallet/better-signer/pkg/types"
)

const mnemonicKeyPrefix = "mnemonic/"

// MnemonicStore keeps sealed device mnemonics in a local leveldb. Each value
// is sealed with the factor source id as associated data.
type MnemonicStore struct {
	db     *leveldb.DB
	sealer keyexec.SeedSealer
}

// OpenMnemonicStore opens (or creates) the store at path
func OpenMnemonicStore(path string, sealer keyexec.SeedSealer) (*MnemonicStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open mnemonic store: %w", err)
	}
	return &MnemonicStore{db: db, sealer: sealer}, nil
}

// NewMnemonicStore opens a store on an existing leveldb storage backend
func NewMnemonicStore(stor lvstorage.Storage, sealer keyexec.SeedSealer) (*MnemonicStore, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open mnemonic store: %w", err)
	}
	return &MnemonicStore{db: db, sealer: sealer}, nil
}

// Close closes the underlying database
func (s *MnemonicStore) Close() error {
	return s.db.Close()
}

func mnemonicKey(id types.FactorSourceID) []byte {
	return []byte(mnemonicKeyPrefix + id.String())
}

// Save seals and stores a mnemonic. The mnemonic must derive id.
func (s *MnemonicStore) Save(ctx context.Context, id types.FactorSourceID, m crypto.MnemonicWithPassphrase) error {
	derived, err := m.FactorSourceID(id.Kind)
	if err != nil {
		return fmt.Errorf("failed to derive factor source id: %w", err)
	}
	if derived != id {
		return fmt.Errorf("mnemonic derives %s, not %s", derived, id)
	}

	plaintext, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal mnemonic: %w", err)
	}
	defer zeroBytes(plaintext)

	sealed, err := s.sealer.Seal(ctx, plaintext, []byte(id.String()))
	if err != nil {
		return fmt.Errorf("failed to seal mnemonic: %w", err)
	}

	if err := s.db.Put(mnemonicKey(id), sealed, nil); err != nil {
		return fmt.Errorf("failed to put mnemonic: %w", err)
	}
	return nil
}

// Exists reports whether a mnemonic is stored for id
func (s *MnemonicStore) Exists(ctx context.Context, id types.FactorSourceID) (bool, error) {
	ok, err := s.db.Has(mnemonicKey(id), nil)
	if err != nil {
		return false, fmt.Errorf("failed to check mnemonic: %w", err)
	}
	return ok, nil
}

// Read opens the mnemonic stored for id
func (s *MnemonicStore) Read(ctx context.Context, id types.FactorSourceID) (crypto.MnemonicWithPassphrase, error) {
	sealed, err := s.db.Get(mnemonicKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return crypto.MnemonicWithPassphrase{}, fmt.Errorf("%s: %w", id, keyexec.ErrMnemonicNotFound)
	}
	if err != nil {
		return crypto.MnemonicWithPassphrase{}, fmt.Errorf("failed to get mnemonic: %w", err)
	}

	plaintext, err := s.sealer.Open(ctx, sealed, []byte(id.String()))
	if err != nil {
		return crypto.MnemonicWithPassphrase{}, fmt.Errorf("failed to open sealed mnemonic: %w", err)
	}
	defer zeroBytes(plaintext)

	var m crypto.MnemonicWithPassphrase
	if err := json.Unmarshal(plaintext, &m); err != nil {
		return crypto.MnemonicWithPassphrase{}, fmt.Errorf("failed to unmarshal mnemonic: %w", err)
	}
	return m, nil
}

// Delete removes the mnemonic stored for id. Deleting a missing id is not an error.
func (s *MnemonicStore) Delete(ctx context.Context, id types.FactorSourceID) error {
	if err := s.db.Delete(mnemonicKey(id), nil); err != nil {
		return fmt.Errorf("failed to delete mnemonic: %w", err)
	}
	return nil
}

// List returns the ids of every stored mnemonic
func (s *MnemonicStore) List(ctx context.Context) ([]types.FactorSourceID, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(mnemonicKeyPrefix)), nil)
	defer iter.Release()

	var ids []types.FactorSourceID
	for iter.Next() {
		id, err := types.ParseFactorSourceID(strings.TrimPrefix(string(iter.Key()), mnemonicKeyPrefix))
		if err != nil {
			return nil, fmt.Errorf("corrupt mnemonic key %q: %w", iter.Key(), err)
		}
		ids = append(ids, id)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate mnemonics: %w", err)
	}
	return ids, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var _ keyexec.MnemonicStore = (*MnemonicStore)(nil)
