package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"keysync/internal/domain"
)

const (
	keyringFilename = "keyring.json.enc"

	// keyringSchema is the current identity record schema. Records written
	// by an unknown schema are rejected, forcing re-enrollment; they are
	// never migrated silently and never dropped silently.
	keyringSchema = 1
)

// FileKeyring keeps the sync identity in one encrypted record on disk.
// All mutations are read-modify-write; the process is the sole owner of the
// file, so last-writer-wins is acceptable.
type FileKeyring struct {
	dir        string
	passphrase string
	mu         sync.Mutex
}

// NewFileKeyring returns a FileKeyring rooted at dir, sealed with passphrase.
func NewFileKeyring(dir, passphrase string) *FileKeyring {
	return &FileKeyring{dir: dir, passphrase: passphrase}
}

func (s *FileKeyring) path() string { return filepath.Join(s.dir, keyringFilename) }

// load reads and decrypts the record. A missing file yields an empty record
// at the current schema.
func (s *FileKeyring) load() (domain.SyncIdentity, error) {
	b, err := readFile(s.path())
	if err != nil {
		return domain.SyncIdentity{}, err
	}
	if b == nil {
		return domain.SyncIdentity{Schema: keyringSchema}, nil
	}
	raw, err := openRecord(s.passphrase, b)
	if err != nil {
		return domain.SyncIdentity{}, err
	}
	var id domain.SyncIdentity
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.SyncIdentity{}, err
	}
	if id.Schema != keyringSchema {
		return domain.SyncIdentity{}, domain.E(domain.KindKeyringVersion,
			"keyring schema is not supported; re-enroll this device")
	}
	return id, nil
}

func (s *FileKeyring) save(id domain.SyncIdentity) error {
	id.Schema = keyringSchema
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	sealed, err := sealRecord(s.passphrase, raw)
	if err != nil {
		return err
	}
	return writeFile(s.path(), sealed, 0o600)
}

// DeviceNonce returns the install identifier, if set.
func (s *FileKeyring) DeviceNonce() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return "", false, err
	}
	return id.DeviceNonce, id.DeviceNonce != "", nil
}

// SetDeviceNonce sets the nonce exactly once. Re-setting the same value is a
// no-op; changing it requires a full wipe first.
func (s *FileKeyring) SetDeviceNonce(nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return err
	}
	if id.DeviceNonce == nonce {
		return nil
	}
	if id.DeviceNonce != "" {
		return errors.New("device nonce is already set")
	}
	id.DeviceNonce = nonce
	return s.save(id)
}

func (s *FileKeyring) DeviceID() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return "", false, err
	}
	return id.DeviceID, id.DeviceID != "", nil
}

func (s *FileKeyring) SetDeviceID(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return err
	}
	id.DeviceID = deviceID
	return s.save(id)
}

func (s *FileKeyring) Keypair() (domain.Ed25519Public, domain.Ed25519Private, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return domain.Ed25519Public{}, domain.Ed25519Private{}, false, err
	}
	return id.SignPub, id.SignPriv, id.HasKeypair, nil
}

func (s *FileKeyring) SetKeypair(pub domain.Ed25519Public, priv domain.Ed25519Private) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return err
	}
	id.SignPub = pub
	id.SignPriv = priv
	id.HasKeypair = true
	return s.save(id)
}

func (s *FileKeyring) RootKey() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return nil, false, err
	}
	if len(id.RootKey) == 0 {
		return nil, false, nil
	}
	return append([]byte(nil), id.RootKey...), true, nil
}

func (s *FileKeyring) KeyVersion() (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return 0, false, err
	}
	return id.KeyVersion, id.KeyVersion > 0, nil
}

// ClearRootKey drops the root key and key version but keeps the nonce,
// device id and keypair.
func (s *FileKeyring) ClearRootKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return err
	}
	id.RootKey = nil
	id.KeyVersion = 0
	return s.save(id)
}

// SetE2EECredentials persists root key, key version and (optionally) the
// device keypair in one write, so a crash can never leave a root key without
// its version.
func (s *FileKeyring) SetE2EECredentials(rootKey []byte, keyVersion int, pub *domain.Ed25519Public, priv *domain.Ed25519Private) error {
	if len(rootKey) == 0 || keyVersion < 1 {
		return errors.New("credentials require a root key and a positive key version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return err
	}
	id.RootKey = append([]byte(nil), rootKey...)
	id.KeyVersion = keyVersion
	if pub != nil && priv != nil {
		id.SignPub = *pub
		id.SignPriv = *priv
		id.HasKeypair = true
	}
	return s.save(id)
}

// ClearAll removes the record entirely. This is the only operation that
// discards the device nonce.
func (s *FileKeyring) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Compile-time assertion that FileKeyring implements domain.KeyringStore.
var _ domain.KeyringStore = (*FileKeyring)(nil)
