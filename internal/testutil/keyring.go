package testutil

import (
	"errors"
	"sync"

	"keysync/internal/domain"
)

// Keyring is an in-memory domain.KeyringStore with the same set-once nonce
// and atomic-credential semantics as the file-backed store.
type Keyring struct {
	mu sync.Mutex
	id domain.SyncIdentity
}

func (k *Keyring) DeviceNonce() (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.id.DeviceNonce, k.id.DeviceNonce != "", nil
}

func (k *Keyring) SetDeviceNonce(nonce string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.id.DeviceNonce == nonce {
		return nil
	}
	if k.id.DeviceNonce != "" {
		return errors.New("device nonce is already set")
	}
	k.id.DeviceNonce = nonce
	return nil
}

func (k *Keyring) DeviceID() (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.id.DeviceID, k.id.DeviceID != "", nil
}

func (k *Keyring) SetDeviceID(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.id.DeviceID = id
	return nil
}

func (k *Keyring) Keypair() (domain.Ed25519Public, domain.Ed25519Private, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.id.SignPub, k.id.SignPriv, k.id.HasKeypair, nil
}

func (k *Keyring) SetKeypair(pub domain.Ed25519Public, priv domain.Ed25519Private) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.id.SignPub = pub
	k.id.SignPriv = priv
	k.id.HasKeypair = true
	return nil
}

func (k *Keyring) RootKey() ([]byte, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.id.RootKey) == 0 {
		return nil, false, nil
	}
	return append([]byte(nil), k.id.RootKey...), true, nil
}

func (k *Keyring) KeyVersion() (int, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.id.KeyVersion, k.id.KeyVersion > 0, nil
}

func (k *Keyring) ClearRootKey() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.id.RootKey = nil
	k.id.KeyVersion = 0
	return nil
}

func (k *Keyring) SetE2EECredentials(rootKey []byte, keyVersion int, pub *domain.Ed25519Public, priv *domain.Ed25519Private) error {
	if len(rootKey) == 0 || keyVersion < 1 {
		return errors.New("credentials require a root key and a positive key version")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.id.RootKey = append([]byte(nil), rootKey...)
	k.id.KeyVersion = keyVersion
	if pub != nil && priv != nil {
		k.id.SignPub = *pub
		k.id.SignPriv = *priv
		k.id.HasKeypair = true
	}
	return nil
}

func (k *Keyring) ClearAll() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.id = domain.SyncIdentity{}
	return nil
}

var _ domain.KeyringStore = (*Keyring)(nil)
