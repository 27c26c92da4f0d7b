package enroll

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"keysync/internal/domain"
	"keysync/internal/services/state"
	"keysync/internal/testutil"
)

func newService(kr *testutil.Keyring, tr *testutil.Transport) *Service {
	return New(kr, tr, state.New(kr, tr), "laptop", "linux", nil)
}

func TestEnableBootstrap(t *testing.T) {
	kr := &testutil.Keyring{}
	var gotNonce string
	var gotPub domain.Ed25519Public
	tr := &testutil.Transport{
		RegisterDeviceFn: func(ctx context.Context, name, platform, nonce string, signPub domain.Ed25519Public) (domain.RegisterResult, error) {
			gotNonce = nonce
			gotPub = signPub
			require.Equal(t, "laptop", name)
			require.Equal(t, "linux", platform)
			return domain.RegisterResult{Mode: domain.ModeBootstrap, DeviceID: "device-1", KeyVersion: 1}, nil
		},
	}

	res, err := newService(kr, tr).Enable(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.StateReady, res.State)
	require.Equal(t, domain.ModeBootstrap, res.Mode)
	require.Equal(t, "device-1", res.DeviceID)

	nonce, ok, err := kr.DeviceNonce()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, nonce, gotNonce, "the stored nonce must be the one registered")

	id, _, err := kr.DeviceID()
	require.NoError(t, err)
	require.Equal(t, "device-1", id)

	key, ok, err := kr.RootKey()
	require.NoError(t, err)
	require.True(t, ok, "bootstrap must mint a root key")
	require.Len(t, key, 32)

	v, _, err := kr.KeyVersion()
	require.NoError(t, err)
	require.Equal(t, 1, v)

	pub, _, hasKeypair, err := kr.Keypair()
	require.NoError(t, err)
	require.True(t, hasKeypair)
	require.Equal(t, pub, gotPub, "the registered public key must be the persisted one")
}

func TestEnablePairMode(t *testing.T) {
	kr := &testutil.Keyring{}
	peers := []domain.Device{{ID: "device-0", DisplayName: "desktop", TrustState: domain.TrustTrusted}}
	tr := &testutil.Transport{
		RegisterDeviceFn: func(ctx context.Context, name, platform, nonce string, signPub domain.Ed25519Public) (domain.RegisterResult, error) {
			return domain.RegisterResult{Mode: domain.ModePair, DeviceID: "device-2", KeyVersion: 1, TrustedDevices: peers}, nil
		},
	}

	res, err := newService(kr, tr).Enable(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.StateRegistered, res.State)
	require.Equal(t, peers, res.TrustedDevices)

	_, ok, err := kr.RootKey()
	require.NoError(t, err)
	require.False(t, ok, "pair mode must not invent key material")
}

func TestEnableIdempotentReentry(t *testing.T) {
	kr := &testutil.Keyring{}
	require.NoError(t, kr.SetDeviceNonce("existing-nonce"))
	tr := &testutil.Transport{
		RegisterDeviceFn: func(ctx context.Context, name, platform, nonce string, signPub domain.Ed25519Public) (domain.RegisterResult, error) {
			require.Equal(t, "existing-nonce", nonce)
			return domain.RegisterResult{Mode: domain.ModeReady, DeviceID: "device-1", KeyVersion: 1}, nil
		},
	}

	res, err := newService(kr, tr).Enable(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.StateReady, res.State)
	require.Equal(t, domain.ModeReady, res.Mode)
}

func TestEnableUnknownMode(t *testing.T) {
	tr := &testutil.Transport{
		RegisterDeviceFn: func(ctx context.Context, name, platform, nonce string, signPub domain.Ed25519Public) (domain.RegisterResult, error) {
			return domain.RegisterResult{Mode: "teleport", DeviceID: "device-1"}, nil
		},
	}
	_, err := newService(&testutil.Keyring{}, tr).Enable(context.Background())
	require.Error(t, err)
	require.Equal(t, domain.KindInitFailed, domain.KindOf(err))
}

func TestEnableConcurrentCollapses(t *testing.T) {
	kr := &testutil.Keyring{}
	var registrations atomic.Int32
	tr := &testutil.Transport{
		RegisterDeviceFn: func(ctx context.Context, name, platform, nonce string, signPub domain.Ed25519Public) (domain.RegisterResult, error) {
			registrations.Add(1)
			time.Sleep(20 * time.Millisecond)
			return domain.RegisterResult{Mode: domain.ModeBootstrap, DeviceID: "device-1", KeyVersion: 1}, nil
		},
	}
	svc := newService(kr, tr)

	const callers = 8
	results := make([]EnableResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Enable(context.Background())
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), registrations.Load(), "concurrent enables must share one registration")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "device-1", results[i].DeviceID)
		require.Equal(t, domain.StateReady, results[i].State)
	}
}

func TestReinitialize(t *testing.T) {
	t.Run("rejected unless orphaned", func(t *testing.T) {
		kr := &testutil.Keyring{}
		require.NoError(t, kr.SetDeviceNonce("n"))
		require.NoError(t, kr.SetDeviceID("device-1"))
		require.NoError(t, kr.SetE2EECredentials(make([]byte, 32), 1, nil, nil))
		tr := &testutil.Transport{
			GetDeviceFn: func(ctx context.Context, id string) (domain.Device, error) {
				return domain.Device{ID: id, TrustState: domain.TrustTrusted}, nil
			},
			TeamStatusFn: func(ctx context.Context) (domain.TeamInfo, error) {
				return domain.TeamInfo{Initialized: true, KeyVersion: 1, TrustedDevices: 1}, nil
			},
		}
		_, err := newService(kr, tr).Reinitialize(context.Background())
		require.Error(t, err)
		require.Equal(t, domain.KindKeysAlreadyInitialized, domain.KindOf(err))
	})

	t.Run("orphaned team restarts the epoch", func(t *testing.T) {
		kr := &testutil.Keyring{}
		require.NoError(t, kr.SetDeviceNonce("n"))
		require.NoError(t, kr.SetDeviceID("device-1"))
		var reinitialized bool
		tr := &testutil.Transport{
			GetDeviceFn: func(ctx context.Context, id string) (domain.Device, error) {
				return domain.Device{ID: id, TrustState: domain.TrustUntrusted}, nil
			},
			TeamStatusFn: func(ctx context.Context) (domain.TeamInfo, error) {
				return domain.TeamInfo{Initialized: true, KeyVersion: 3, TrustedDevices: 0}, nil
			},
			ReinitializeTeamFn: func(ctx context.Context) error {
				reinitialized = true
				return nil
			},
			RegisterDeviceFn: func(ctx context.Context, name, platform, nonce string, signPub domain.Ed25519Public) (domain.RegisterResult, error) {
				return domain.RegisterResult{Mode: domain.ModeBootstrap, DeviceID: "device-1", KeyVersion: 4}, nil
			},
		}

		res, err := newService(kr, tr).Reinitialize(context.Background())
		require.NoError(t, err)
		require.True(t, reinitialized)
		require.Equal(t, domain.StateReady, res.State)

		v, _, err := kr.KeyVersion()
		require.NoError(t, err)
		require.Equal(t, 4, v, "the restarted epoch must advance past the orphaned one")
	})
}

func TestResetTeamSync(t *testing.T) {
	t.Run("requires registration", func(t *testing.T) {
		_, err := newService(&testutil.Keyring{}, &testutil.Transport{}).ResetTeamSync(context.Background(), "lost device")
		require.Error(t, err)
		require.Equal(t, domain.KindInitFailed, domain.KindOf(err))
	})

	t.Run("requires a root key", func(t *testing.T) {
		kr := &testutil.Keyring{}
		require.NoError(t, kr.SetDeviceID("device-1"))
		_, err := newService(kr, &testutil.Transport{}).ResetTeamSync(context.Background(), "lost device")
		require.Error(t, err)
		require.Equal(t, domain.KindRootKeyNotFound, domain.KindOf(err))
	})

	t.Run("rotates the local root key", func(t *testing.T) {
		kr := &testutil.Keyring{}
		require.NoError(t, kr.SetDeviceID("device-1"))
		oldKey := make([]byte, 32)
		oldKey[0] = 0x42
		require.NoError(t, kr.SetE2EECredentials(oldKey, 1, nil, nil))

		tr := &testutil.Transport{
			ResetTeamSyncFn: func(ctx context.Context, deviceID, reason string) (domain.ResetResult, error) {
				require.Equal(t, "device-1", deviceID)
				require.Equal(t, "lost device", reason)
				return domain.ResetResult{KeyVersion: 2}, nil
			},
		}

		v, err := newService(kr, tr).ResetTeamSync(context.Background(), "lost device")
		require.NoError(t, err)
		require.Equal(t, 2, v)

		newKey, ok, err := kr.RootKey()
		require.NoError(t, err)
		require.True(t, ok)
		require.NotEqual(t, oldKey, newKey, "the old root key must not survive the reset")

		stored, _, err := kr.KeyVersion()
		require.NoError(t, err)
		require.Equal(t, 2, stored)
	})
}

func TestAcknowledgeRecovery(t *testing.T) {
	t.Run("rejected outside recovery", func(t *testing.T) {
		kr := &testutil.Keyring{}
		err := newService(kr, &testutil.Transport{}).AcknowledgeRecovery(context.Background())
		require.Error(t, err)
	})

	t.Run("wipes the identity", func(t *testing.T) {
		kr := &testutil.Keyring{}
		require.NoError(t, kr.SetDeviceNonce("n"))
		require.NoError(t, kr.SetDeviceID("device-1"))
		tr := &testutil.Transport{
			GetDeviceFn: func(ctx context.Context, id string) (domain.Device, error) {
				return domain.Device{}, domain.E(domain.KindDeviceNotFound, "no such device")
			},
		}
		require.NoError(t, newService(kr, tr).AcknowledgeRecovery(context.Background()))

		_, ok, err := kr.DeviceNonce()
		require.NoError(t, err)
		require.False(t, ok, "recovery acknowledgement must drop the nonce")
	})
}
