package pairing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"keysync/internal/crypto"
	"keysync/internal/domain"
	"keysync/internal/testutil"
)

// fakeClock is a hand-advanced clock shared by both ends of a test pairing.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func issuerKeyring(t *testing.T, keyVersion int) (*testutil.Keyring, []byte, domain.Ed25519Public) {
	t.Helper()
	kr := &testutil.Keyring{}
	require.NoError(t, kr.SetDeviceID("device-a"))
	pub, priv, err := crypto.GenerateSigning()
	require.NoError(t, err)
	require.NoError(t, kr.SetKeypair(pub, priv))
	rootKey, err := crypto.GenerateRootKey()
	require.NoError(t, err)
	require.NoError(t, kr.SetE2EECredentials(rootKey, keyVersion, nil, nil))
	return kr, rootKey, pub
}

// mailbox is the scripted server state shared between the two fake transports.
type mailbox struct {
	codeHash      string
	issuerEph     domain.X25519Public
	claimerEph    *domain.X25519Public
	claimerDevice string
	messages      []domain.PairingMessage
	status        domain.PairingStatus
	expiresAt     time.Time
	keyVersion    int
	requireSAS    bool
}

func scriptedTransports(t *testing.T, box *mailbox) (issuerTr, claimerTr *testutil.Transport) {
	t.Helper()
	issuerTr = &testutil.Transport{
		CreatePairingFn: func(ctx context.Context, deviceID, codeHash string, ephPub domain.X25519Public) (domain.PairingCreated, error) {
			box.codeHash = codeHash
			box.issuerEph = ephPub
			box.status = domain.PairingOpen
			return domain.PairingCreated{
				PairingID:  "pairing-1",
				ExpiresAt:  box.expiresAt,
				KeyVersion: box.keyVersion,
				RequireSAS: box.requireSAS,
			}, nil
		},
		GetPairingFn: func(ctx context.Context, pairingID string) (domain.PairingInfo, error) {
			return domain.PairingInfo{
				Status:          box.status,
				ClaimerDeviceID: box.claimerDevice,
				ClaimerEphPub:   box.claimerEph,
			}, nil
		},
		ApprovePairingFn: func(ctx context.Context, pairingID string) error {
			box.status = domain.PairingApproved
			return nil
		},
		CompletePairingFn: func(ctx context.Context, pairingID string, msg domain.PairingMessage) error {
			box.messages = append(box.messages, msg)
			box.status = domain.PairingCompleted
			return nil
		},
		CancelPairingFn: func(ctx context.Context, pairingID string) error {
			box.status = domain.PairingCancelled
			return nil
		},
	}
	claimerTr = &testutil.Transport{
		ClaimPairingFn: func(ctx context.Context, deviceID, code string, ephPub domain.X25519Public) (domain.ClaimResult, error) {
			require.Equal(t, box.codeHash, crypto.HashPairingCode(code))
			box.claimerEph = &ephPub
			box.claimerDevice = deviceID
			box.status = domain.PairingClaimed
			return domain.ClaimResult{
				PairingID:    "pairing-1",
				IssuerEphPub: box.issuerEph,
				KeyVersion:   box.keyVersion,
				RequireSAS:   box.requireSAS,
				ExpiresAt:    box.expiresAt,
			}, nil
		},
		GetPairingMessagesFn: func(ctx context.Context, pairingID string) (domain.Mailbox, error) {
			return domain.Mailbox{Status: box.status, Messages: box.messages}, nil
		},
		ConfirmPairingFn: func(ctx context.Context, pairingID, proof string) (domain.ConfirmResult, error) {
			return domain.ConfirmResult{KeyVersion: box.keyVersion}, nil
		},
	}
	return issuerTr, claimerTr
}

func TestPairingHappyPath(t *testing.T) {
	clock := newFakeClock()
	box := &mailbox{expiresAt: clock.Now().Add(10 * time.Minute), keyVersion: 2, requireSAS: true}
	issuerTr, claimerTr := scriptedTransports(t, box)

	issuerKr, rootKey, issuerPub := issuerKeyring(t, 2)
	claimerKr := &testutil.Keyring{}
	require.NoError(t, claimerKr.SetDeviceID("device-b"))

	issuer := NewIssuer(issuerKr, issuerTr, clock.Now, nil)
	claimer := NewClaimer(claimerKr, claimerTr, clock.Now, nil)
	ctx := context.Background()

	session, err := issuer.CreateSession(ctx)
	require.NoError(t, err)
	require.Len(t, session.Code, crypto.PairingCodeLength)
	require.Equal(t, crypto.HashPairingCode(session.Code), box.codeHash,
		"the server must only ever see the code hash")

	// Nothing to poll yet.
	connected, err := issuer.PollClaimer(ctx, session)
	require.NoError(t, err)
	require.False(t, connected)
	_, err = issuer.VerificationCode(session)
	require.Equal(t, domain.KindNoClaim, domain.KindOf(err))

	claim, err := claimer.Claim(ctx, session.Code)
	require.NoError(t, err)
	require.True(t, claim.RequireSAS)

	connected, err = issuer.PollClaimer(ctx, session)
	require.NoError(t, err)
	require.True(t, connected)
	require.Equal(t, "device-b", session.ClaimerDeviceID)

	// Both ends must derive the identical session key and SAS.
	require.Equal(t, session.SessionKey, claim.SessionKey)
	issuerSAS, err := issuer.VerificationCode(session)
	require.NoError(t, err)
	claimerSAS, err := claimer.VerificationCode(claim)
	require.NoError(t, err)
	require.Equal(t, issuerSAS, claimerSAS)

	require.NoError(t, issuer.Approve(ctx, session))
	require.NoError(t, issuer.Complete(ctx, session))
	require.Equal(t, domain.PairingCompleted, session.Status)

	// The transferred message is sealed and its proof is signed.
	require.Len(t, box.messages, 1)
	msg := box.messages[0]
	require.True(t, crypto.Verify(issuerPub, []byte(msg.Proof), msg.Signature))
	require.NotContains(t, string(msg.Ciphertext), string(rootKey))

	bundle, err := claimer.PollKeyBundle(ctx, claim)
	require.NoError(t, err)
	require.NotNil(t, bundle)
	require.Equal(t, rootKey, bundle.RootKey)
	require.Equal(t, 2, bundle.KeyVersion)

	require.NoError(t, claimer.Confirm(ctx, claim, bundle))
	require.True(t, claim.Ended)

	gotKey, ok, err := claimerKr.RootKey()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rootKey, gotKey)
	v, _, err := claimerKr.KeyVersion()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestCreateSessionGuards(t *testing.T) {
	t.Run("no root key", func(t *testing.T) {
		kr := &testutil.Keyring{}
		require.NoError(t, kr.SetDeviceID("device-a"))
		_, err := NewIssuer(kr, &testutil.Transport{}, nil, nil).CreateSession(context.Background())
		require.Equal(t, domain.KindRootKeyNotFound, domain.KindOf(err))
	})

	t.Run("nil session operations", func(t *testing.T) {
		issuer := NewIssuer(&testutil.Keyring{}, &testutil.Transport{}, nil, nil)
		_, err := issuer.PollClaimer(context.Background(), nil)
		require.Equal(t, domain.KindNoSession, domain.KindOf(err))
		_, err = issuer.VerificationCode(nil)
		require.Equal(t, domain.KindNoSession, domain.KindOf(err))
	})
}

func TestIssuerExpiryBeforeComplete(t *testing.T) {
	clock := newFakeClock()
	box := &mailbox{expiresAt: clock.Now().Add(10 * time.Minute), keyVersion: 1}
	issuerTr, claimerTr := scriptedTransports(t, box)

	issuerKr, _, _ := issuerKeyring(t, 1)
	claimerKr := &testutil.Keyring{}
	require.NoError(t, claimerKr.SetDeviceID("device-b"))

	issuer := NewIssuer(issuerKr, issuerTr, clock.Now, nil)
	claimer := NewClaimer(claimerKr, claimerTr, clock.Now, nil)
	ctx := context.Background()

	session, err := issuer.CreateSession(ctx)
	require.NoError(t, err)
	_, err = claimer.Claim(ctx, session.Code)
	require.NoError(t, err)
	connected, err := issuer.PollClaimer(ctx, session)
	require.NoError(t, err)
	require.True(t, connected)

	clock.Advance(11 * time.Minute)

	err = issuer.Complete(ctx, session)
	require.Equal(t, domain.KindPairingExpired, domain.KindOf(err))
	require.Equal(t, domain.PairingExpired, session.Status)
	require.Empty(t, box.messages, "no key material may leave after expiry")
}

func TestClaimerExpiryBeforeConfirm(t *testing.T) {
	clock := newFakeClock()
	box := &mailbox{expiresAt: clock.Now().Add(10 * time.Minute), keyVersion: 1}
	issuerTr, claimerTr := scriptedTransports(t, box)

	issuerKr, _, _ := issuerKeyring(t, 1)
	claimerKr := &testutil.Keyring{}
	require.NoError(t, claimerKr.SetDeviceID("device-b"))

	issuer := NewIssuer(issuerKr, issuerTr, clock.Now, nil)
	claimer := NewClaimer(claimerKr, claimerTr, clock.Now, nil)
	ctx := context.Background()

	session, err := issuer.CreateSession(ctx)
	require.NoError(t, err)
	claim, err := claimer.Claim(ctx, session.Code)
	require.NoError(t, err)
	_, err = issuer.PollClaimer(ctx, session)
	require.NoError(t, err)
	require.NoError(t, issuer.Complete(ctx, session))
	bundle, err := claimer.PollKeyBundle(ctx, claim)
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)

	err = claimer.Confirm(ctx, claim, bundle)
	require.Equal(t, domain.KindPairingExpired, domain.KindOf(err))
	require.True(t, claim.Ended)

	_, ok, err := claimerKr.RootKey()
	require.NoError(t, err)
	require.False(t, ok, "expired claims must not persist credentials")
}

func TestPollKeyBundleDistinguishesNotYetFromInvalid(t *testing.T) {
	clock := newFakeClock()
	box := &mailbox{expiresAt: clock.Now().Add(10 * time.Minute), keyVersion: 1}
	issuerTr, claimerTr := scriptedTransports(t, box)

	issuerKr, _, _ := issuerKeyring(t, 1)
	claimerKr := &testutil.Keyring{}
	require.NoError(t, claimerKr.SetDeviceID("device-b"))

	issuer := NewIssuer(issuerKr, issuerTr, clock.Now, nil)
	claimer := NewClaimer(claimerKr, claimerTr, clock.Now, nil)
	ctx := context.Background()

	session, err := issuer.CreateSession(ctx)
	require.NoError(t, err)
	claim, err := claimer.Claim(ctx, session.Code)
	require.NoError(t, err)

	// Empty mailbox: not yet, not an error.
	bundle, err := claimer.PollKeyBundle(ctx, claim)
	require.NoError(t, err)
	require.Nil(t, bundle)

	_, err = issuer.PollClaimer(ctx, session)
	require.NoError(t, err)
	require.NoError(t, issuer.Complete(ctx, session))

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := box.messages[0]
		tampered.Ciphertext = append([]byte(nil), tampered.Ciphertext...)
		tampered.Ciphertext[len(tampered.Ciphertext)-1] ^= 0xff
		saved := box.messages
		box.messages = []domain.PairingMessage{tampered}
		defer func() { box.messages = saved }()

		_, err := claimer.PollKeyBundle(ctx, claim)
		require.Equal(t, domain.KindInvalidSession, domain.KindOf(err))
	})

	t.Run("proof bound to another session", func(t *testing.T) {
		forged := box.messages[0]
		forged.Proof = crypto.CompletionProof(claim.SessionKey, "pairing-other", 1)
		saved := box.messages
		box.messages = []domain.PairingMessage{forged}
		defer func() { box.messages = saved }()

		_, err := claimer.PollKeyBundle(ctx, claim)
		require.Equal(t, domain.KindInvalidSession, domain.KindOf(err))
	})

	t.Run("intact bundle still accepted", func(t *testing.T) {
		bundle, err := claimer.PollKeyBundle(ctx, claim)
		require.NoError(t, err)
		require.NotNil(t, bundle)
	})
}

func TestConfirmEpochMismatch(t *testing.T) {
	clock := newFakeClock()
	box := &mailbox{expiresAt: clock.Now().Add(10 * time.Minute), keyVersion: 1}
	issuerTr, claimerTr := scriptedTransports(t, box)
	claimerTr.ConfirmPairingFn = func(ctx context.Context, pairingID, proof string) (domain.ConfirmResult, error) {
		// The epoch moved underneath the pairing.
		return domain.ConfirmResult{KeyVersion: 2}, nil
	}

	issuerKr, _, _ := issuerKeyring(t, 1)
	claimerKr := &testutil.Keyring{}
	require.NoError(t, claimerKr.SetDeviceID("device-b"))

	issuer := NewIssuer(issuerKr, issuerTr, clock.Now, nil)
	claimer := NewClaimer(claimerKr, claimerTr, clock.Now, nil)
	ctx := context.Background()

	session, err := issuer.CreateSession(ctx)
	require.NoError(t, err)
	claim, err := claimer.Claim(ctx, session.Code)
	require.NoError(t, err)
	_, err = issuer.PollClaimer(ctx, session)
	require.NoError(t, err)
	require.NoError(t, issuer.Complete(ctx, session))
	bundle, err := claimer.PollKeyBundle(ctx, claim)
	require.NoError(t, err)

	err = claimer.Confirm(ctx, claim, bundle)
	require.Equal(t, domain.KindKeyVersionMismatch, domain.KindOf(err))

	_, ok, err := claimerKr.RootKey()
	require.NoError(t, err)
	require.False(t, ok, "mismatched epochs must not persist credentials")
}

func TestIssuerCancel(t *testing.T) {
	clock := newFakeClock()
	box := &mailbox{expiresAt: clock.Now().Add(10 * time.Minute), keyVersion: 1}
	issuerTr, claimerTr := scriptedTransports(t, box)

	issuerKr, _, _ := issuerKeyring(t, 1)
	claimerKr := &testutil.Keyring{}
	require.NoError(t, claimerKr.SetDeviceID("device-b"))

	issuer := NewIssuer(issuerKr, issuerTr, clock.Now, nil)
	claimer := NewClaimer(claimerKr, claimerTr, clock.Now, nil)
	ctx := context.Background()

	session, err := issuer.CreateSession(ctx)
	require.NoError(t, err)
	claim, err := claimer.Claim(ctx, session.Code)
	require.NoError(t, err)
	_, err = issuer.PollClaimer(ctx, session)
	require.NoError(t, err)

	issuer.Cancel(ctx, session)
	require.Equal(t, domain.PairingCancelled, session.Status)
	require.Nil(t, session.SessionKey, "cancel must wipe the session key")

	_, err = issuer.PollClaimer(ctx, session)
	require.Equal(t, domain.KindPairingEnded, domain.KindOf(err))

	// The claimer observes the cancellation, not a hang.
	_, err = claimer.PollKeyBundle(ctx, claim)
	require.Equal(t, domain.KindPairingEnded, domain.KindOf(err))
	require.True(t, claim.Ended)
}
