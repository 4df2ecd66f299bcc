package trust

import (
	"crypto"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/sigstore/sigstore/pkg/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentuf/repocore/metadata"
)

type testKey struct {
	key    *metadata.Key
	signer signature.Signer
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer, err := signature.LoadSigner(priv, crypto.Hash(0))
	require.NoError(t, err)
	key, err := metadata.KeyFromPublicKey(pub)
	require.NoError(t, err)
	return testKey{key: key, signer: signer}
}

func rootWithThreshold(t *testing.T, threshold int, keys ...testKey) *metadata.Metadata[metadata.RootType] {
	t.Helper()
	root := metadata.Root(time.Now().Add(24 * time.Hour))
	root.Signed.Roles[metadata.ROOT].Threshold = threshold
	for _, k := range keys {
		require.NoError(t, root.Signed.AddKey(k.key, metadata.ROOT))
	}
	root.Signed.Roles[metadata.TIMESTAMP].Threshold = threshold
	for _, k := range keys {
		require.NoError(t, root.Signed.AddKey(k.key, metadata.TIMESTAMP))
	}
	return root
}

func signRoot(t *testing.T, root *metadata.Metadata[metadata.RootType], keys ...testKey) {
	t.Helper()
	for _, k := range keys {
		_, err := root.Sign(k.signer)
		require.NoError(t, err)
	}
}

func TestVerifyFingerprintsThreshold(t *testing.T) {
	k1, k2 := newTestKey(t), newTestKey(t)
	root := rootWithThreshold(t, 2, k1, k2)
	signRoot(t, root, k1, k2)
	data, err := root.ToBytes(false)
	require.NoError(t, err)

	e := NewEngine()
	trusted, err := e.VerifyFingerprints([]string{k1.key.ID(), k2.key.ID()}, 2, data)
	require.NoError(t, err)
	assert.Equal(t, int64(1), trusted.Unwrap().Version)
}

func TestVerifyFingerprintsInsufficientSignatures(t *testing.T) {
	k1, k2 := newTestKey(t), newTestKey(t)
	root := rootWithThreshold(t, 2, k1, k2)
	signRoot(t, root, k1)
	data, err := root.ToBytes(false)
	require.NoError(t, err)

	e := NewEngine()
	_, err = e.VerifyFingerprints([]string{k1.key.ID(), k2.key.ID()}, 2, data)
	assert.ErrorIs(t, err, metadata.ErrVerificationSignatures{})
}

func TestVerifyFingerprintsTrustOnFirstUse(t *testing.T) {
	k1 := newTestKey(t)
	root := rootWithThreshold(t, 1, k1)
	data, err := root.ToBytes(false)
	require.NoError(t, err)

	e := NewEngine()
	trusted, err := e.VerifyFingerprints(nil, 0, data)
	require.NoError(t, err)
	assert.Equal(t, metadata.ROOT, trusted.Unwrap().Type)
}

func TestVerifyRoleRejectsVersionRollback(t *testing.T) {
	k1 := newTestKey(t)
	root := rootWithThreshold(t, 1, k1)
	signRoot(t, root, k1)
	trustedRoot := newTrusted(root.Signed)

	ts := metadata.Timestamp(time.Now().Add(time.Hour))
	ts.Signed.Version = 3
	_, err := ts.Sign(k1.signer)
	require.NoError(t, err)
	data, err := ts.ToBytes(false)
	require.NoError(t, err)

	prior := int64(5)
	_, err = VerifyRole[metadata.TimestampType](trustedRoot, metadata.TIMESTAMP, &prior, nil, data)
	assert.ErrorIs(t, err, metadata.ErrVerificationVersion{})
}

func TestVerifyRoleRejectsExpired(t *testing.T) {
	k1 := newTestKey(t)
	root := rootWithThreshold(t, 1, k1)
	signRoot(t, root, k1)
	trustedRoot := newTrusted(root.Signed)

	ts := metadata.Timestamp(time.Now().Add(-time.Hour))
	_, err := ts.Sign(k1.signer)
	require.NoError(t, err)
	data, err := ts.ToBytes(false)
	require.NoError(t, err)

	now := time.Now()
	_, err = VerifyRole[metadata.TimestampType](trustedRoot, metadata.TIMESTAMP, nil, &now, data)
	assert.ErrorIs(t, err, metadata.ErrVerificationExpired{})
}

func TestVerifyRoleAccepts(t *testing.T) {
	k1 := newTestKey(t)
	root := rootWithThreshold(t, 1, k1)
	signRoot(t, root, k1)
	trustedRoot := newTrusted(root.Signed)

	ts := metadata.Timestamp(time.Now().Add(time.Hour))
	_, err := ts.Sign(k1.signer)
	require.NoError(t, err)
	data, err := ts.ToBytes(false)
	require.NoError(t, err)

	now := time.Now()
	trusted, err := VerifyRole[metadata.TimestampType](trustedRoot, metadata.TIMESTAMP, nil, &now, data)
	require.NoError(t, err)
	assert.Equal(t, int64(1), trusted.Unwrap().Version)
}

func TestVerifyRootSuccession(t *testing.T) {
	k1 := newTestKey(t)
	k2 := newTestKey(t)

	oldRoot := rootWithThreshold(t, 1, k1)
	signRoot(t, oldRoot, k1)
	trustedOld := newTrusted(oldRoot.Signed)

	newRoot := rootWithThreshold(t, 1, k2)
	newRoot.Signed.Version = 2
	signRoot(t, newRoot, k1, k2) // continuity (k1) + self-consistency (k2)
	data, err := newRoot.ToBytes(false)
	require.NoError(t, err)

	trusted, err := VerifyRootSuccession(trustedOld, data)
	require.NoError(t, err)
	assert.Equal(t, int64(2), trusted.Unwrap().Version)
}

func TestVerifyRootSuccessionRejectsWithoutOldThreshold(t *testing.T) {
	k1 := newTestKey(t)
	k2 := newTestKey(t)

	oldRoot := rootWithThreshold(t, 1, k1)
	signRoot(t, oldRoot, k1)
	trustedOld := newTrusted(oldRoot.Signed)

	newRoot := rootWithThreshold(t, 1, k2)
	newRoot.Signed.Version = 2
	signRoot(t, newRoot, k2) // missing continuity signature from k1
	data, err := newRoot.ToBytes(false)
	require.NoError(t, err)

	_, err = VerifyRootSuccession(trustedOld, data)
	assert.ErrorIs(t, err, metadata.ErrVerificationSignatures{})
}

func TestVerifyFileInfo(t *testing.T) {
	e := NewEngine()
	artifact := []byte("package-bytes")
	pf, err := (&metadata.PackageFiles{}).FromBytes("", artifact)
	require.NoError(t, err)
	expected := metadata.MetaFiles{Length: pf.Length, Hashes: pf.Hashes}
	assert.True(t, e.VerifyFileInfo(expected, artifact))
	assert.False(t, e.VerifyFileInfo(expected, []byte("tampered")))
}
