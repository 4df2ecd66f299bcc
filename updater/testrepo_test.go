package updater

import (
	"archive/tar"
	"bytes"
	"crypto"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sigstore/sigstore/pkg/signature"
	"github.com/stretchr/testify/require"

	"github.com/opentuf/repocore/cache"
	"github.com/opentuf/repocore/metadata"
	"github.com/opentuf/repocore/metadata/config"
	"github.com/opentuf/repocore/metadata/fetcher"
)

// testKey bundles a generated ed25519 keypair with its signer, mirroring
// the minimal key-generation helper the trust package's own tests use.
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

// testRepo is an in-memory repository, served over httptest, that a test
// can mutate (bump a role's version, rotate root, swap the index) between
// driver refresh calls.
type testRepo struct {
	t    *testing.T
	key  testKey
	docs map[string][]byte

	server *httptest.Server
}

func newTestRepo(t *testing.T, expiry time.Time) *testRepo {
	t.Helper()
	k := newTestKey(t)
	tr := &testRepo{t: t, key: k, docs: map[string][]byte{}}

	tr.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[1:]
		data, ok := tr.docs[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(tr.server.Close)

	root := metadata.Root(expiry)
	for _, role := range metadata.TOP_LEVEL_ROLE_NAMES {
		require.NoError(t, root.Signed.AddKey(k.key, role))
		root.Signed.Roles[role].Threshold = 1
	}
	tr.sign(root)
	tr.putRoot(1, root)

	mirrors := metadata.Mirrors(expiry)
	mirrors.Signed.Mirrors = []metadata.Mirror{{URLBase: tr.server.URL + "/", Content: metadata.MirrorFull}}
	tr.sign(mirrors)
	tr.put("mirrors.json", mirrors)

	index := tr.buildIndex(nil)
	tr.docs["index.tar"] = index

	snapshot := metadata.Snapshot(expiry)
	tr.fillSnapshotMeta(snapshot, root, mirrors, index)
	tr.sign(snapshot)
	tr.put("snapshot.json", snapshot)

	timestamp := metadata.Timestamp(expiry)
	tr.fillTimestampMeta(timestamp, snapshot)
	tr.sign(timestamp)
	tr.put("timestamp.json", timestamp)

	return tr
}

func (tr *testRepo) sign(m interface {
	Sign(signature.Signer) (*metadata.Signature, error)
}) {
	_, err := m.Sign(tr.key.signer)
	require.NoError(tr.t, err)
}

func (tr *testRepo) put(name string, meta interface{ ToBytes(bool) ([]byte, error) }) {
	data, err := meta.ToBytes(false)
	require.NoError(tr.t, err)
	tr.docs[name] = data
}

func (tr *testRepo) putRoot(version int64, root *metadata.Metadata[metadata.RootType]) {
	data, err := root.ToBytes(false)
	require.NoError(tr.t, err)
	tr.docs["root.json"] = data
	tr.docs[metadata.VersionedName(version, "root.json")] = data
}

func fileInfoOf(t *testing.T, data []byte) metadata.MetaFiles {
	t.Helper()
	pf, err := (&metadata.PackageFiles{}).FromBytes("", data)
	require.NoError(t, err)
	return metadata.MetaFiles{Length: pf.Length, Hashes: pf.Hashes}
}

func (tr *testRepo) fillSnapshotMeta(snapshot *metadata.Metadata[metadata.SnapshotType], root *metadata.Metadata[metadata.RootType], mirrors *metadata.Metadata[metadata.MirrorsType], indexData []byte) {
	rootData, err := root.ToBytes(false)
	require.NoError(tr.t, err)
	mirrorsData, err := mirrors.ToBytes(false)
	require.NoError(tr.t, err)
	snapshot.Signed.Meta["root.json"] = fileInfoOf(tr.t, rootData)
	snapshot.Signed.Meta["mirrors.json"] = fileInfoOf(tr.t, mirrorsData)
	snapshot.Signed.Meta[metadata.IndexFileName] = fileInfoOf(tr.t, indexData)
}

func (tr *testRepo) fillTimestampMeta(timestamp *metadata.Metadata[metadata.TimestampType], snapshot *metadata.Metadata[metadata.SnapshotType]) {
	data, err := snapshot.ToBytes(false)
	require.NoError(tr.t, err)
	timestamp.Signed.Meta["snapshot.json"] = fileInfoOf(tr.t, data)
}

// buildIndex packs packages (name -> content) into a tar archive using the
// same deterministic layout PackageDownloader expects.
func (tr *testRepo) buildIndex(packages map[string][]byte) []byte {
	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	for name, content := range packages {
		pf, err := (&metadata.PackageFiles{}).FromBytes("", content)
		require.NoError(tr.t, err)
		targetsDoc, err := json.Marshal(pf)
		require.NoError(tr.t, err)

		base := metadata.PathHexDigest(name)
		writeTarEntry(tr.t, w, base+"/targets.json", targetsDoc)
		writeTarEntry(tr.t, w, base+"/content", content)
	}
	require.NoError(tr.t, w.Close())
	return buf.Bytes()
}

func writeTarEntry(t *testing.T, w *tar.Writer, name string, data []byte) {
	t.Helper()
	require.NoError(t, w.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(data))}))
	_, err := w.Write(data)
	require.NoError(t, err)
}

// republishAfterIndexChange replaces the index with one built from packages,
// then re-signs and republishes snapshot and timestamp at the next version
// so the chain reflects the new index.
func (tr *testRepo) republishAfterIndexChange(expiry time.Time, packages map[string][]byte) {
	indexData := tr.buildIndex(packages)
	tr.docs["index.tar"] = indexData

	root := tr.mustDecodeRoot()
	mirrors := tr.mustDecodeMirrors()

	snapshot := metadata.Snapshot(expiry)
	snapshot.Signed.Version = tr.mustDecodeSnapshot().Signed.Version + 1
	tr.fillSnapshotMeta(snapshot, root, mirrors, indexData)
	tr.sign(snapshot)
	tr.put("snapshot.json", snapshot)

	timestamp := metadata.Timestamp(expiry)
	timestamp.Signed.Version = tr.mustDecodeTimestamp().Signed.Version + 1
	tr.fillTimestampMeta(timestamp, snapshot)
	tr.sign(timestamp)
	tr.put("timestamp.json", timestamp)
}

func (tr *testRepo) mustDecodeRoot() *metadata.Metadata[metadata.RootType] {
	m := &metadata.Metadata[metadata.RootType]{}
	_, err := m.FromBytes(tr.docs["root.json"])
	require.NoError(tr.t, err)
	return m
}

func (tr *testRepo) mustDecodeMirrors() *metadata.Metadata[metadata.MirrorsType] {
	m := &metadata.Metadata[metadata.MirrorsType]{}
	_, err := m.FromBytes(tr.docs["mirrors.json"])
	require.NoError(tr.t, err)
	return m
}

func (tr *testRepo) mustDecodeSnapshot() *metadata.Metadata[metadata.SnapshotType] {
	m := &metadata.Metadata[metadata.SnapshotType]{}
	_, err := m.FromBytes(tr.docs["snapshot.json"])
	require.NoError(tr.t, err)
	return m
}

func (tr *testRepo) mustDecodeTimestamp() *metadata.Metadata[metadata.TimestampType] {
	m := &metadata.Metadata[metadata.TimestampType]{}
	_, err := m.FromBytes(tr.docs["timestamp.json"])
	require.NoError(tr.t, err)
	return m
}

// rotateRoot publishes a new root version signed by both the old key
// (continuity) and a freshly generated key (self-consistency, and the new
// signing identity going forward), then republishes snapshot/timestamp so
// the chain reflects the new root's FileInfo. Returns the new key so a test
// can later prove refresh now trusts it.
func (tr *testRepo) rotateRoot(expiry time.Time) testKey {
	t := tr.t
	oldRoot := tr.mustDecodeRoot()
	newKey := newTestKey(t)

	newRoot := metadata.Root(expiry)
	newRoot.Signed.Version = oldRoot.Signed.Version + 1
	for _, role := range metadata.TOP_LEVEL_ROLE_NAMES {
		require.NoError(t, newRoot.Signed.AddKey(newKey.key, role))
		newRoot.Signed.Roles[role].Threshold = 1
	}
	_, err := newRoot.Sign(tr.key.signer) // continuity: old threshold
	require.NoError(t, err)
	_, err = newRoot.Sign(newKey.signer) // self-consistency: new threshold
	require.NoError(t, err)

	data, err := newRoot.ToBytes(false)
	require.NoError(t, err)
	tr.docs["root.json"] = data
	tr.docs[metadata.VersionedName(newRoot.Signed.Version, "root.json")] = data

	tr.key = newKey

	mirrors := tr.mustDecodeMirrors()
	tr.sign(mirrors)
	tr.put("mirrors.json", mirrors)

	snapshot := metadata.Snapshot(expiry)
	snapshot.Signed.Version = tr.mustDecodeSnapshot().Signed.Version + 1
	tr.fillSnapshotMeta(snapshot, newRoot, mirrors, tr.docs["index.tar"])
	tr.sign(snapshot)
	tr.put("snapshot.json", snapshot)

	timestamp := metadata.Timestamp(expiry)
	timestamp.Signed.Version = tr.mustDecodeTimestamp().Signed.Version + 1
	tr.fillTimestampMeta(timestamp, snapshot)
	tr.sign(timestamp)
	tr.put("timestamp.json", timestamp)

	return newKey
}

// newEmptyRepository returns a Repository over a fresh, empty cache
// pointed at tr's server, with no root committed yet.
func newEmptyRepository(t *testing.T, tr *testRepo, dir string) *Repository {
	t.Helper()
	store, err := cache.NewFlatFileCache(dir)
	require.NoError(t, err)
	return New(store, &fetcher.DefaultFetcher{}, tr.server.URL+"/", dir+"/index.tar", config.New())
}

// newBootstrappedRepository returns a Repository whose cache already holds
// tr's root, as if Bootstrap had just run, backed by a fresh FlatFileCache
// rooted at dir and an index cache file under dir/index.tar.
func newBootstrappedRepository(t *testing.T, tr *testRepo, dir string) *Repository {
	t.Helper()
	repo := newEmptyRepository(t, tr, dir)
	require.NoError(t, repo.putCached(metadata.ROOT, tr.docs["root.json"]))
	return repo
}
