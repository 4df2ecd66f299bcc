package updater

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentuf/repocore/metadata"
)

func TestCheckForUpdatesFirstRunHasUpdates(t *testing.T) {
	tr := newTestRepo(t, time.Now().Add(24*time.Hour))
	repo := newBootstrappedRepository(t, tr, t.TempDir())
	driver := NewUpdateDriver(repo)

	now := time.Now()
	result, err := driver.CheckForUpdates(context.Background(), &now)
	require.NoError(t, err)
	assert.Equal(t, HasUpdates, result)
}

func TestCheckForUpdatesSecondRunNoUpdates(t *testing.T) {
	tr := newTestRepo(t, time.Now().Add(24*time.Hour))
	repo := newBootstrappedRepository(t, tr, t.TempDir())
	driver := NewUpdateDriver(repo)

	now := time.Now()
	_, err := driver.CheckForUpdates(context.Background(), &now)
	require.NoError(t, err)

	result, err := driver.CheckForUpdates(context.Background(), &now)
	require.NoError(t, err)
	assert.Equal(t, NoUpdates, result)
}

func TestCheckForUpdatesDetectsIndexChange(t *testing.T) {
	tr := newTestRepo(t, time.Now().Add(24*time.Hour))
	repo := newBootstrappedRepository(t, tr, t.TempDir())
	driver := NewUpdateDriver(repo)

	now := time.Now()
	_, err := driver.CheckForUpdates(context.Background(), &now)
	require.NoError(t, err)

	tr.republishAfterIndexChange(time.Now().Add(24*time.Hour), map[string][]byte{"demo-package": []byte("package bytes v1")})

	result, err := driver.CheckForUpdates(context.Background(), &now)
	require.NoError(t, err)
	assert.Equal(t, HasUpdates, result)

	data, ok := repo.GetCachedIndex()
	require.True(t, ok)
	assert.NotEmpty(t, data)
}

func TestCheckForUpdatesRejectsExpiredTimestamp(t *testing.T) {
	tr := newTestRepo(t, time.Now().Add(-time.Hour))
	repo := newBootstrappedRepository(t, tr, t.TempDir())
	driver := NewUpdateDriver(repo)

	now := time.Now()
	_, err := driver.CheckForUpdates(context.Background(), &now)
	require.Error(t, err)
	assert.ErrorIs(t, err, metadata.ErrVerificationLoop{})
}

func TestCheckForUpdatesHandlesRootRotation(t *testing.T) {
	tr := newTestRepo(t, time.Now().Add(24*time.Hour))
	repo := newBootstrappedRepository(t, tr, t.TempDir())
	driver := NewUpdateDriver(repo)

	now := time.Now()
	_, err := driver.CheckForUpdates(context.Background(), &now)
	require.NoError(t, err)

	newKey := tr.rotateRoot(time.Now().Add(24 * time.Hour))

	result, err := driver.CheckForUpdates(context.Background(), &now)
	require.NoError(t, err)
	assert.Equal(t, HasUpdates, result)

	root, err := repo.GetCachedRoot()
	require.NoError(t, err)
	assert.Equal(t, int64(2), root.Unwrap().Version)
	_, hasNewKey := root.Unwrap().Keys[newKey.key.ID()]
	assert.True(t, hasNewKey)
}

func TestBootstrapThenRefresh(t *testing.T) {
	tr := newTestRepo(t, time.Now().Add(24*time.Hour))
	dir := t.TempDir()
	repo := newBootstrappedRepositoryViaBootstrap(t, tr, dir)
	driver := NewUpdateDriver(repo)

	now := time.Now()
	result, err := driver.CheckForUpdates(context.Background(), &now)
	require.NoError(t, err)
	assert.Equal(t, HasUpdates, result)
}

func TestDownloadPackageRoundTrip(t *testing.T) {
	tr := newTestRepo(t, time.Now().Add(24*time.Hour))
	repo := newBootstrappedRepository(t, tr, t.TempDir())
	driver := NewUpdateDriver(repo)

	now := time.Now()
	tr.republishAfterIndexChange(time.Now().Add(24*time.Hour), map[string][]byte{"demo-package": []byte("package bytes v1")})
	_, err := driver.CheckForUpdates(context.Background(), &now)
	require.NoError(t, err)

	dl := NewPackageDownloader(repo)
	dest := filepath.Join(t.TempDir(), "demo-package.bin")
	require.NoError(t, dl.DownloadPackage(context.Background(), PackageIdentifier{Name: "demo-package"}, dest))

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "package bytes v1", string(content))
}

func TestDownloadPackageUnknownIsInvalid(t *testing.T) {
	tr := newTestRepo(t, time.Now().Add(24*time.Hour))
	repo := newBootstrappedRepository(t, tr, t.TempDir())
	driver := NewUpdateDriver(repo)

	now := time.Now()
	tr.republishAfterIndexChange(time.Now().Add(24*time.Hour), map[string][]byte{"demo-package": []byte("v1")})
	_, err := driver.CheckForUpdates(context.Background(), &now)
	require.NoError(t, err)

	dl := NewPackageDownloader(repo)
	dest := filepath.Join(t.TempDir(), "nope.bin")
	err = dl.DownloadPackage(context.Background(), PackageIdentifier{Name: "does-not-exist"}, dest)
	assert.ErrorIs(t, err, metadata.ErrInvalidPackage{})
}

// newBootstrappedRepositoryViaBootstrap exercises Bootstrapper directly,
// rather than seeding the cache by hand as newBootstrappedRepository does.
func newBootstrappedRepositoryViaBootstrap(t *testing.T, tr *testRepo, dir string) *Repository {
	t.Helper()
	repo := newEmptyRepository(t, tr, dir)
	b := NewBootstrapper(repo)
	require.NoError(t, b.Bootstrap(context.Background(), []string{tr.key.key.ID()}, 1))
	return repo
}
