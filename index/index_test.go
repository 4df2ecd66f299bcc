package index

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTar(t *testing.T, files map[string]string, gzipped bool) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	if !gzipped {
		return tarBuf.Bytes()
	}
	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	_, err := gw.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return gzBuf.Bytes()
}

func TestOpenPlainTar(t *testing.T) {
	data := buildTar(t, map[string]string{
		"pkg-a/targets.json": `{"name":"a"}`,
		"pkg-b/targets.json": `{"name":"b"}`,
	}, false)

	r, format, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, FormatPlain, format)

	_, content, err := r.ReadAt("pkg-a/targets.json")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, string(content))

	assert.ElementsMatch(t, []string{"pkg-a/targets.json", "pkg-b/targets.json"}, r.Names())
}

func TestOpenGzipTar(t *testing.T) {
	data := buildTar(t, map[string]string{"pkg-a/targets.json": `{"name":"a"}`}, true)

	r, format, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, FormatGzip, format)

	_, content, err := r.ReadAt("pkg-a/targets.json")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, string(content))
}

func TestLookupMissingEntry(t *testing.T) {
	data := buildTar(t, map[string]string{"pkg-a/targets.json": `{}`}, false)
	r, _, err := Open(data)
	require.NoError(t, err)

	_, ok := r.Lookup("pkg-missing/targets.json")
	assert.False(t, ok)

	_, _, err = r.ReadAt("pkg-missing/targets.json")
	assert.Error(t, err)
}

func TestOpenRejectsMalformedStream(t *testing.T) {
	_, _, err := Open([]byte("not a tar archive at all, just junk bytes"))
	assert.Error(t, err)
}
