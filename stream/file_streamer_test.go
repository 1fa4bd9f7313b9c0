package stream

import (
	"bytes"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nczempin/httpd-go-uring/errors"
)

func writeTempFile(t *testing.T, data []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// chunkRecorder remembers the size of every Write it sees
type chunkRecorder struct {
	bytes.Buffer
	writes []int
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.writes = append(c.writes, len(p))
	return c.Buffer.Write(p)
}

// streamers returns every backend usable in this environment
func streamers(t *testing.T, chunkSize int) []Streamer {
	t.Helper()
	out := []Streamer{NewCopyStreamer(chunkSize)}
	for _, backend := range []string{BackendIoUring, BackendUring} {
		s, err := New(backend, chunkSize)
		if err != nil {
			t.Logf("skipping %s backend: %v", backend, err)
			continue
		}
		out = append(out, s)
	}
	return out
}

func TestStream_CopiesExactBytes(t *testing.T) {
	sizes := []int{0, 1, 4096, DefaultChunkSize, DefaultChunkSize + 1, 3*DefaultChunkSize + 17}

	for _, s := range streamers(t, 0) {
		for _, size := range sizes {
			data := randomBytes(t, size)
			src := writeTempFile(t, data)

			var dst chunkRecorder
			n, err := s.Stream(&dst, src, int64(size))
			require.NoError(t, err, "%s size=%d", s.Name(), size)
			assert.Equal(t, int64(size), n, s.Name())
			assert.True(t, bytes.Equal(data, dst.Bytes()), "%s size=%d body mismatch", s.Name(), size)

			for _, w := range dst.writes {
				assert.LessOrEqual(t, w, DefaultChunkSize, "%s wrote an oversized chunk", s.Name())
			}
		}
	}
}

func TestStream_HonoursChunkSize(t *testing.T) {
	data := randomBytes(t, 1000)

	for _, s := range streamers(t, 64) {
		src := writeTempFile(t, data)
		var dst chunkRecorder
		_, err := s.Stream(&dst, src, int64(len(data)))
		require.NoError(t, err)

		assert.Len(t, dst.writes, 16, s.Name()) // 15 full chunks + 40 bytes
		assert.Equal(t, data, dst.Bytes())
	}
}

func TestStream_StopsAtDeclaredSize(t *testing.T) {
	data := []byte("0123456789")

	for _, s := range streamers(t, 4) {
		src := writeTempFile(t, data)
		var dst bytes.Buffer
		n, err := s.Stream(&dst, src, 6)
		require.NoError(t, err)
		assert.Equal(t, int64(6), n)
		assert.Equal(t, "012345", dst.String(), s.Name())
	}
}

func TestStream_ShortFile(t *testing.T) {
	for _, s := range streamers(t, 0) {
		src := writeTempFile(t, []byte("short"))
		var dst bytes.Buffer
		n, err := s.Stream(&dst, src, 100)
		require.Error(t, err)
		assert.Equal(t, int64(5), n)

		se, ok := errors.As(err)
		require.True(t, ok)
		assert.Equal(t, errors.FilesystemErrorShortRead, se.FilesystemErr, s.Name())
	}
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.NewTransportError(errors.TransportErrorConnectionClosed, "peer gone", io.ErrClosedPipe)
	}
	w.after--
	return len(p), nil
}

func TestStream_WriteFailureAborts(t *testing.T) {
	data := randomBytes(t, 10*1024)

	for _, s := range streamers(t, 1024) {
		src := writeTempFile(t, data)
		n, err := s.Stream(&failingWriter{after: 2}, src, int64(len(data)))
		require.Error(t, err)
		assert.True(t, errors.IsConnectionClosed(err), s.Name())
		assert.Equal(t, int64(2048), n, s.Name())
	}
}

func TestNew_Backends(t *testing.T) {
	s, err := New("", 0)
	require.NoError(t, err)
	assert.Equal(t, BackendCopy, s.Name())

	s, err = New(BackendCopy, 0)
	require.NoError(t, err)
	assert.Equal(t, BackendCopy, s.Name())

	_, err = New("sendfile", 0)
	require.Error(t, err)
	se, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorInvalidArgument, se.Type)
}
