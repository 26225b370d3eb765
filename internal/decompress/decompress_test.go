// internal/decompress/decompress_test.go
package decompress

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zlibBytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func flateBytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	payload := []byte(`{"message":"hello ingest"}`)

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"gzip", "gzip", gzipBytes(t, payload)},
		{"x-gzip alias", "x-gzip", gzipBytes(t, payload)},
		{"gzip uppercase header", "GZIP", gzipBytes(t, payload)},
		// deflate 는 zlib wrapper 가 표준이지만 raw 로 보내는 구현도 있다
		{"deflate zlib", "deflate", zlibBytes(t, payload)},
		{"deflate raw", "deflate", flateBytes(t, payload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Decode(tt.encoding, tt.body)
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}
}

func TestPassthrough(t *testing.T) {
	payload := []byte("raw body, not compressed")

	for _, enc := range []string{"", "identity", "br", "zstd", "whatever"} {
		out, err := Decode(enc, payload)
		require.NoError(t, err, "encoding %q", enc)
		assert.Equal(t, payload, out, "encoding %q", enc)
	}
}

func TestDecompressFailure(t *testing.T) {
	valid := gzipBytes(t, []byte("hello"))

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"not gzip at all", "gzip", []byte("plainly not gzip")},
		{"truncated gzip", "gzip", valid[:len(valid)-4]},
		{"empty gzip body", "gzip", nil},
		{"corrupt zlib", "deflate", append(zlibBytes(t, []byte("x"))[:2], 0xff, 0xff, 0xff)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Decode(tt.encoding, tt.body)
			require.Error(t, err)
			// 단일 failure kind 로 수렴해야 handler 가 고정 400 을 만든다
			assert.ErrorIs(t, err, ErrDecompress)
			assert.Nil(t, out)
		})
	}
}

// 깨진 스트림으로 Reset 에 실패한 뒤에도 pool 의 reader 가
// 정상 요청을 처리할 수 있어야 한다.
func TestReaderPoolSurvivesFailure(t *testing.T) {
	_, err := Decode("gzip", []byte("broken"))
	require.Error(t, err)

	payload := []byte("after failure")
	out, err := Decode("gzip", gzipBytes(t, payload))
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}
