// internal/sink/encoder_test.go
package sink

import (
	"bufio"
	"bytes"
	"testing"

	"evgate-ingest/internal/model"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeJSONLGZ 는 인코딩 결과를 다시 풀어 줄 단위 맵으로 돌려준다.
func decodeJSONLGZ(t *testing.T, data []byte) []map[string]any {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()

	var out []map[string]any
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		m := make(map[string]any)
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestEncodeBatchJSONLGZ(t *testing.T) {
	enc := NewEncoder()

	ev1 := model.FromMessage("first")
	ev1.SetHost("203.0.113.1")
	ev2 := model.New()
	ev2.Fields["user"] = "kim"
	ev2.Fields["count"] = 2

	data, err := enc.EncodeBatchJSONLGZ([]*model.Event{ev1, ev2})
	require.NoError(t, err)

	lines := decodeJSONLGZ(t, data)
	require.Len(t, lines, 2)

	assert.Equal(t, "first", lines[0]["message"])
	assert.Equal(t, "203.0.113.1", lines[0]["host"])
	assert.Equal(t, "kim", lines[1]["user"])
	assert.Equal(t, float64(2), lines[1]["count"])
}

// pool 버퍼 재사용 후에도 이전 결과가 오염되지 않아야 한다
// (EncodeBatchJSONLGZ 는 caller 소유의 복사본을 반환한다).
func TestEncodeResultOwnership(t *testing.T) {
	enc := NewEncoder()

	first, err := enc.EncodeBatchJSONLGZ([]*model.Event{model.FromMessage("one")})
	require.NoError(t, err)
	snapshot := append([]byte(nil), first...)

	_, err = enc.EncodeBatchJSONLGZ([]*model.Event{model.FromMessage("two two two")})
	require.NoError(t, err)

	assert.Equal(t, snapshot, first)

	lines := decodeJSONLGZ(t, first)
	require.Len(t, lines, 1)
	assert.Equal(t, "one", lines[0]["message"])
}

func TestEncodeEmptyBatch(t *testing.T) {
	enc := NewEncoder()

	data, err := enc.EncodeBatchJSONLGZ(nil)
	require.NoError(t, err)

	// 빈 배치도 유효한 gzip 스트림 (라인 0개)
	assert.Empty(t, decodeJSONLGZ(t, data))
}
