// internal/sink/dlq_test.go
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"evgate-ingest/internal/config"
	"evgate-ingest/internal/metrics"
	"evgate-ingest/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUploader 는 업로드 호출을 기록하는 테스트 대역.
// err 가 설정되면 모든 업로드가 실패한다.
type fakeUploader struct {
	mu    sync.Mutex
	err   error
	keys  []string
	blobs [][]byte
}

func (f *fakeUploader) UploadBytesWithRetryCtx(_ context.Context, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.blobs = append(f.blobs, append([]byte(nil), body...))
	return nil
}

func (f *fakeUploader) UploadFileWithRetryCtx(_ context.Context, key string, r io.ReadSeeker, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	f.keys = append(f.keys, key)
	f.blobs = append(f.blobs, buf.Bytes())
	return nil
}

func (f *fakeUploader) uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *fakeUploader) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func dlqConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		InstanceID:      "test",
		RawPrefix:       "raw",
		DLQPrefix:       "dlq",
		DLQDir:          t.TempDir(),
		DLQMaxAge:       time.Hour,
		DLQMaxSizeBytes: 1 << 20,
		S3AppRetries:    1,
		S3Timeout:       time.Second,
	}
}

// 유효한 gzip+JSONL 배치를 만들어 준다 (validateFile 통과용).
func validBatch(t *testing.T, msgs ...string) []byte {
	t.Helper()
	events := make([]*model.Event, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, model.FromMessage(m))
	}
	data, err := NewEncoder().EncodeBatchJSONLGZ(events)
	require.NoError(t, err)
	return data
}

func countDataFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) != ".json" {
			n++
		}
	}
	return n
}

func TestDLQSaveAndReupload(t *testing.T) {
	cfg := dlqConfig(t)
	m := metrics.New()
	up := &fakeUploader{}
	d := NewDLQManager(cfg, m, up)

	data := validBatch(t, "a", "b", "c")
	require.NoError(t, d.Save(data, 3))

	assert.Equal(t, 1, countDataFiles(t, cfg.DLQDir))
	assert.Equal(t, int64(3), m.DLQEventsEnqueuedTotal)
	assert.Equal(t, int64(len(data)), m.DLQSizeBytes)

	// 재업로드 성공 → 파일 제거, 복구 카운트 = meta 의 num_events
	d.ProcessOneCtx(context.Background())

	assert.Equal(t, 0, countDataFiles(t, cfg.DLQDir))
	assert.Equal(t, int64(3), m.DLQEventsReuploadedTotal)
	assert.Equal(t, int64(0), m.DLQSizeBytes)

	uploads := up.uploads()
	require.Len(t, uploads, 1)
	// 유효한 배치는 RAW prefix 로 복구된다
	assert.Contains(t, uploads[0], "raw/")
}

func TestDLQReuploadFailureKeepsFile(t *testing.T) {
	cfg := dlqConfig(t)
	m := metrics.New()
	up := &fakeUploader{}
	up.setErr(errors.New("s3 down"))
	d := NewDLQManager(cfg, m, up)

	require.NoError(t, d.Save(validBatch(t, "x"), 1))
	d.ProcessOneCtx(context.Background())

	// 실패하면 파일은 남아서 다음 기회를 기다린다
	assert.Equal(t, 1, countDataFiles(t, cfg.DLQDir))
	assert.Equal(t, int64(0), m.DLQEventsReuploadedTotal)
}

func TestDLQCapacityEviction(t *testing.T) {
	cfg := dlqConfig(t)
	m := metrics.New()
	d := NewDLQManager(cfg, m, &fakeUploader{})

	first := validBatch(t, "oldest")
	require.NoError(t, d.Save(first, 1))

	// 두 번째 배치가 들어갈 만큼만 허용 → 가장 오래된 파일이 밀려난다
	second := validBatch(t, "newest with a longer body")
	d.cfg.DLQMaxSizeBytes = int64(len(first)) + int64(len(second)) - 1

	require.NoError(t, d.Save(second, 1))

	assert.Equal(t, 1, countDataFiles(t, cfg.DLQDir))
	assert.Equal(t, int64(1), m.DLQFilesExpiredTotal)
}

func TestDLQDropWhenNothingToEvict(t *testing.T) {
	cfg := dlqConfig(t)
	cfg.DLQMaxSizeBytes = 4 // 어떤 배치도 못 들어가는 용량
	m := metrics.New()
	d := NewDLQManager(cfg, m, &fakeUploader{})

	require.NoError(t, d.Save(validBatch(t, "too big"), 2))

	assert.Equal(t, 0, countDataFiles(t, cfg.DLQDir))
	assert.Equal(t, int64(2), m.DLQEventsDroppedTotal)
}

func TestDLQTTLExpiry(t *testing.T) {
	cfg := dlqConfig(t)
	cfg.DLQMaxAge = time.Minute
	m := metrics.New()
	up := &fakeUploader{}
	d := NewDLQManager(cfg, m, up)

	// TTL 을 한참 지난 timestamp 를 파일명에 심어 둔다
	old := Unix() - 3600
	name := fmt.Sprintf("%d_test_000001.jsonl.gz", old)
	dataPath := filepath.Join(cfg.DLQDir, name)
	require.NoError(t, os.WriteFile(dataPath, validBatch(t, "stale"), 0o600))
	require.NoError(t, os.WriteFile(dataPath+".meta.json", []byte(`{"num_events":1}`), 0o600))

	d.ProcessOneCtx(context.Background())

	// TTL 초과 파일은 업로드 없이 삭제된다
	assert.Equal(t, 0, countDataFiles(t, cfg.DLQDir))
	assert.Empty(t, up.uploads())
	assert.Equal(t, int64(1), m.DLQFilesExpiredTotal)
}

func TestDLQInvalidBatchGoesToDLQPrefix(t *testing.T) {
	cfg := dlqConfig(t)
	m := metrics.New()
	up := &fakeUploader{}
	d := NewDLQManager(cfg, m, up)

	// gzip 도 JSONL 도 아닌 내용 → RAW_DLQ prefix 로 우회
	require.NoError(t, d.Save([]byte("not a gzip jsonl batch"), 1))
	d.ProcessOneCtx(context.Background())

	uploads := up.uploads()
	require.Len(t, uploads, 1)
	assert.Contains(t, uploads[0], "dlq/")
}

func TestDLQScanRestoresState(t *testing.T) {
	cfg := dlqConfig(t)
	m := metrics.New()
	d := NewDLQManager(cfg, m, &fakeUploader{})

	data := validBatch(t, "survivor")
	require.NoError(t, d.Save(data, 1))

	// orphan meta 파일 하나를 심어 둔다
	orphan := filepath.Join(cfg.DLQDir, "123_test_000009.jsonl.gz.meta.json")
	require.NoError(t, os.WriteFile(orphan, []byte(`{"num_events":1}`), 0o600))

	// 재기동 시나리오: 디렉토리 스캔으로 상태 복원 + orphan 정리
	m2 := metrics.New()
	NewDLQManager(cfg, m2, &fakeUploader{})

	assert.Equal(t, int64(1), m2.DLQFilesCurrent)
	assert.Equal(t, int64(len(data)), m2.DLQSizeBytes)
	_, err := os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
}
