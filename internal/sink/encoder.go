// internal/sink/encoder.go
package sink

import (
	"bytes"

	"evgate-ingest/internal/model"
	"evgate-ingest/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// Encoder 는 이벤트 배치를 JSONL → gzip 형태로 직렬화하는 컴포넌트.
// sink 파이프라인에서 CPU 사용량에 가장 큰 영향을 주는 구간이다.
//
// 특징:
//   - goccy/go-json 기반 인코딩 (이벤트의 Fields 맵을 한 줄 JSON 으로)
//   - gzip.Writer + bytes.Buffer 재사용(pool 기반)
//   - 결과는 새로운 []byte 로 복사해 호출자에게 소유권을 넘김
//     (pool 버퍼를 그대로 반환하면 데이터 corruption 위험)
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeBatchJSONLGZ 는 이벤트 배치를 줄 단위 JSON 으로 인코딩한 뒤
// gzip 압축해 반환한다.
//
// 반환값:
// - data: 압축된 결과의 byte slice(호출자 소유)
// - err: 인코딩 과정 중 오류 발생 시
func (e *Encoder) EncodeBatchJSONLGZ(events []*model.Event) ([]byte, error) {

	buf := pool.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	gz := pool.GzipWriterPool.Get().(*gzip.Writer)
	gz.Reset(buf)

	// json encoder 를 gzip writer 에 직결한다.
	// Encode 는 줄마다 '\n' 을 붙이므로 그대로 JSONL 이 된다.
	enc := json.NewEncoder(gz)

	for _, ev := range events {
		if err := enc.Encode(ev.Fields); err != nil {
			_ = gz.Close()
			pool.GzipWriterPool.Put(gz)
			pool.PutBuffer(buf)
			return nil, err
		}
	}

	// Close() 시 gzip footer 까지 포함해 스트림이 완성된다.
	if err := gz.Close(); err != nil {
		pool.GzipWriterPool.Put(gz)
		pool.PutBuffer(buf)
		return nil, err
	}
	pool.GzipWriterPool.Put(gz)

	// pool 버퍼는 재사용되므로 caller 소유의 새 slice 로 복사한다.
	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)

	pool.PutBuffer(buf)

	return data, nil
}
