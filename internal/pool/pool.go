// internal/pool/pool.go
package pool

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pool 구성 목적
//
// ingest 서버는 요청마다 body 읽기, 압축 해제, (sink 의) gzip 인코딩 등
// 메모리 할당이 매우 빈번하게 발생한다.
//
// 아래 Pool들은 "GC 줄이기, 메모리 재사용, 성능 안정화" 목적.
// ---------------------------------------------------------------

var (
	// BodyPool:
	//   - 요청 body / 압축 해제 결과를 담는 임시 버퍼
	//   - 초기 용량 4KB (대부분의 small POST는 여기에 수용됨)
	//   - 너무 큰 버퍼는 caller(maxCap 조건)에서 재사용하지 않음
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 4*1024))
		},
	}

	// BufferPool:
	//   - sink 의 gzip 인코딩 결과를 담는 임시 버퍼
	//   - 초기 용량 256KB (일반적인 배치 사이즈에 최적화)
	//   - 1MB 초과 버퍼는 메모리 폭주 방지를 위해 풀에 넣지 않음
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 256*1024))
		},
	}

	// GzipWriterPool:
	//   - sink encoder 용 gzip.Writer 재사용 (매번 new 하면 비용 매우 큼)
	//   - BestSpeed 옵션: ingest 서버 특성상 속도 우선 전략
	GzipWriterPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}

	// GzipReaderPool:
	//   - content-encoding: gzip 요청 해제용 gzip.Reader 재사용
	//   - Reset 실패(깨진 스트림)하면 풀에 되돌리지 말 것
	GzipReaderPool = sync.Pool{
		New: func() any { return new(gzip.Reader) },
	}
)

// Pool에 되돌려줄 최대 버퍼 용량.
// 이보다 큰 버퍼는 Pool에 넣지 않고 GC에게 위임해 메모리 폭발을 예방.
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// PutBody:
//   - BodyPool에 buf를 반환할지 결정.
//   - maxCap(보통 MaxBodySize*2)보다 크면 버려서 GC로.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
	// 그 외는 반환하지 않고 자연스럽게 GC 처리
}

// PutBuffer:
//   - gzip 결과 버퍼 반환 (1MB 이하만 재사용)
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}
