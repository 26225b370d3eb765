// internal/sink/file_util.go
package sink

import (
	"fmt"
	"sync/atomic"
)

// file_util.go
// ------------------------------------------------------------
// DLQ 및 RAW 파일 저장 시 사용하는 유틸리티 모음.
//
// 파일명 규칙:
//
//	<unix>_<instance>_<counter>.jsonl.gz
//
// 예:
//
//	1764721594_ingest1_000042.jsonl.gz
//
// 문자열 정렬 = 시간 순 정렬이므로, DLQ 재업로드 시
// 가장 오래된 파일 선처리에 그대로 사용한다.
var globalCounter uint64

// NextCounter 는 원자적 증가 값으로 여러 goroutine 에서 충돌 없이
// 순차 번호를 생성한다. 1,000,000 에서 wrap-around 하지만
// timestamp + instance ID 조합으로 충돌 가능성은 사실상 없다.
func NextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

// NewFilename 은 <unix>_<instance>_<counter>.jsonl.gz 형태의
// 새 파일명을 생성한다. prefix 계층은 BuildS3Key 에서 적용한다.
func NewFilename(instanceID string) string {
	return fmt.Sprintf("%d_%s_%06d.jsonl.gz", Unix(), instanceID, NextCounter())
}

// BuildS3Key 는 표준화된 S3 Key 를 만든다.
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<filename>
//
// Athena / Glue 파티션 스캔 비용을 줄이기 위한 구조.
func BuildS3Key(prefix, filename string) string {
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", prefix, DT(), HR(), filename)
}
