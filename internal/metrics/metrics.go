// internal/metrics/metrics.go
package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 서버 상태를 나타내는 카운터 모음이다.
// Prometheus 용이 아니라 운영자가 장애 원인 분석할 때 보는
// 내부 카운터들이며, /metrics 에서 key=value 텍스트로 노출된다.
type Metrics struct {
	// ======================
	// HTTP 레벨 지표
	// ======================

	// HTTPRequestsTotal
	// - ingest 경로로 들어온 "모든" HTTP 요청 수 (시도 기준).
	// - 성공/거절 여부와 관계없이 handler 진입마다 1씩 증가.
	HTTPRequestsTotal int64

	// HTTPRequestsAcceptedTotal
	// - 디코딩과 enqueue 까지 끝내고 성공 응답을 보낸 요청 수.
	// - HTTPRequestsTotal 과의 차이가 "수집 실패 요청" 규모다.
	HTTPRequestsAcceptedTotal int64

	// HTTPRequestsRejectedBusyTotal
	// - worker 슬롯이 전부 점유되어 즉시 429 를 반환한 요청 수.
	// - 이 값이 지속 증가하면 downstream 이 막혀 enqueue 블로킹이
	//   슬롯을 잡아먹고 있다는 신호다 (의도된 backpressure 경로).
	HTTPRequestsRejectedBusyTotal int64

	// HTTPRequestsRejectedAuthTotal
	// - 자격증명 검사 실패(401) 요청 수.
	HTTPRequestsRejectedAuthTotal int64

	// HTTPRequestsRejectedBodyTooLargeTotal
	// - 요청 Body 가 MaxBodySize 를 초과해서 거절된(413) 요청 수.
	HTTPRequestsRejectedBodyTooLargeTotal int64

	// DecompressErrorsTotal
	// - content-encoding 해제 실패(400 고정 메시지) 횟수.
	DecompressErrorsTotal int64

	// DecodeErrorsTotal
	// - codec 디코딩 실패(400) 횟수.
	DecodeErrorsTotal int64

	// EventsEnqueuedTotal
	// - downstream 큐에 넘긴 이벤트 총 수 (요청 수가 아니라 이벤트 수).
	//   lines codec 은 요청 하나가 N 이벤트가 될 수 있다.
	EventsEnqueuedTotal int64

	// ======================
	// S3 sink 지표
	// ======================

	// S3EventsStoredTotal
	// - 최종적으로 S3에 성공 저장된 "이벤트 개수" (배치 수 아님).
	S3EventsStoredTotal int64

	// S3PutErrorsTotal
	// - S3 PutObject 호출이 실패한 "시도(attempt)" 횟수.
	//   재시도마다 증가할 수 있다.
	S3PutErrorsTotal int64

	// ======================
	// DLQ (Dead Letter Queue) 지표
	// ======================

	// DLQEventsEnqueuedTotal
	// - S3 업로드 실패로 로컬 DLQ 에 들어간 이벤트 수 누적.
	DLQEventsEnqueuedTotal int64

	// DLQEventsReuploadedTotal
	// - DLQ 에서 S3 로 복구된 이벤트 수.
	DLQEventsReuploadedTotal int64

	// DLQEventsDroppedTotal
	// - DLQ 용량 초과로 버린 이벤트 수. 0 이 아니면 데이터 유실 시작.
	DLQEventsDroppedTotal int64

	// DLQFilesExpiredTotal
	// - TTL 또는 용량 정책으로 삭제된 DLQ 파일 수.
	DLQFilesExpiredTotal int64

	// DLQFilesCurrent
	// - 현재 DLQ 디렉토리의 파일 개수 (gauge).
	DLQFilesCurrent int64

	// DLQSizeBytes
	// - 현재 DLQ 디렉토리 전체 용량 (gauge, bytes).
	DLQSizeBytes int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "http_requests_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsTotal))
	fmt.Fprintf(&sb, "http_requests_accepted_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsAcceptedTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_busy_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedBusyTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_auth_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedAuthTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_body_too_large_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedBodyTooLargeTotal))
	fmt.Fprintf(&sb, "decompress_errors_total=%d\n", atomic.LoadInt64(&m.DecompressErrorsTotal))
	fmt.Fprintf(&sb, "decode_errors_total=%d\n", atomic.LoadInt64(&m.DecodeErrorsTotal))
	fmt.Fprintf(&sb, "events_enqueued_total=%d\n", atomic.LoadInt64(&m.EventsEnqueuedTotal))

	fmt.Fprintf(&sb, "s3_events_stored_total=%d\n", atomic.LoadInt64(&m.S3EventsStoredTotal))
	fmt.Fprintf(&sb, "s3_put_errors_total=%d\n", atomic.LoadInt64(&m.S3PutErrorsTotal))

	fmt.Fprintf(&sb, "dlq_events_enqueued_total=%d\n", atomic.LoadInt64(&m.DLQEventsEnqueuedTotal))
	fmt.Fprintf(&sb, "dlq_events_reuploaded_total=%d\n", atomic.LoadInt64(&m.DLQEventsReuploadedTotal))
	fmt.Fprintf(&sb, "dlq_events_dropped_total=%d\n", atomic.LoadInt64(&m.DLQEventsDroppedTotal))
	fmt.Fprintf(&sb, "dlq_files_expired_total=%d\n", atomic.LoadInt64(&m.DLQFilesExpiredTotal))
	fmt.Fprintf(&sb, "dlq_files_current=%d\n", atomic.LoadInt64(&m.DLQFilesCurrent))
	fmt.Fprintf(&sb, "dlq_size_bytes=%d\n", atomic.LoadInt64(&m.DLQSizeBytes))

	return sb.String()
}
