// internal/model/event.go
package model

// Event
// ------------------------------------------------------------
// HTTP 요청 본문을 codec 이 해석해 만들어내는 단일 이벤트.
// ingestion 파이프라인에서 모든 데이터의 "기본 단위"가 된다.
// Handler → Queue → (downstream consumer) 까지 그대로 전달된다.
//
// Fields 는 codec 이 만든 최상위 필드 매핑이다.
//   - plain / lines codec: {"message": "..."}
//   - json codec: JSON 객체의 최상위 key 전부
//
// 여기에 handler 가 enqueue 직전에 "host"(요청 peer 주소)를 추가한다.
// enqueue 성공 이후 이벤트 소유권은 queue 로 넘어가며,
// 서버 쪽에서는 절대 다시 만지지 않는다 (재사용/풀링 금지).
type Event struct {
	Fields map[string]any
}

// 표준 필드 이름. codec / handler / consumer 가 공유하는 계약이다.
const (
	FieldMessage = "message"
	FieldHost    = "host"
)

// New 는 빈 이벤트를 생성한다. 구조화 codec(json 등)이 사용.
func New() *Event {
	return &Event{Fields: make(map[string]any, 8)}
}

// FromMessage 는 본문 전체(또는 한 줄)를 message 필드 하나로 담는
// 이벤트를 생성한다. plain / lines codec 이 사용.
func FromMessage(msg string) *Event {
	return &Event{Fields: map[string]any{FieldMessage: msg}}
}

// SetHost 는 이벤트를 만든 요청의 peer 주소를 기록한다.
// enqueue 직전, 이벤트가 불변이 되기 전 마지막 쓰기다.
func (e *Event) SetHost(host string) {
	e.Fields[FieldHost] = host
}

// Message 는 message 필드를 문자열로 꺼낸다 (없으면 "").
// 테스트와 디버그 로그 용도.
func (e *Event) Message() string {
	if v, ok := e.Fields[FieldMessage].(string); ok {
		return v
	}
	return ""
}

// UploadJob
// ------------------------------------------------------------
// 이벤트 배치 단위로 업로드할 때 sink 내부에서 사용되는 구조체.
// Encoder → gzip JSONL → S3Uploader 로 전달된다.
type UploadJob struct {
	Events []*Event // 한 번에 처리되는 N개의 이벤트
}
