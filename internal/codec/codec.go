// internal/codec/codec.go
package codec

import (
	"bytes"
	"fmt"
	"strings"

	"evgate-ingest/internal/model"

	json "github.com/goccy/go-json"
)

// Codec
// ------------------------------------------------------------
// "byte payload → 0개 이상의 이벤트" 단일 능력.
// registry 는 content-type 을 보고 이 핸들을 돌려줄 뿐,
// 디코딩 자체는 각 구현이 담당한다.
//
// 새 codec 추가 시 builtin 맵에 등록만 하면 된다 (계약 변경 없음).
type Codec interface {
	Decode(body []byte) ([]*model.Event, error)
}

// 내장 codec id.
const (
	IDJSON  = "json"  // JSON 객체 1개 → 이벤트 1개 (최상위 key = 필드)
	IDLines = "lines" // 줄 단위 → 줄마다 이벤트 1개 (message 필드)
	IDPlain = "plain" // 본문 전체 → 이벤트 1개 (message 필드)
)

// ------------------------------------------------------------
// json codec
// ------------------------------------------------------------

type jsonCodec struct{}

// Decode 는 본문을 JSON 객체 하나로 해석한다.
// 객체가 아니거나(배열/스칼라) 문법 오류면 DecodeFailure.
// 최상위 key 들이 그대로 이벤트 필드가 된다.
func (jsonCodec) Decode(body []byte) ([]*model.Event, error) {
	ev := model.New()
	if err := json.Unmarshal(body, &ev.Fields); err != nil {
		return nil, fmt.Errorf("invalid json payload: %w", err)
	}
	return []*model.Event{ev}, nil
}

// ------------------------------------------------------------
// lines codec
// ------------------------------------------------------------

type linesCodec struct{}

// Decode 는 '\n' 구분 segment 마다 이벤트를 하나씩 만든다.
//   - 마지막 segment 는 종결 '\n' 이 없어도 포함된다 ("foo\nbar" → 2개)
//   - 본문이 '\n' 으로 끝나면 마지막 빈 segment 는 만들지 않는다
//   - CRLF 대응: segment 끝의 '\r' 는 제거
//
// 빈 본문은 이벤트 0개. 실패 케이스가 없는 codec 이다.
func (linesCodec) Decode(body []byte) ([]*model.Event, error) {
	if len(body) == 0 {
		return nil, nil
	}

	segs := bytes.Split(body, []byte{'\n'})

	// 종결 '\n' 뒤의 빈 꼬리 제거
	if len(segs) > 0 && len(segs[len(segs)-1]) == 0 {
		segs = segs[:len(segs)-1]
	}

	events := make([]*model.Event, 0, len(segs))
	for _, seg := range segs {
		seg = bytes.TrimSuffix(seg, []byte{'\r'})
		events = append(events, model.FromMessage(string(seg)))
	}
	return events, nil
}

// ------------------------------------------------------------
// plain codec
// ------------------------------------------------------------

type plainCodec struct{}

// Decode 는 본문 전체를 message 필드 하나에 담는다. 항상 이벤트 1개.
func (plainCodec) Decode(body []byte) ([]*model.Event, error) {
	return []*model.Event{model.FromMessage(string(body))}, nil
}

// ------------------------------------------------------------

// builtin 은 id → 구현 매핑. 전부 상태 없는 값 타입이라 공유해도 안전.
var builtin = map[string]Codec{
	IDJSON:  jsonCodec{},
	IDLines: linesCodec{},
	IDPlain: plainCodec{},
}

// NormalizeType 은 content-type 헤더 값을 lookup key 로 정규화한다.
// 소문자화 + 파라미터(; charset=...) 제거 + 공백 trim.
func NormalizeType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
