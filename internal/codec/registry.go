// internal/codec/registry.go
package codec

import "fmt"

// Registry
// ------------------------------------------------------------
// 정규화된 content-type → codec 해석기.
//
// 해석 순서:
//  1. 설정 override (ADDITIONAL_CODECS) — 해당 타입의 기본 매핑을
//     entry 단위로 "완전 대체"한다 (merge 아님)
//  2. 내장 기본 매핑 (application/json → json)
//  3. 전역 fallback codec (lines)
//
// Registry 는 기동 시 한 번 만들어지고 이후 read-only 이므로
// 여러 worker 가 락 없이 공유한다.
type Registry struct {
	overrides map[string]string
	fallback  string
}

// 내장 기본 매핑. override 가 없을 때만 참조된다.
var defaults = map[string]string{
	"application/json": IDJSON,
}

// NewRegistry 는 override 매핑을 검증해 Registry 를 만든다.
// 존재하지 않는 codec id 를 가리키는 override 는 설정 오류이며,
// 요청 시점이 아니라 여기(기동 시점)에서 실패한다.
func NewRegistry(overrides map[string]string) (*Registry, error) {
	norm := make(map[string]string, len(overrides))
	for ct, id := range overrides {
		if _, ok := builtin[id]; !ok {
			return nil, fmt.Errorf("additional_codecs: unknown codec id %q for content-type %q", id, ct)
		}
		norm[NormalizeType(ct)] = id
	}
	return &Registry{overrides: norm, fallback: IDLines}, nil
}

// Resolve 는 content-type 헤더 값으로 codec 을 찾는다.
// 항상 유효한 codec 을 반환한다 (최후에는 fallback).
func (r *Registry) Resolve(contentType string) Codec {
	key := NormalizeType(contentType)

	if id, ok := r.overrides[key]; ok {
		return builtin[id]
	}
	if id, ok := defaults[key]; ok {
		return builtin[id]
	}
	return builtin[r.fallback]
}
