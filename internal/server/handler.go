// internal/server/handler.go
package server

import (
	"bytes"
	"io"
	"net/http"
	"sync/atomic"

	"evgate-ingest/internal/decompress"
	"evgate-ingest/internal/pool"

	"github.com/rs/zerolog/log"
)

// 압축 해제 실패 시 반환되는 고정 응답 본문.
// 클라이언트 쪽 계약이므로 문구를 바꾸면 안 된다.
const msgDecompressFailed = "Failed to decompress body"

// handleIngest
//
// 모든 수집 요청을 처리하는 hot path.
//
// 처리 순서:
//  1. 고정 응답 헤더 병합 (상태 코드와 무관하게 전부)
//  2. 메서드 게이트 (POST 만, OPTIONS 는 preflight 204)
//  3. admission — 슬롯 없으면 즉시 429, body 는 읽지도 않는다
//  4. 인증 → 401
//  5. body 읽기 (MaxBodySize 강제) → 413
//  6. content-encoding 해제 → 400 (고정 메시지)
//  7. codec 디코딩 → 400
//  8. host 필드 세팅 후 전 이벤트 enqueue (큐가 차 있으면 여기서 블록)
//  9. 성공 응답
//
// 슬롯은 enqueue 블로킹 구간까지 포함해서 점유된다. downstream 포화가
// 슬롯 포화로 번지고, admission 이 그것을 429 로 드러내는 구조다.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {

	// 고정 응답 헤더는 모든 응답(성공/거절)에 병합된다.
	for k, v := range s.cfg.ResponseHeaders {
		w.Header().Set(k, v)
	}

	atomic.AddInt64(&s.metrics.HTTPRequestsTotal, 1)

	// 허용 메서드 검사. OPTIONS 요청은 CORS preflight 로 가정 → 즉시 204.
	switch r.Method {
	case http.MethodPost:
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// --------------------------------------------------------------------
	// Admission: non-blocking 슬롯 획득.
	// 슬롯이 없으면 decode 도, 큐 접근도 없이 O(1) 로 429.
	// 여기서 기다리면 accept loop 전체가 느려지므로 절대 대기하지 않는다.
	// --------------------------------------------------------------------
	select {
	case s.slots <- struct{}{}:
	default:
		atomic.AddInt64(&s.metrics.HTTPRequestsRejectedBusyTotal, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	defer func() { <-s.slots }()

	// --------------------------------------------------------------------
	// 인증. 실패 사유(헤더 부재/인코딩 불량/불일치)는 구분 없이 401 하나.
	// 큐는 건드리지 않는다.
	// --------------------------------------------------------------------
	if !s.gate.Allow(r) {
		atomic.AddInt64(&s.metrics.HTTPRequestsRejectedAuthTotal, 1)
		if s.gate.Enabled() {
			w.Header().Set("WWW-Authenticate", `Basic realm="ingest"`)
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// --------------------------------------------------------------------
	// 요청 Body 최대 크기 강제 제한 + BodyPool 기반 메모리 재사용.
	// --------------------------------------------------------------------
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodySize)
	defer r.Body.Close()

	buf := pool.BodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer pool.PutBody(buf, s.cfg.MaxBodySize*2)

	if _, err := io.Copy(buf, r.Body); err != nil {
		atomic.AddInt64(&s.metrics.HTTPRequestsRejectedBodyTooLargeTotal, 1)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	// --------------------------------------------------------------------
	// content-encoding 해제. 실패는 고정 문구의 400 으로 끝난다 —
	// 부분 해제 결과로 디코딩을 이어가는 경로는 없다.
	// --------------------------------------------------------------------
	body, err := decompress.Decode(r.Header.Get("Content-Encoding"), buf.Bytes())
	if err != nil {
		atomic.AddInt64(&s.metrics.DecompressErrorsTotal, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, msgDecompressFailed)
		return
	}

	// --------------------------------------------------------------------
	// codec 선택 + 디코딩. 실패 시 어떤 이벤트도 enqueue 되지 않는다
	// (부분 디코딩 결과는 폐기).
	// --------------------------------------------------------------------
	c := s.registry.Resolve(r.Header.Get("Content-Type"))
	events, err := c.Decode(body)
	if err != nil {
		atomic.AddInt64(&s.metrics.DecodeErrorsTotal, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, err.Error())
		return
	}

	// --------------------------------------------------------------------
	// enqueue: codec 이 만든 순서 그대로, 전부 넘긴 뒤에만 성공 응답.
	// 큐가 가득 차면 여기서 블록한다 (슬롯 점유 = backpressure 신호).
	// ctx 취소(서버 종료/클라이언트 이탈)시에만 중단된다.
	// --------------------------------------------------------------------
	host := remoteHost(r)
	for _, ev := range events {
		ev.SetHost(host)
		if err := s.queue.Enqueue(r.Context(), ev); err != nil {
			log.Warn().Err(err).Msg("enqueue aborted")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}

	atomic.AddInt64(&s.metrics.EventsEnqueuedTotal, int64(len(events)))
	atomic.AddInt64(&s.metrics.HTTPRequestsAcceptedTotal, 1)
	w.WriteHeader(s.cfg.ResponseCode)
}
