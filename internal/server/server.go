// internal/server/server.go
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"evgate-ingest/internal/auth"
	"evgate-ingest/internal/codec"
	"evgate-ingest/internal/config"
	"evgate-ingest/internal/metrics"
	"evgate-ingest/internal/queue"
)

// Server
// ------------------------------------------------------------
// HTTP ingestion endpoint 의 전면부.
//
//   - listener 1개 (plaintext 또는 TLS)
//   - threads 개의 worker 슬롯 (slots 채널 = counting semaphore)
//   - 슬롯을 잡은 요청만 auth → decompress → decode → enqueue
//     파이프라인을 탄다
//
// downstream 큐는 생성 시점에 명시적 의존성으로 주입받는다.
// 전역 상태를 통하지 않으므로 테스트에서 bounded/instrumented 큐로
// 자유롭게 대체할 수 있다.
type Server struct {
	cfg      config.Config
	gate     *auth.Gate
	registry *codec.Registry
	queue    queue.Queue
	metrics  *metrics.Metrics

	// worker 슬롯 semaphore. 버퍼 크기 = threads.
	// 비워지지 않으면(= 모든 worker 가 decode 중이거나 enqueue 에
	// 블록된 상태) 신규 요청은 즉시 429 를 받는다.
	slots chan struct{}

	httpSrv *http.Server
}

// New 는 설정을 검증하고 서버를 조립한다.
//
// 설정 오류(TLS 재료 누락, 잘못된 codec override 등)는 전부 여기서
// 반환된다 — listener 는 아직 bind 되지 않은 상태다. 요청 처리 중에
// 설정 문제로 실패하는 경로는 존재하지 않는다.
func New(cfg config.Config, q queue.Queue, m *metrics.Metrics) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	registry, err := codec.NewRegistry(cfg.AdditionalCodecs)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		gate:     auth.New(cfg.AuthUser, cfg.AuthPassword),
		registry: registry,
		queue:    q,
		metrics:  m,
		slots:    make(chan struct{}, cfg.Threads),
	}

	// /metrics 와 /health 는 worker 슬롯 게이트를 타지 않는다.
	// 슬롯이 전부 막힌 상황에서도 서버 상태는 관측 가능해야 한다.
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		// ALB 는 단순 문자열로도 health 판단 가능
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", s.handleIngest) // 나머지 모든 경로 = ingest

	// ReadTimeout: 비정상 커넥션이 body 전송을 미루며 리소스를 점유하는
	// 것을 방지. WriteTimeout 은 걸지 않는다 — enqueue 는 downstream 이
	// 막히면 무기한 블록할 수 있고, 그것이 의도된 backpressure 경로다.
	s.httpSrv = &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     mux,
		ReadTimeout: 8 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler 는 조립된 http.Handler 를 반환한다 (테스트/embedding 용).
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start 는 listener 를 bind 하고 serve 한다. blocking.
// 정상 종료(Shutdown) 시 http.ErrServerClosed 를 반환한다.
func (s *Server) Start() error {
	if s.cfg.SSL {
		return s.httpSrv.ListenAndServeTLS(s.cfg.SSLCertificate, s.cfg.SSLKey)
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown 은 신규 accept 를 멈추고 in-flight 요청이 끝나기를
// ctx 한도 내에서 기다린다.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// handleMetrics 는 내부 카운터를 key=value 텍스트로 출력한다.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, s.metrics.String())
}
