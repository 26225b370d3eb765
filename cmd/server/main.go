package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"evgate-ingest/internal/config"
	"evgate-ingest/internal/logger"
	"evgate-ingest/internal/metrics"
	"evgate-ingest/internal/queue"
	"evgate-ingest/internal/server"
	"evgate-ingest/internal/sink"

	"github.com/rs/zerolog/log"
)

func main() {

	// ====================================================================
	// CPU 설정 (컨테이너 vCPU 특성 대응)
	// ====================================================================
	//
	// Fargate/ECS 류 환경은 vCPU 단위로 CPU share 가 제한되는데
	// Go 런타임은 기본적으로 호스트의 모든 논리 코어를 GOMAXPROCS 로
	// 잡으려고 한다. 0.25 vCPU 에서 GOMAXPROCS=4 면 busy-loop
	// scheduling 으로 오히려 성능이 떨어진다.
	//
	// 운영에서는 Task 정의의 GOMAXPROCS 환경변수로 vCPU 수에 맞춘다.
	// ====================================================================
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	} else {
		runtime.GOMAXPROCS(1) // default: 1 logical CPU
	}

	// ====================================================================
	// Config / Logger / Metrics 초기화
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)
	m := metrics.New()

	// ====================================================================
	// 수집 큐 구성 (bounded)
	// ====================================================================
	//
	// 서버와 consumer 가 공유하는 유일한 가변 자원.
	// 가득 차면 worker 의 enqueue 가 블록되고, 그 블로킹이
	// admission 의 429 로 번지는 것이 backpressure 설계의 핵심이다.
	// 큐 용량을 늘리는 것은 지연을 숨길 뿐 해결이 아니다.
	// ====================================================================
	q := queue.NewChan(cfg.QueueSize)

	// ====================================================================
	// Downstream consumer 구성
	// ====================================================================
	//
	// SINK_ENABLED=true: S3 배치 업로드 파이프라인 (encoder + uploader + DLQ)
	// SINK_ENABLED=false: embedding 용도를 가정하고, 큐가 막히지 않도록
	//                     debug 레벨로 흘려버리는 drain consumer 를 돌린다.
	// ====================================================================
	drainCtx, drainCancel := context.WithCancel(context.Background())

	var mgr *sink.Manager
	if cfg.SinkEnabled {
		mgr = sink.NewManager(cfg, m, q)
		mgr.Start()
	} else {
		log.Warn().Msg("sink disabled: events are drained and discarded (set SINK_ENABLED=true for S3 upload)")
		go func() {
			for {
				ev, err := q.Dequeue(drainCtx)
				if err != nil {
					return
				}
				log.Debug().Interface("fields", ev.Fields).Msg("event drained")
			}
		}()
	}

	// ====================================================================
	// HTTP 서버 조립
	// ====================================================================
	//
	// New() 안에서 설정 불변식이 전부 검사된다.
	// TLS 재료 누락, 잘못된 codec override 등은 listener bind 이전에
	// 여기서 fatal 로 끝난다.
	// ====================================================================
	srv, err := server.New(cfg, q, m)
	if err != nil {
		log.Fatal().Err(err).Msg("server init failed")
	}

	// ====================================================================
	// Graceful Shutdown
	// ====================================================================
	//
	// SIGTERM 수신 시:
	//   1) HTTP 서버 먼저 멈추고 (신규 요청 차단, in-flight 드레인)
	//   2) sink 종료 (수집된 이벤트를 끝까지 업로드/DLQ 처리)
	//
	// 순서를 바꾸면 아직 응답 안 한 요청의 이벤트가 갈 곳을 잃는다.
	// ====================================================================
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		cancel()

		if mgr != nil {
			log.Info().Msg("stopping sink manager...")
			mgr.Shutdown()
		}
		drainCancel()
	}()

	// ====================================================================
	// 서버 시작
	// ====================================================================
	log.Info().
		Str("addr", cfg.HTTPAddr).
		Int("threads", cfg.Threads).
		Int("queue", cfg.QueueSize).
		Bool("ssl", cfg.SSL).
		Msg("ingest server listening")

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server terminated")
	}

	// 이미 종료되어 있어도 다시 호출해도 safe
	if mgr != nil {
		mgr.Shutdown()
	}
	drainCancel()
	log.Info().Msg("shutdown complete")
}
