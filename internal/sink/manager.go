// internal/sink/manager.go
package sink

import (
	"bytes"
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"evgate-ingest/internal/config"
	"evgate-ingest/internal/metrics"
	"evgate-ingest/internal/model"
	"evgate-ingest/internal/queue"
)

// Manager 는 downstream consumer 의 레퍼런스 구현이다.
// 수집 큐(queue.Source)에서 이벤트를 꺼내 배치로 묶고
//   - gzip+JSONL 인코딩
//   - S3 업로드 (실패 시 로컬 DLQ 저장 + 재업로드)
//
// 하는 전체 흐름을 제어한다.
//
// 큐에서 이벤트를 꺼내는 속도가 곧 서버의 배압을 결정한다:
// 여기가 느려지면 큐가 차고, 큐가 차면 worker 들이 enqueue 에
// 블록되고, 신규 요청은 429 를 받는다. 그 연쇄가 설계의 전부다.
//
// 주요 구성:
//   - collectLoop: 큐에서 dequeue → BatchSize 또는 FlushInterval 마다 flush
//   - uploadCh: 인코딩/업로드 작업 큐
//   - uploadLoop: 실제 업로드 및 DLQ 처리 담당
//
// graceful shutdown 을 지원하며, 진행 중인 배치 처리가 끝나야 종료된다.
type Manager struct {
	cfg     config.Config
	metrics *metrics.Metrics
	src     queue.Source

	uploader Uploader
	dlq      *DLQManager
	encoder  *Encoder

	uploadCh chan model.UploadJob

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager 는 S3Uploader · DLQManager · Encoder 를 초기화한다.
// src 는 서버가 채우는 수집 큐다.
func NewManager(cfg config.Config, m *metrics.Metrics, src queue.Source) *Manager {
	uploader := NewS3Uploader(cfg, m)
	return newManager(cfg, m, src, uploader)
}

// newManager 는 uploader 주입이 가능한 내부 생성자 (테스트 전용 진입점).
func newManager(cfg config.Config, m *metrics.Metrics, src queue.Source, uploader Uploader) *Manager {
	return &Manager{
		cfg:      cfg,
		metrics:  m,
		src:      src,
		uploader: uploader,
		dlq:      NewDLQManager(cfg, m, uploader),
		encoder:  NewEncoder(),
		uploadCh: make(chan model.UploadJob, cfg.UploadQueue),
	}
}

// Start 는 두 개의 주요 goroutine 을 실행한다.
//   - collectLoop: 이벤트를 batch 로 모아서 uploadCh 로 전달
//   - uploadLoop: batch 인코딩 + S3 업로드 + DLQ 처리
func (m *Manager) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(2)
	go m.collectLoop()
	go m.uploadLoop()
}

// Shutdown 은 모든 goroutine 이 완료될 때까지 대기한다.
// 서버 Shutdown 이후에 호출해야 수집된 이벤트가 끝까지 흘러간다.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		m.cancel()
	})
	m.wg.Wait()
}

// collectLoop 는 큐에서 이벤트를 읽어 batch 로 묶는다.
// BatchSize 도달 또는 FlushInterval 타이머 만료 시 uploadCh 에 전달한다.
//
// flush() 는 항상 새로운 batch slice 를 생성하여
// 재사용으로 인한 데이터 오염을 방지한다.
func (m *Manager) collectLoop() {
	defer m.wg.Done()
	defer close(m.uploadCh)

	batch := make([]*model.Event, 0, m.cfg.BatchSize)
	timer := time.NewTimer(m.cfg.FlushInterval)
	defer timer.Stop()

	reset := func() {
		// 타이머가 이미 만료된 상태면 drain
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.cfg.FlushInterval)
	}

	flush := func() {
		if len(batch) > 0 {
			m.uploadCh <- model.UploadJob{Events: batch}
			// 새로운 slice 로 교체 (기존 slice 재사용 금지)
			batch = make([]*model.Event, 0, m.cfg.BatchSize)
			reset()
		}
	}

	// dequeue 는 별도 goroutine 없이 timer 와 select 로 다루기 위해
	// 짧은 timeout ctx 대신 이벤트 채널화한다.
	events := make(chan *model.Event)
	go func() {
		defer close(events)
		for {
			ev, err := m.src.Dequeue(m.ctx)
			if err != nil {
				return // ctx 취소 = shutdown
			}
			events <- ev
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// shutdown → 남은 batch 도 업로드 시도
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= m.cfg.BatchSize {
				flush()
			}

		case <-timer.C:
			// FlushInterval 도달 → batch 업로드
			flush()
			reset()
		}
	}
}

// uploadLoop 는 uploadCh 에서 batch 를 받아
//  1. gzip+JSONL 인코딩
//  2. S3 업로드 (실패 시 DLQ 저장)
//  3. DLQ 재업로드 (starvation 방지를 위해 배치당 최소 3건)
//
// 를 수행한다.
//
// 종료 조건은 "uploadCh 가 닫힘" 하나뿐이다. collectLoop 가 마지막
// flush 후에 닫으므로, ctx 취소를 여기서 따로 보면 마지막 배치를
// 받아줄 곳이 없어진다 (flush 가 영원히 블록).
func (m *Manager) uploadLoop() {
	defer m.wg.Done()

	for {
		select {
		case job, ok := <-m.uploadCh:
			if !ok {
				log.Println("[INFO] uploader exiting")
				return
			}

			m.processUpload(m.ctx, job)

			for i := 0; i < 3; i++ {
				m.dlq.ProcessOneCtx(m.ctx)
			}

		default:
			// idle 시에도 DLQ 재업로드 진행
			for i := 0; i < 3; i++ {
				m.dlq.ProcessOneCtx(m.ctx)
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// processUpload 는 하나의 이벤트 배치를 처리한다.
//  1. 인코딩 실패 → 원본 JSONL 을 raw_dlq 로 best-effort 업로드
//  2. S3 업로드 실패 → 로컬 DLQ 저장
//  3. 성공 시 metrics 업데이트
func (m *Manager) processUpload(ctx context.Context, job model.UploadJob) {
	if len(job.Events) == 0 {
		return
	}

	data, err := m.encoder.EncodeBatchJSONLGZ(job.Events)
	if err != nil {
		// 인코딩 실패는 매우 드문 경우 → message 필드만이라도 건져서
		// raw 텍스트로 S3 raw_dlq 에 업로드
		atomic.AddInt64(&m.metrics.S3PutErrorsTotal, 1)

		var buf bytes.Buffer
		for _, ev := range job.Events {
			buf.WriteString(ev.Message())
			buf.WriteByte('\n')
		}

		key := BuildS3Key(m.cfg.DLQPrefix, NewFilename(m.cfg.InstanceID))
		_ = m.uploader.UploadBytesWithRetryCtx(ctx, key, buf.Bytes()) // best-effort
		atomic.AddInt64(&m.metrics.DLQEventsEnqueuedTotal, int64(len(job.Events)))
		return
	}

	key := BuildS3Key(m.cfg.RawPrefix, NewFilename(m.cfg.InstanceID))

	if err := m.uploader.UploadBytesWithRetryCtx(ctx, key, data); err != nil {
		// 업로드 실패 → 로컬 DLQ 로 저장
		if err2 := m.dlq.Save(data, len(job.Events)); err2 != nil {
			log.Printf("[ERROR] local DLQ save failed: %v", err2)
		}
	} else {
		atomic.AddInt64(&m.metrics.S3EventsStoredTotal, int64(len(job.Events)))
	}
}
