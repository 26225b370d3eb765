// internal/queue/queue.go
package queue

import (
	"context"

	"evgate-ingest/internal/model"
)

// ------------------------------------------------------------
// downstream bounded queue 계약.
//
// 코어가 downstream 에 요구하는 것은 두 가지뿐이다:
//   - push 는 가득 차면 block 한다 (조용히 drop 하지 않는다)
//   - push 성공 시 이벤트 소유권이 넘어간다
//
// 이 blocking 이 backpressure 전파의 핵심 경로다: enqueue 에 막힌
// worker 는 슬롯을 계속 점유하고, 슬롯 고갈은 admission 에서 429 로
// 드러난다. 큐 깊이를 직접 조회하는 probe 는 필요 없다.
// ------------------------------------------------------------

// Queue 는 서버가 의존하는 최소 인터페이스.
// 테스트에서는 instrumented 구현으로 대체한다.
type Queue interface {
	// Enqueue 는 공간이 날 때까지 block 한다.
	// ctx 취소(서버 종료/클라이언트 이탈)시에만 오류를 반환한다.
	Enqueue(ctx context.Context, ev *model.Event) error
}

// Source 는 consumer 측 인터페이스. sink 가 사용한다.
type Source interface {
	// Dequeue 는 이벤트가 생길 때까지 block 한다.
	// ctx 취소 시 ctx.Err() 를 반환한다.
	Dequeue(ctx context.Context) (*model.Event, error)
}

// Chan 은 buffered channel 기반 기본 구현.
// Go 의 bounded blocking queue 는 곧 buffered chan 이므로
// 계약을 감싸는 것 이상을 하지 않는다.
type Chan struct {
	ch chan *model.Event
}

func NewChan(capacity int) *Chan {
	if capacity < 1 {
		capacity = 1
	}
	return &Chan{ch: make(chan *model.Event, capacity)}
}

func (q *Chan) Enqueue(ctx context.Context, ev *model.Event) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Chan) Dequeue(ctx context.Context) (*model.Event, error) {
	select {
	case ev := <-q.ch:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len / Cap 은 운영 지표 용도. 판단 로직에 쓰지 말 것
// (읽는 순간 이미 낡은 값이다).
func (q *Chan) Len() int { return len(q.ch) }
func (q *Chan) Cap() int { return cap(q.ch) }
