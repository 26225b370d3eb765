// internal/sink/timecache.go
package sink

import (
	"sync/atomic"
	"time"
)

//
// timecache.go
// ------------------------------------------------------------
// 매초 현재 UTC epoch seconds 와 날짜/시간 파티션 문자열을 캐싱한다.
//
// sink 는 초당 수천 개 이벤트의 파일명/파티션 계산을 하므로
// 매번 time.Now() 를 호출하지 않고 1초 ticker 로 캐싱해
// 초 단위 정밀도만 유지한다.
//
// 사용처:
//   - DLQ/RAW 파일명 prefix (TTL 판단 기준)
//   - S3 파티션 prefix (dt=YYYY-MM-DD / hr=HH, UTC 기준)
// ------------------------------------------------------------

var (
	unixSec atomic.Int64

	dtVal atomic.Value // "YYYY-MM-DD"
	hrVal atomic.Value // "HH"
)

func init() {
	update()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for range ticker.C {
			update()
		}
	}()
}

func update() {
	now := time.Now().UTC()
	unixSec.Store(now.Unix())
	dtVal.Store(now.Format("2006-01-02"))
	hrVal.Store(now.Format("15"))
}

// Unix returns current UTC epoch seconds (cached, 1-second precision).
func Unix() int64 {
	return unixSec.Load()
}

// DT returns "YYYY-MM-DD" (UTC).
func DT() string {
	return dtVal.Load().(string)
}

// HR returns "HH" (UTC).
func HR() string {
	return hrVal.Load().(string)
}
