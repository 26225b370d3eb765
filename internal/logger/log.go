// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"evgate-ingest/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 애플리케이션 시작 시 한 번만 호출되는 로거 초기화 함수.
// Config 설정(환경변수)에 따라 개발용 콘솔 출력 또는
// 운영용 JSON 출력으로 전환된다.
//
//  1. 로그 포맷:
//     - LOG_PRETTY=true: 색상 있는 콘솔 출력 (가독성 위주)
//     - LOG_PRETTY=false: JSON (CloudWatch 등 검색/분석 위주)
//
//  2. 공통 필드:
//     - 모든 로그에 "service", "instance" 가 자동으로 붙는다.
//     - 서버가 여러 대일 때 어느 인스턴스의 로그인지 즉시 식별 가능.
//
//  3. 샘플링 (비용 절감):
//     - LOG_SAMPLE_N > 1 이면 Debug/Info 는 N개 중 1개만 기록.
//     - Warn/Error 는 절대 버리지 않는다.
func Init(cfg config.Config) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	} else {
		w = os.Stdout
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	logger := base
	if cfg.LogSampleN > 1 {
		logger = base.Sample(&zerolog.LevelSampler{
			// Debug/Info 만 확률적으로 기록. Warn/Error 는 샘플링 없음(nil).
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}

	zlog.Logger = logger

	// 표준 라이브러리 log 를 쓰는 코드도 zerolog 설정을 따르게 한다.
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}
