// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// Config
//
// 서비스 실행 시 필요한 모든 환경 변수 값을 보관하는 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 에 의해 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 설정들이다.
type Config struct {

	// ---------------------------
	// 서버 식별자 / 네트워크
	// ---------------------------

	ServiceName string // 로그 공통 태그용 서비스 이름
	InstanceID  string // ingest 프로세스 고유 ID (호스트명 기반, 실패 시 랜덤 hex)
	HTTPAddr    string // HTTP 서버 bind 주소 (기본 ":8080")

	// ---------------------------
	// 요청 처리 파라미터
	// ---------------------------

	Threads      int   // 동시 요청 처리 슬롯 수 (admission 한도)
	MaxBodySize  int64 // 단일 HTTP 요청 body 최대 크기 (바이트)
	QueueSize    int   // downstream 이벤트 큐(bounded) 용량
	ResponseCode int   // 성공 응답 코드 (200 또는 201)

	// ---------------------------
	// TLS
	// ---------------------------
	// SSL=true 인 경우 인증서/키 파일이 모두 있어야 한다.
	// 둘 중 하나라도 비어 있으면 Validate() 가 즉시 실패하며,
	// listener 는 bind 되지 않는다 (요청 시점 오류 금지).

	SSL            bool   // TLS 활성화 여부
	SSLCertificate string // PEM 인증서 파일 경로
	SSLKey         string // PEM 개인키 파일 경로

	// ---------------------------
	// 인증 (basic auth)
	// ---------------------------
	// 둘 다 비어 있으면 인증 없이 모든 요청 통과.

	AuthUser     string
	AuthPassword string

	// ---------------------------
	// codec / 응답 커스터마이즈
	// ---------------------------

	AdditionalCodecs map[string]string // content-type → codec id (기본 매핑을 entry 단위로 완전 대체)
	ResponseHeaders  map[string]string // 모든 응답에 병합되는 고정 헤더

	// ---------------------------
	// 로깅
	// ---------------------------

	LogLevel   string // zerolog 레벨 문자열 (debug/info/warn/error)
	LogPretty  bool   // true 면 컬러 콘솔 출력 (개발용)
	LogSampleN uint32 // Debug/Info 샘플링 비율 (N개 중 1개 기록, 0/1 = 전부)

	// ---------------------------
	// Sink (S3 배치 업로드, 선택)
	// ---------------------------
	// SinkEnabled=false 면 아래 값들은 무시되고,
	// 큐를 비우는 책임은 embedding 쪽 consumer 에게 있다.

	SinkEnabled bool

	AWSRegion string // AWS 리전 (예: ap-northeast-2)
	RawBucket string // 수집 데이터가 저장될 S3 버킷 이름
	RawPrefix string // RAW 데이터 저장 경로 prefix (예: raw/)
	DLQPrefix string // DLQ 데이터 저장 경로 prefix (예: dlq/)

	BatchSize     int           // 배치 크기 (N개 모이면 S3로 업로드)
	FlushInterval time.Duration // 배치 flush 주기 (시간 기반 flush)
	UploadQueue   int           // uploadCh 버퍼 크기

	// Retry 정책 단일화
	// --------------------------------------------
	// AWS SDK v2 기본 retry 와 코드 레벨 retry 가 겹치면
	// 처리 지연이 예측 불가능해지므로 SDK retry 는 0으로 고정하고,
	// 재시도 횟수는 애플리케이션 레벨(S3AppRetries)만 사용한다.
	// --------------------------------------------

	S3Timeout    time.Duration // 각 S3 PutObject 시도당 timeout
	S3AppRetries int           // S3 업로드 재시도 횟수 (SDK retry는 항상 0)

	DLQDir          string        // 로컬 DLQ 디렉토리 경로
	DLQMaxAge       time.Duration // DLQ 파일 TTL (초과 시 삭제)
	DLQMaxSizeBytes int64         // DLQ 전체 허용 용량 (바이트)
}

// Load
//
// 환경 변수 기반으로 Config 값을 초기화한다.
// 서버 코어는 환경 변수가 하나도 없어도 기본값으로 기동 가능해야 하므로
// (embedded endpoint 특성), 필수 env 는 sink 활성화 시에만 존재한다.
// 형식이 잘못된 env 는 즉시 프로세스를 종료(fail-fast).
func Load() Config {
	cfg := Config{
		ServiceName: optional("SERVICE_NAME", "evgate-ingest"),
		InstanceID:  fallbackInstanceID(),
		HTTPAddr:    optional("HTTP_ADDR", ":8080"),

		Threads:      optionalInt("THREADS", defaultThreads()),
		MaxBodySize:  optionalInt64("MAX_BODY_SIZE", 10*1024*1024),
		QueueSize:    optionalInt("QUEUE_SIZE", 1024),
		ResponseCode: optionalInt("RESPONSE_CODE", 200),

		SSL:            optionalBool("SSL", false),
		SSLCertificate: os.Getenv("SSL_CERTIFICATE"),
		SSLKey:         os.Getenv("SSL_KEY"),

		AuthUser:     os.Getenv("AUTH_USER"),
		AuthPassword: os.Getenv("AUTH_PASSWORD"),

		AdditionalCodecs: optionalMap("ADDITIONAL_CODECS"),
		ResponseHeaders:  optionalMap("RESPONSE_HEADERS"),

		LogLevel:   optional("LOG_LEVEL", "info"),
		LogPretty:  optionalBool("LOG_PRETTY", false),
		LogSampleN: uint32(optionalInt("LOG_SAMPLE_N", 0)),

		SinkEnabled: optionalBool("SINK_ENABLED", false),
	}

	// sink 가 켜진 경우에만 AWS 관련 값이 필수가 된다.
	if cfg.SinkEnabled {
		cfg.AWSRegion = must("AWS_REGION")
		cfg.RawBucket = must("RAW_BUCKET")
		cfg.RawPrefix = must("RAW_PREFIX")
		cfg.DLQPrefix = must("DLQ_PREFIX")

		cfg.BatchSize = optionalInt("BATCH_SIZE", 500)
		cfg.FlushInterval = optionalDur("FLUSH_INTERVAL", 5*time.Second)
		cfg.UploadQueue = optionalInt("UPLOAD_QUEUE", 8)

		cfg.S3Timeout = optionalDur("S3_TIMEOUT", 5*time.Second)
		cfg.S3AppRetries = optionalInt("S3_APP_RETRIES", 3)

		cfg.DLQDir = optional("DLQ_DIR", "/tmp/evgate-dlq")
		cfg.DLQMaxAge = optionalDur("DLQ_MAX_AGE", 24*time.Hour)
		cfg.DLQMaxSizeBytes = optionalInt64("DLQ_MAX_SIZE_BYTES", 256*1024*1024)
	}

	return cfg
}

// Validate
//
// 기동 전 설정 불변식 검사.
// 여기서 걸리는 오류는 전부 ConfigurationError 성격이며,
// listener bind 이전에 호출되어야 한다 (요청 시점에 터지면 안 됨).
func (c Config) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("threads must be >= 1, got %d", c.Threads)
	}
	if c.MaxBodySize < 1 {
		return fmt.Errorf("max body size must be >= 1, got %d", c.MaxBodySize)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be >= 1, got %d", c.QueueSize)
	}
	if c.ResponseCode != 200 && c.ResponseCode != 201 {
		return fmt.Errorf("response code must be 200 or 201, got %d", c.ResponseCode)
	}

	// TLS 불변식: 켜려면 인증서/키 둘 다 있어야 한다.
	if c.SSL && (c.SSLCertificate == "" || c.SSLKey == "") {
		return errors.New("ssl enabled but certificate or key is missing")
	}

	// 자격증명은 쌍으로만 의미가 있다.
	if (c.AuthUser == "") != (c.AuthPassword == "") {
		return errors.New("auth user and password must be set together")
	}

	return nil
}

// must / optional* 계열
//
// 공통 패턴.
// 필수 환경변수가 없거나 형식이 잘못되면 즉시 로그 출력 후 종료(fail-fast).
// 런타임 중 설정 오류를 겪지 않도록 하기 위한 보호 전략.
func must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing required env: %s", key)
	}
	return v
}

func optional(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func optionalInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func optionalInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid int64 env %s=%q: %v", key, v, err)
	}
	return n
}

func optionalBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool env %s=%q: %v", key, v, err)
	}
	return b
}

func optionalDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

// optionalMap
//
// map 형태 설정은 env 하나에 JSON 객체로 담는다.
// 예: ADDITIONAL_CODECS='{"application/json":"plain"}'
//
//	RESPONSE_HEADERS='{"X-Collector":"evgate"}'
func optionalMap(key string) map[string]string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	m := make(map[string]string)
	if err := json.Unmarshal([]byte(v), &m); err != nil {
		log.Fatalf("invalid json map env %s=%q: %v", key, v, err)
	}
	return m
}

// defaultThreads
//
// threads 미지정 시 기본값.
// CPU 바운드(decode) + 블로킹(enqueue) 이 섞이므로 코어수보다 여유 있게.
func defaultThreads() int {
	n := runtime.NumCPU() * 4
	if n < 4 {
		n = 4
	}
	return n
}

// fallbackInstanceID
//
// 이 ingest 서버 인스턴스를 식별하는 고유 값.
//   - 기본: hostname (ECS/Fargate에서는 task-id 형태로 고유)
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	// 랜덤 6바이트 → 12자리 hex
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
