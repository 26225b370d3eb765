// internal/sink/s3_uploader.go
package sink

import (
	"bytes"
	"context"
	"io"
	"log"
	"sync/atomic"
	"time"

	"evgate-ingest/internal/config"
	"evgate-ingest/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader 는 sink 내부에서 사용하는 업로드 계약.
// 운영에서는 S3Uploader 가 구현하고, 테스트에서는 fake 로 대체한다.
type Uploader interface {
	UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error
	UploadFileWithRetryCtx(ctx context.Context, key string, f io.ReadSeeker, size int64) error
}

// S3Uploader 는 S3 업로드 기능을 담당하는 구성 요소이다.
// - JSONL.gz 바이트 업로드 (UploadBytesWithRetryCtx)
// - 로컬 DLQ 파일 업로드 (UploadFileWithRetryCtx)
//
// 모든 업로드는 컨텍스트 기반(timeout + cancel-safe)으로 이루어지며,
// 재시도(backoff) 로직을 포함한다.
type S3Uploader struct {
	cfg     config.Config
	metrics *metrics.Metrics
	client  *s3.Client
}

// NewS3Uploader 는 AWS SDK Config 를 초기화하고 S3 client 를 생성한다.
func NewS3Uploader(cfg config.Config, m *metrics.Metrics) *S3Uploader {
	return &S3Uploader{
		cfg:     cfg,
		metrics: m,
		client:  newS3Client(cfg),
	}
}

// newS3Client 는 region 등 기본 옵션을 로드한다.
// 실패 시 fatal 로그 후 즉시 종료한다 (기동 시점 fail-fast).
// SDK retry 는 0 으로 고정 — 재시도는 애플리케이션 레벨만 사용.
func newS3Client(cfg config.Config) *s3.Client {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(
		context.TODO(),
		awsCfgLib.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		log.Fatalf("[FATAL] failed to load AWS config: %v", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})
}

// UploadBytesWithRetryCtx
// -----------------------
// 메모리의 gzip+JSONL 바이트를 S3 로 업로드한다.
// - 시도당 S3Timeout, 재시도는 exponential backoff (최대 2초)
// - shutdown-safe: ctx.Done() 시 즉시 중단
//
// body 는 재시도마다 reader 를 새로 만들어야 하므로 bytes.NewReader 사용.
func (u *S3Uploader) UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= u.cfg.S3AppRetries; attempt++ {

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := u.putObject(ctx, key, bytes.NewReader(body), int64(len(body))); err == nil {
			return nil
		} else {
			lastErr = err
			atomic.AddInt64(&u.metrics.S3PutErrorsTotal, 1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}

	return lastErr
}

// UploadFileWithRetryCtx
// -----------------------
// 로컬 DLQ 파일을 그대로 S3 로 업로드한다.
// io.ReadSeeker 를 받아 재시도 시 Seek(0) 으로 rewind 한다.
func (u *S3Uploader) UploadFileWithRetryCtx(ctx context.Context, key string, f io.ReadSeeker, size int64) error {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= u.cfg.S3AppRetries; attempt++ {

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := u.putObject(ctx, key, f, size); err == nil {
			return nil
		} else {
			lastErr = err
			atomic.AddInt64(&u.metrics.S3PutErrorsTotal, 1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}

		// retry 전 파일 포인터 rewind (반드시 필요)
		f.Seek(0, io.SeekStart)
	}

	return lastErr
}

// putObject 는 실제 PutObject 1회 호출을 담당한다.
// 시도당 timeout 은 여기서 건다. retry 는 caller 의 몫.
func (u *S3Uploader) putObject(ctx context.Context, key string, body io.Reader, size int64) error {
	ctx2, cancel := context.WithTimeout(ctx, u.cfg.S3Timeout)
	defer cancel()

	_, err := u.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.RawBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})

	return err
}
