// internal/decompress/decompress.go
package decompress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"evgate-ingest/internal/pool"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// ------------------------------------------------------------
// content-encoding 해제 계층.
//
// (encoding 이름, bytes) → (해제된 bytes | 실패) 의 순수 함수다.
// 지원 encoding:
//   - gzip / x-gzip
//   - deflate (zlib wrapper 우선, raw deflate fallback — 브라우저/클라이언트
//     구현이 갈리는 지점이라 둘 다 받아준다)
//
// 그 외 값이나 헤더 부재는 전부 passthrough (이미 해제된 것으로 간주).
//
// 실패는 ErrDecompress 로 구분되는 단일 failure kind 이며,
// handler 가 이를 보고 고정 400 응답을 만든다. 부분 해제 결과는
// 절대 밖으로 내보내지 않는다.
// ------------------------------------------------------------

// ErrDecompress 는 선언된 encoding 과 실제 스트림이 맞지 않거나
// 스트림이 깨진 경우를 나타낸다. errors.Is 로 판별한다.
var ErrDecompress = errors.New("failed to decompress body")

// Decode 는 encoding 헤더 값에 따라 body 를 해제한다.
func Decode(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		return gunzip(body)
	case "deflate":
		return inflate(body)
	default:
		// identity 포함 미인식 encoding → no-op
		return body, nil
	}
}

// gunzip 은 pool 의 gzip.Reader 를 재사용해 해제한다.
func gunzip(body []byte) ([]byte, error) {
	gz := pool.GzipReaderPool.Get().(*gzip.Reader)

	if err := gz.Reset(bytes.NewReader(body)); err != nil {
		// Reset 실패한 reader 는 내부 상태를 믿을 수 없으므로 버린다.
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}

	out, err := io.ReadAll(gz)
	closeErr := gz.Close()
	pool.GzipReaderPool.Put(gz)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	if closeErr != nil {
		// CRC/footer 불일치는 Close 에서 드러난다.
		return nil, fmt.Errorf("%w: %v", ErrDecompress, closeErr)
	}
	return out, nil
}

// inflate 는 zlib wrapper 를 먼저 시도하고, header 가 아니면
// raw deflate 로 재시도한다.
func inflate(body []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err == nil {
		out, rerr := io.ReadAll(zr)
		cerr := zr.Close()
		if rerr == nil && cerr == nil {
			return out, nil
		}
		// wrapper 는 맞았는데 본문이 깨진 경우 → raw 재시도 없이 실패
		if rerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompress, rerr)
		}
		return nil, fmt.Errorf("%w: %v", ErrDecompress, cerr)
	}

	// zlib header 가 아님 → raw deflate 시도
	fr := flate.NewReader(bytes.NewReader(body))
	out, rerr := io.ReadAll(fr)
	cerr := fr.Close()
	if rerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, rerr)
	}
	if cerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, cerr)
	}
	return out, nil
}
