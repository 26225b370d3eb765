// internal/server/remote.go
package server

import (
	"net"
	"net/http"
	"strings"
)

// ------------------------------------------------------------
// Remote peer 주소 추출.
//
// 이벤트의 "host" 필드는 항상 채워져야 하므로,
// proxy 헤더에서 public IP 를 찾지 못하면 RemoteAddr 를
// private 주소라도 그대로 사용한다.
//
// 우선순위:
//  1. X-Forwarded-For → 첫 번째 public IP (LB 뒤 배치 대응)
//  2. RemoteAddr (port 제거)
// ------------------------------------------------------------

// isPublicIP:
//   - private / loopback / link-local 등이 아닌 경우 true
//   - X-Forwarded-For 에서 내부 hop 을 제외하기 위해 필요
func isPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsPrivate() {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	return true
}

// safeParseIP:
//   - 공백/빈 값 대응, 잘못된 값이면 nil
func safeParseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

// remoteHost 는 이벤트 host 필드에 넣을 peer 주소를 추출한다.
func remoteHost(r *http.Request) string {

	// 1) X-Forwarded-For (LB/프록시 뒤에 있는 경우)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// 예: "203.0.113.1, 10.0.1.24"
		for _, part := range strings.Split(xff, ",") {
			ip := safeParseIP(part)
			if isPublicIP(ip) {
				return ip.String()
			}
		}
	}

	// 2) RemoteAddr fallback — private 주소라도 host 는 항상 채운다.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
