// internal/auth/auth.go
package auth

import (
	"crypto/subtle"
	"net/http"
)

// Gate
// ------------------------------------------------------------
// 요청당 한 번 호출되는 stateless 자격증명 검사.
//
// user/password 가 설정되지 않았으면 모든 요청 통과.
// 설정된 경우 "Authorization: Basic <base64(user:pass)>" 를 기대하며,
// 헤더 부재 / 인코딩 불량 / 자격증명 불일치는 전부 동일한 거부로
// 수렴한다 — 어느 단계에서 실패했는지 밖으로 새지 않는다.
type Gate struct {
	user     string
	password string
	enabled  bool
}

func New(user, password string) *Gate {
	return &Gate{
		user:     user,
		password: password,
		enabled:  user != "" || password != "",
	}
}

// Enabled 는 자격증명 검사가 활성화되어 있는지 반환한다.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// Allow 는 요청의 자격증명을 검사한다.
// 비교는 constant-time — 길이/내용에 따른 타이밍 차이를 만들지 않는다.
func (g *Gate) Allow(r *http.Request) bool {
	if !g.enabled {
		return true
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(g.user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(g.password)) == 1
	return userOK && passOK
}
