package tools

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IsTokenExpired 检查 wplace 会话 JWT 是否已过期或即将过期。
// 不校验签名（密钥在服务端），只取 exp；解析失败一律按过期处理。
// ahead 为提前量，token 剩余有效期不足 ahead 时视为过期。
func IsTokenExpired(token string, ahead time.Duration) bool {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return time.Until(exp.Time) < ahead
}
