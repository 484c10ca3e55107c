package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DownloadTokenService 归档下载令牌服务。
// 下载链接不走登录态，改用短期 JWT 限定批次和有效期。
type DownloadTokenService struct {
	secret []byte
	expire time.Duration
}

// NewDownloadTokenService 创建下载令牌服务
func NewDownloadTokenService(secret string, expire time.Duration) *DownloadTokenService {
	if expire <= 0 {
		expire = 30 * time.Minute
	}
	return &DownloadTokenService{secret: []byte(secret), expire: expire}
}

type downloadClaims struct {
	BatchID uint `json:"batch_id"`
	jwt.RegisteredClaims
}

// Issue 为批次签发下载令牌
func (s *DownloadTokenService) Issue(batchID uint) (string, error) {
	now := time.Now()
	claims := downloadClaims{
		BatchID: batchID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("batch:%d", batchID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expire)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("签发下载令牌失败: %w", err)
	}
	return signed, nil
}

// Validate 校验令牌并返回其绑定的批次 ID
func (s *DownloadTokenService) Validate(tokenString string) (uint, error) {
	claims := &downloadClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("不支持的签名算法: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || claims.BatchID == 0 {
		return 0, ErrDownloadTokenInvalid
	}
	return claims.BatchID, nil
}
