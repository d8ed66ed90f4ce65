package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const audienceConfirm = "email-confirmation"

// ErrInvalidToken 确认令牌无法验证（格式错误、签名错误、audience 不符或已过期）
var ErrInvalidToken = errors.New("invalid confirmation token")

// ConfirmClaims 绑定账号 id 与注册时间
type ConfirmClaims struct {
	UserID       string
	RegisteredAt time.Time
}

type ClaimCodec interface {
	Issue(userID string, registeredAt time.Time) (string, error)
	Verify(token string) (ConfirmClaims, error)
}

type confirmJWT struct {
	RegisteredAtMs int64 `json:"rat"`
	jwt.RegisteredClaims
}

// ConfirmCodec 注册确认令牌；业务有效期由 service 判断，TTL 只是编解码层的兜底
type ConfirmCodec struct {
	Secret []byte
	Issuer string
	TTL    time.Duration // 0 表示令牌本身不过期
	Now    func() time.Time
}

func (c *ConfirmCodec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *ConfirmCodec) Issue(userID string, registeredAt time.Time) (string, error) {
	if userID == "" {
		return "", errors.New("confirm token: empty user id")
	}
	now := c.now()
	rc := jwt.RegisteredClaims{
		Issuer:   c.Issuer,
		Subject:  userID,
		Audience: jwt.ClaimStrings{audienceConfirm},
		IssuedAt: jwt.NewNumericDate(now),
	}
	if c.TTL > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(c.TTL))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, confirmJWT{
		RegisteredAtMs:   registeredAt.UTC().UnixMilli(),
		RegisteredClaims: rc,
	})
	return token.SignedString(c.Secret)
}

func (c *ConfirmCodec) Verify(token string) (ConfirmClaims, error) {
	var cl confirmJWT
	t, err := jwt.ParseWithClaims(token, &cl, func(t *jwt.Token) (interface{}, error) {
		return c.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.Issuer),
		jwt.WithAudience(audienceConfirm),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return ConfirmClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid || cl.Subject == "" || cl.RegisteredAtMs == 0 {
		return ConfirmClaims{}, ErrInvalidToken
	}
	return ConfirmClaims{
		UserID:       cl.Subject,
		RegisteredAt: time.UnixMilli(cl.RegisteredAtMs).UTC(),
	}, nil
}
