package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 令牌类别。激活令牌与会话令牌各用独立密钥签名，
// claims 中再带上 kind 标记，即使密钥被复用也无法跨流程重放。
const (
	KindActivation = "activation"
	KindSession    = "session"
)

// PendingUser 是激活令牌中携带的"待注册用户"。
//
// 它不落库，只存在于注册提交与激活之间的令牌里；
// Password 字段在签发前已经是 bcrypt 哈希。
type PendingUser struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	AvatarID  string `json:"avatar_id"`
	AvatarURL string `json:"avatar_url"`
}

// Claims 是本服务签发的全部 JWT 的载荷。
type Claims struct {
	jwt.RegisteredClaims
	Kind string       `json:"kind"`
	User *PendingUser `json:"user,omitempty"` // 仅激活令牌携带
}

// Codec 负责签发与校验某一类令牌。
type Codec struct {
	secret []byte
	kind   string
	now    func() time.Time
}

// NewCodec 创建指定类别的令牌编解码器。
func NewCodec(secret, kind string) *Codec {
	return &Codec{
		secret: []byte(secret),
		kind:   kind,
		now:    time.Now,
	}
}

// WithClock 替换时间源，测试中用来模拟时间流逝。
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Sign 将 claims 签入一个带过期时间的紧凑令牌。
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.Kind = c.kind
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify 校验令牌并返回其中的 claims。
//
// 签名不符或载荷被篡改返回 ErrInvalidToken，过期返回 ErrExpiredToken；
// 未通过校验的载荷绝不向外暴露。
func (c *Codec) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Kind != c.kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
