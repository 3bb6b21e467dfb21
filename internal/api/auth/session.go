package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// CookieName 是承载会话令牌的 Cookie 名称。
const CookieName = "token"

// CookieOptions 描述会话 Cookie 的属性。
type CookieOptions struct {
	MaxAge   int
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// SessionIssuer 签发会话令牌。
//
// "记住我" 只影响令牌与 Cookie 的有效期，不写进令牌本身；
// Secure / SameSite 属性跟随运行环境：生产环境 Secure+Lax，本地 Strict，方便联调。
type SessionIssuer struct {
	codec       *Codec
	sessionTTL  time.Duration
	rememberTTL time.Duration
	production  bool
}

// NewSessionIssuer 创建会话签发器。
func NewSessionIssuer(codec *Codec, sessionTTL, rememberTTL time.Duration, production bool) *SessionIssuer {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	if rememberTTL <= 0 {
		rememberTTL = 7 * 24 * time.Hour
	}
	return &SessionIssuer{
		codec:       codec,
		sessionTTL:  sessionTTL,
		rememberTTL: rememberTTL,
		production:  production,
	}
}

// Issue 为用户签发一个会话令牌及其 Cookie 属性。
func (i *SessionIssuer) Issue(userID uint, rememberMe bool) (string, CookieOptions, error) {
	ttl := i.sessionTTL
	if rememberMe {
		ttl = i.rememberTTL
	}

	token, err := i.codec.Sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatUint(uint64(userID), 10),
		},
	}, ttl)
	if err != nil {
		return "", CookieOptions{}, err
	}

	opts := CookieOptions{
		MaxAge:   int(ttl.Seconds()),
		Secure:   i.production,
		HTTPOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if i.production {
		opts.SameSite = http.SameSiteLaxMode
	}
	return token, opts, nil
}

// SetCookie 把会话令牌写入响应 Cookie。
func SetCookie(c *gin.Context, token string, opts CookieOptions) {
	c.SetSameSite(opts.SameSite)
	c.SetCookie(CookieName, token, opts.MaxAge, "/", "", opts.Secure, opts.HTTPOnly)
}

// ClearCookie 使会话 Cookie 立即失效。
func ClearCookie(c *gin.Context) {
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
}
