package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"accounthub/internal/api/auth"
	"accounthub/internal/model"

	"github.com/gin-gonic/gin"
)

type stubUserStore struct {
	user *model.User
	err  error
}

func (s *stubUserStore) FindByEmail(context.Context, string) (*model.User, error) {
	return s.user, s.err
}

func (s *stubUserStore) FindByEmailWithPassword(context.Context, string) (*model.User, error) {
	return s.user, s.err
}

func (s *stubUserStore) FindByID(context.Context, uint) (*model.User, error) {
	return s.user, s.err
}

func (s *stubUserStore) FindByIDWithPassword(context.Context, uint) (*model.User, error) {
	return s.user, s.err
}

func (s *stubUserStore) Create(context.Context, *model.User) error { return nil }

func (s *stubUserStore) UpdatePassword(context.Context, uint, string) error { return nil }

func newAuthRouter(codec *auth.Codec, users auth.UserStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(codec, users), func(c *gin.Context) {
		uid, _ := c.Get("userID")
		role, _ := c.Get("role")
		c.JSON(http.StatusOK, gin.H{"success": true, "userID": uid, "role": role})
	})
	return r
}

func doGet(r *gin.Engine, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_NoCookie(t *testing.T) {
	codec := auth.NewCodec("session-secret", auth.KindSession)
	r := newAuthRouter(codec, &stubUserStore{err: auth.ErrUserNotFound})

	w := doGet(r, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_ValidCookie(t *testing.T) {
	codec := auth.NewCodec("session-secret", auth.KindSession)
	issuer := auth.NewSessionIssuer(codec, time.Hour, time.Hour, false)
	token, _, err := issuer.Issue(42, false)
	if err != nil {
		t.Fatalf("issue session failed: %v", err)
	}

	store := &stubUserStore{user: &model.User{ID: 42, Name: "alice", Email: "alice@example.com", Role: "admin"}}
	r := newAuthRouter(codec, store)

	w := doGet(r, &http.Cookie{Name: auth.CookieName, Value: token})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	codec := auth.NewCodec("session-secret", auth.KindSession)
	r := newAuthRouter(codec, &stubUserStore{})

	w := doGet(r, &http.Cookie{Name: auth.CookieName, Value: "garbage"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAuthMiddleware_ActivationTokenRejected(t *testing.T) {
	// 激活令牌不能当会话令牌使
	sessionCodec := auth.NewCodec("same-secret", auth.KindSession)
	activationCodec := auth.NewCodec("same-secret", auth.KindActivation)
	token, err := activationCodec.Sign(auth.Claims{User: &auth.PendingUser{Email: "alice@example.com"}}, time.Hour)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	r := newAuthRouter(sessionCodec, &stubUserStore{})
	w := doGet(r, &http.Cookie{Name: auth.CookieName, Value: token})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAuthMiddleware_DeletedUser(t *testing.T) {
	codec := auth.NewCodec("session-secret", auth.KindSession)
	issuer := auth.NewSessionIssuer(codec, time.Hour, time.Hour, false)
	token, _, err := issuer.Issue(42, false)
	if err != nil {
		t.Fatalf("issue session failed: %v", err)
	}

	r := newAuthRouter(codec, &stubUserStore{err: auth.ErrUserNotFound})
	w := doGet(r, &http.Cookie{Name: auth.CookieName, Value: token})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
