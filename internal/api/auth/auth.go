package auth

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"accounthub/internal/model"
	"accounthub/internal/pkg/assets"
	"accounthub/internal/pkg/metrics"
	"accounthub/internal/pkg/notify"

	"github.com/gin-gonic/gin"
)

// Handler 提供注册、激活、登录与找回密码接口。
type Handler struct {
	users      UserStore
	resets     ResetStore
	uploader   assets.Uploader
	mailer     notify.Mailer
	activation *Codec
	sessions   *SessionIssuer
	logger     *slog.Logger

	activationURLBase string
	activationTTL     time.Duration
	resetCodeTTL      time.Duration
}

// NewHandler 创建 Auth Handler。
func NewHandler(
	users UserStore,
	resets ResetStore,
	uploader assets.Uploader,
	mailer notify.Mailer,
	activation *Codec,
	sessions *SessionIssuer,
	logger *slog.Logger,
	activationURLBase string,
	activationTTL, resetCodeTTL time.Duration,
) *Handler {
	if activationTTL <= 0 {
		activationTTL = 5 * time.Minute
	}
	if resetCodeTTL <= 0 {
		resetCodeTTL = time.Hour
	}
	return &Handler{
		users:             users,
		resets:            resets,
		uploader:          uploader,
		mailer:            mailer,
		activation:        activation,
		sessions:          sessions,
		logger:            logger,
		activationURLBase: strings.TrimRight(activationURLBase, "/"),
		activationTTL:     activationTTL,
		resetCodeTTL:      resetCodeTTL,
	}
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=4"`
	Avatar   string `json:"avatar" binding:"required"`
}

type activationRequest struct {
	ActivationToken string `json:"activation_token"`
}

type loginRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type requestResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

// CreateUser 处理注册请求：上传头像、签发激活令牌并发送激活邮件。
//
// 用户此时不落库，注册内容全部装进激活令牌，
// 令牌在 /activation 被消费时才创建账户。
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	if _, err := h.users.FindByEmail(c.Request.Context(), email); err == nil {
		metrics.RegistrationRequestsTotal.WithLabelValues("duplicate").Inc()
		fail(c, http.StatusConflict, ErrDuplicateEmail.Error())
		return
	} else if !errors.Is(err, ErrUserNotFound) {
		h.logger.Error("query user failed", slog.String("email", email), slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "query user failed")
		return
	}

	// 头像先上传：此处失败不会留下任何半建状态
	asset, err := h.uploader.Upload(c.Request.Context(), req.Avatar)
	if err != nil {
		h.logger.Error("upload avatar failed", slog.String("email", email), slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "upload avatar failed")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, "hash password failed")
		return
	}

	token, err := h.activation.Sign(Claims{
		User: &PendingUser{
			Name:      strings.TrimSpace(req.Name),
			Email:     email,
			Password:  hash,
			AvatarID:  asset.PublicID,
			AvatarURL: asset.URL,
		},
	}, h.activationTTL)
	if err != nil {
		h.logger.Error("sign activation token failed", slog.String("email", email), slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "sign activation token failed")
		return
	}
	activationURL := h.activationURLBase + "/" + token

	body := notify.ActivationMailBody(req.Name, activationURL)
	if err := h.mailer.Send(c.Request.Context(), email, notify.ActivationMailSubject, body); err != nil {
		metrics.RegistrationRequestsTotal.WithLabelValues("mail_failed").Inc()
		h.logger.Error("send activation mail failed", slog.String("email", email), slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "send activation mail failed")
		return
	}

	metrics.RegistrationRequestsTotal.WithLabelValues("ok").Inc()
	h.logger.Info("activation mail sent", slog.String("email", email))
	c.JSON(http.StatusCreated, gin.H{
		"success":       true,
		"message":       "Please check your email to activate your account",
		"activationUrl": activationURL,
	})
}

// Activate 消费激活令牌并创建用户。
//
// 令牌本身不会被服务端作废：TTL 内重放只能被这里的
// 邮箱重查拦下（第二次会撞上已存在的用户）。
func (h *Handler) Activate(c *gin.Context) {
	var req activationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ActivationToken) == "" {
		fail(c, http.StatusBadRequest, ErrMissingToken.Error())
		return
	}

	claims, err := h.activation.Verify(req.ActivationToken)
	if err != nil {
		metrics.ActivationsTotal.WithLabelValues("bad_token").Inc()
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if claims.User == nil {
		metrics.ActivationsTotal.WithLabelValues("bad_token").Inc()
		fail(c, http.StatusBadRequest, ErrInvalidToken.Error())
		return
	}
	pending := claims.User

	// 重查邮箱：拦截 TTL 窗口内的并发注册与令牌重放
	if _, err := h.users.FindByEmail(c.Request.Context(), pending.Email); err == nil {
		metrics.ActivationsTotal.WithLabelValues("duplicate").Inc()
		fail(c, http.StatusConflict, ErrDuplicateEmail.Error())
		return
	} else if !errors.Is(err, ErrUserNotFound) {
		fail(c, http.StatusInternalServerError, "query user failed")
		return
	}

	user := model.User{
		Name:      pending.Name,
		Email:     pending.Email,
		Password:  pending.Password,
		Role:      "user",
		AvatarID:  pending.AvatarID,
		AvatarURL: pending.AvatarURL,
	}
	if err := h.users.Create(c.Request.Context(), &user); err != nil {
		h.logger.Error("create user failed", slog.String("email", pending.Email), slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "create user failed")
		return
	}

	token, opts, err := h.sessions.Issue(user.ID, false)
	if err != nil {
		h.logger.Error("sign session token failed", slog.String("email", user.Email), slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "sign session token failed")
		return
	}
	SetCookie(c, token, opts)

	metrics.ActivationsTotal.WithLabelValues("ok").Inc()
	h.logger.Info("account activated", slog.String("email", user.Email), slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Account activated successfully",
		"user":    user,
	})
}

// Login 校验凭据并签发会话。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	// 未知邮箱与错误密码返回完全相同的消息，避免账号枚举
	user, err := h.users.FindByEmailWithPassword(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			fail(c, http.StatusUnauthorized, ErrInvalidCredentials.Error())
			return
		}
		fail(c, http.StatusInternalServerError, "query user failed")
		return
	}
	if !CheckPassword(req.Password, user.Password) {
		metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		fail(c, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}

	token, opts, err := h.sessions.Issue(user.ID, req.RememberMe)
	if err != nil {
		h.logger.Error("sign session token failed", slog.String("email", email), slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "sign session token failed")
		return
	}
	SetCookie(c, token, opts)

	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	h.logger.Info("user logged in", slog.String("email", email), slog.Bool("remember_me", req.RememberMe))
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Login successful",
		"rememberMe": req.RememberMe,
		"user":       user,
	})
}

// Logout 清除会话 Cookie。
func (h *Handler) Logout(c *gin.Context) {
	ClearCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out"})
}

// RequestPasswordReset 生成一次性验证码并发送到用户邮箱。
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req requestResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	user, err := h.users.FindByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			metrics.PasswordResetsTotal.WithLabelValues("request", "not_found").Inc()
			fail(c, http.StatusNotFound, ErrUserNotFound.Error())
			return
		}
		fail(c, http.StatusInternalServerError, "query user failed")
		return
	}

	code, err := generateResetCode()
	if err != nil {
		fail(c, http.StatusInternalServerError, "generate code failed")
		return
	}

	rec := model.PasswordReset{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: time.Now().Add(h.resetCodeTTL).UnixMilli(),
	}
	if err := h.resets.Create(c.Request.Context(), &rec); err != nil {
		h.logger.Error("save reset code failed", slog.String("email", email), slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "save reset code failed")
		return
	}

	body := notify.ResetCodeMailBody(user.Name, code)
	if err := h.mailer.Send(c.Request.Context(), email, notify.ResetCodeMailSubject, body); err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("request", "mail_failed").Inc()
		h.logger.Error("send reset mail failed", slog.String("email", email), slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "send reset mail failed")
		return
	}

	metrics.PasswordResetsTotal.WithLabelValues("request", "ok").Inc()
	h.logger.Info("reset code sent", slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Reset code sent to your email"})
}

// ResetPassword 消费验证码并更新口令。
//
// 不要求已登录：持有邮箱里的验证码本身就是身份证明。
// 过期记录只拒绝不删除，留在库里直到下一次命中。
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Code) == "" || req.NewPassword == "" {
		fail(c, http.StatusBadRequest, ErrMissingInput.Error())
		return
	}

	rec, err := h.resets.FindByCode(c.Request.Context(), strings.TrimSpace(req.Code))
	if err != nil {
		if errors.Is(err, ErrResetNotFound) {
			metrics.PasswordResetsTotal.WithLabelValues("consume", "bad_code").Inc()
			fail(c, http.StatusBadRequest, ErrResetNotFound.Error())
			return
		}
		fail(c, http.StatusInternalServerError, "query reset code failed")
		return
	}
	if time.Now().UnixMilli() > rec.ExpiresAt {
		metrics.PasswordResetsTotal.WithLabelValues("consume", "expired").Inc()
		fail(c, http.StatusBadRequest, ErrCodeExpired.Error())
		return
	}

	user, err := h.users.FindByIDWithPassword(c.Request.Context(), rec.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			fail(c, http.StatusNotFound, ErrUserNotFound.Error())
			return
		}
		fail(c, http.StatusInternalServerError, "query user failed")
		return
	}

	// 新口令与当前口令必须不同，用哈希比对而不是与哈希串硬比
	if CheckPassword(req.NewPassword, user.Password) {
		metrics.PasswordResetsTotal.WithLabelValues("consume", "same_password").Inc()
		fail(c, http.StatusBadRequest, ErrSamePassword.Error())
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		fail(c, http.StatusInternalServerError, "hash password failed")
		return
	}
	if err := h.users.UpdatePassword(c.Request.Context(), user.ID, hash); err != nil {
		h.logger.Error("update password failed", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		fail(c, http.StatusInternalServerError, "update password failed")
		return
	}
	if err := h.resets.Delete(c.Request.Context(), rec.ID); err != nil {
		// 口令已经更新，这里不再回滚
		h.logger.Warn("delete reset code failed", slog.Uint64("record_id", uint64(rec.ID)), slog.String("error", err.Error()))
	}

	metrics.PasswordResetsTotal.WithLabelValues("consume", "ok").Inc()
	h.logger.Info("password reset", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password has been reset"})
}

// Me 返回当前会话用户（由 AuthMiddleware 注入）。
func (h *Handler) Me(c *gin.Context) {
	userVal, ok := c.Get("user")
	if !ok {
		fail(c, http.StatusUnauthorized, ErrNotAuthenticated.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": userVal})
}

// generateResetCode 均匀抽取 [1000, 9999] 内的 4 位数字验证码。
func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return strconv.Itoa(int(n.Int64()) + 1000), nil
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
