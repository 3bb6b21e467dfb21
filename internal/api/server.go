package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"accounthub/internal/api/auth"
	"accounthub/internal/api/middleware"
	"accounthub/internal/config"
	"accounthub/internal/model"
	"accounthub/internal/pkg/assets"
	"accounthub/internal/pkg/mailqueue"
	"accounthub/internal/pkg/metrics"
	"accounthub/internal/pkg/notify"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、认证处理器以及 Gin 路由引擎。
type Server struct {
	cfg          *config.Config
	logger       *slog.Logger
	db           *gorm.DB
	rdb          *redis.Client
	router       *gin.Engine
	auth         *auth.Handler
	users        auth.UserStore
	sessionCodec *auth.Codec
	mailConsumer *mailqueue.Consumer
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 组装认证处理器（令牌编解码、会话签发、邮件与头像上传）
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.PasswordReset{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	metrics.InitMetrics()

	smtpMailer := notify.NewEmailNotifier(&cfg.Email, logger)

	// 邮件发送方式：默认同步 SMTP；开启队列后改为入队，由 Consumer 投递
	var mailer notify.Mailer = smtpMailer
	var mailConsumer *mailqueue.Consumer
	if cfg.App.EnableMailQueue {
		mailer = mailqueue.NewProducer(rdb, logger, cfg.App.MailQueueStream)
		mailConsumer, err = mailqueue.NewConsumer(rdb, smtpMailer, logger,
			cfg.App.MailQueueStream, cfg.App.MailQueueGroup, "")
		if err != nil {
			return nil, err
		}
	}

	users := auth.NewUserStore(db)
	resets := auth.NewResetStore(db)
	uploader := assets.NewHTTPUploader(&cfg.Assets)

	activationCodec := auth.NewCodec(cfg.Security.ActivationSecret, auth.KindActivation)
	sessionCodec := auth.NewCodec(cfg.Security.JWTSecret, auth.KindSession)
	sessions := auth.NewSessionIssuer(sessionCodec, cfg.App.SessionTTL, cfg.App.RememberTTL, cfg.App.Env == "production")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		rdb:          rdb,
		router:       r,
		users:        users,
		sessionCodec: sessionCodec,
		mailConsumer: mailConsumer,
		auth: auth.NewHandler(
			users, resets, uploader, mailer,
			activationCodec, sessions, logger,
			cfg.App.ActivationURLBase,
			cfg.App.ActivationTTL, cfg.App.ResetCodeTTL,
		),
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartMailConsumer 启动邮件投递循环（仅在队列开启时有事可做）。
func (s *Server) StartMailConsumer(ctx context.Context) {
	if s.mailConsumer == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in mail consumer", slog.Any("panic", r))
			}
		}()
		s.mailConsumer.Run(ctx)
	}()
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/create-user", s.auth.CreateUser)
	s.router.POST("/activation", s.auth.Activate)
	s.router.POST("/login-user", s.auth.Login)
	s.router.POST("/request-password-reset", s.auth.RequestPasswordReset)
	// 不要求登录：邮箱里的验证码就是身份证明
	s.router.POST("/reset-password", s.auth.ResetPassword)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.sessionCodec, s.users))
	authed.GET("/me", s.auth.Me)
	authed.POST("/logout", s.auth.Logout)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
