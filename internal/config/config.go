package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Assets   AssetsConfig   `json:"assets"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env               string        `json:"env"`                 // 运行环境: local / production
	LogLevel          string        `json:"log_level"`           // 日志级别: debug / info / warn / error
	HTTPAddr          string        `json:"http_addr"`           // API 服务监听地址
	ActivationURLBase string        `json:"activation_url_base"` // 激活链接前缀（邮件中使用）
	ActivationTTL     time.Duration `json:"activation_ttl"`      // 激活令牌有效期（如 "5m"）
	SessionTTL        time.Duration `json:"session_ttl"`         // 普通会话有效期（如 "24h"）
	RememberTTL       time.Duration `json:"remember_ttl"`        // 记住我会话有效期（如 "168h"）
	ResetCodeTTL      time.Duration `json:"reset_code_ttl"`      // 找回密码验证码有效期（如 "1h"）

	// Redis Streams 邮件队列配置
	EnableMailQueue bool   `json:"enable_mail_queue"` // 是否启用异步邮件队列（开关）
	MailQueueStream string `json:"mail_queue_stream"` // Redis Stream 名称
	MailQueueGroup  string `json:"mail_queue_group"`  // Consumer Group 名称
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件发送配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// AssetsConfig 头像资源站配置。
type AssetsConfig struct {
	UploadURL string        `json:"upload_url"` // 上传接口地址
	APIKey    string        `json:"api_key"`    // 接口密钥
	Folder    string        `json:"folder"`     // 资源目录（如 "avatars"）
	Timeout   time.Duration `json:"timeout"`    // 上传超时（如 "10s"）
}

// SecurityConfig 安全相关配置。
//
// 会话令牌与激活令牌使用各自独立的签名密钥，
// 任一密钥泄露都不能伪造另一类令牌。
type SecurityConfig struct {
	JWTSecret        string `json:"jwt_secret"`        // 会话令牌签名密钥
	ActivationSecret string `json:"activation_secret"` // 激活令牌签名密钥
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
// 环境变量始终优先覆盖文件内容。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		// 即使没有配置文件，也允许环境变量覆盖默认值
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:               "local",
			LogLevel:          "info",
			HTTPAddr:          ":8000",
			ActivationURLBase: "http://localhost:8000/activation",
			ActivationTTL:     5 * time.Minute,
			SessionTTL:        24 * time.Hour,
			RememberTTL:       7 * 24 * time.Hour,
			ResetCodeTTL:      time.Hour,

			// 邮件队列默认关闭，渐进式升级
			EnableMailQueue: false,
			MailQueueStream: "accounthub:mail:queue",
			MailQueueGroup:  "mailer_group",
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/accounthub?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
		},
		Assets: AssetsConfig{
			UploadURL: "",
			APIKey:    "",
			Folder:    "avatars",
			Timeout:   10 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:        "dev_secret_change_me",
			ActivationSecret: "dev_activation_secret_change_me",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.ActivationURLBase == "" {
		cfg.App.ActivationURLBase = defaults.App.ActivationURLBase
	}
	if cfg.App.ActivationTTL == 0 {
		cfg.App.ActivationTTL = defaults.App.ActivationTTL
	}
	if cfg.App.SessionTTL == 0 {
		cfg.App.SessionTTL = defaults.App.SessionTTL
	}
	if cfg.App.RememberTTL == 0 {
		cfg.App.RememberTTL = defaults.App.RememberTTL
	}
	if cfg.App.ResetCodeTTL == 0 {
		cfg.App.ResetCodeTTL = defaults.App.ResetCodeTTL
	}
	if cfg.App.MailQueueStream == "" {
		cfg.App.MailQueueStream = defaults.App.MailQueueStream
	}
	if cfg.App.MailQueueGroup == "" {
		cfg.App.MailQueueGroup = defaults.App.MailQueueGroup
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Assets.Folder == "" {
		cfg.Assets.Folder = defaults.Assets.Folder
	}
	if cfg.Assets.Timeout == 0 {
		cfg.Assets.Timeout = defaults.Assets.Timeout
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.ActivationSecret == "" {
		cfg.Security.ActivationSecret = defaults.Security.ActivationSecret
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_dsn", "DB_DSN")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET_KEY")
	_ = viper.BindEnv("activation_secret", "ACTIVATION_SECRET")
	_ = viper.BindEnv("assets_api_key", "ASSETS_API_KEY")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_ACTIVATION_URL_BASE"); v != "" {
		cfg.App.ActivationURLBase = v
	}
	if v := os.Getenv("APP_ACTIVATION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ActivationTTL = d
		}
	}
	if v := os.Getenv("APP_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.SessionTTL = d
		}
	}
	if v := os.Getenv("APP_REMEMBER_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.RememberTTL = d
		}
	}
	if v := os.Getenv("APP_RESET_CODE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ResetCodeTTL = d
		}
	}

	// 邮件队列环境变量
	if v := os.Getenv("APP_ENABLE_MAIL_QUEUE"); v != "" {
		cfg.App.EnableMailQueue = v == "true" || v == "1"
	}
	if v := os.Getenv("APP_MAIL_QUEUE_STREAM"); v != "" {
		cfg.App.MailQueueStream = v
	}
	if v := os.Getenv("APP_MAIL_QUEUE_GROUP"); v != "" {
		cfg.App.MailQueueGroup = v
	}

	if v := viper.GetString("db_dsn"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := os.Getenv("DB_HOST"); v != "" {
			port := getenvDefault("DB_PORT", "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host, _, _ := splitHostPort(parsed.Addr)
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := os.Getenv("DB_PASSWORD"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}

	if v := os.Getenv("ASSETS_UPLOAD_URL"); v != "" {
		cfg.Assets.UploadURL = v
	}
	if v := viper.GetString("assets_api_key"); v != "" {
		cfg.Assets.APIKey = v
	}
	if v := os.Getenv("ASSETS_FOLDER"); v != "" {
		cfg.Assets.Folder = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := viper.GetString("activation_secret"); v != "" {
		cfg.Security.ActivationSecret = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultValue
}

func splitHostPort(addr string) (string, string, bool) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], true
		}
	}
	return addr, "", false
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Passwd: "",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "accounthub",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		ActivationTTL string `json:"activation_ttl"`
		SessionTTL    string `json:"session_ttl"`
		RememberTTL   string `json:"remember_ttl"`
		ResetCodeTTL  string `json:"reset_code_ttl"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.ActivationTTL != "" {
		duration, err := time.ParseDuration(aux.ActivationTTL)
		if err != nil {
			return fmt.Errorf("invalid activation_ttl format: %w", err)
		}
		a.ActivationTTL = duration
	}
	if aux.SessionTTL != "" {
		duration, err := time.ParseDuration(aux.SessionTTL)
		if err != nil {
			return fmt.Errorf("invalid session_ttl format: %w", err)
		}
		a.SessionTTL = duration
	}
	if aux.RememberTTL != "" {
		duration, err := time.ParseDuration(aux.RememberTTL)
		if err != nil {
			return fmt.Errorf("invalid remember_ttl format: %w", err)
		}
		a.RememberTTL = duration
	}
	if aux.ResetCodeTTL != "" {
		duration, err := time.ParseDuration(aux.ResetCodeTTL)
		if err != nil {
			return fmt.Errorf("invalid reset_code_ttl format: %w", err)
		}
		a.ResetCodeTTL = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		ActivationTTL string `json:"activation_ttl"`
		SessionTTL    string `json:"session_ttl"`
		RememberTTL   string `json:"remember_ttl"`
		ResetCodeTTL  string `json:"reset_code_ttl"`
		*Alias
	}{
		ActivationTTL: a.ActivationTTL.String(),
		SessionTTL:    a.SessionTTL.String(),
		RememberTTL:   a.RememberTTL.String(),
		ResetCodeTTL:  a.ResetCodeTTL.String(),
		Alias:         (*Alias)(&a),
	})
}
