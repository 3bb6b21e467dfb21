package auth

import "errors"

var (
	ErrDuplicateEmail     = errors.New("user already exists")
	ErrMissingToken       = errors.New("token not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrInvalidCredentials = errors.New("invalid email or password") // 未知邮箱与错误密码共用，防止枚举
	ErrUserNotFound       = errors.New("user not found")
	ErrResetNotFound      = errors.New("invalid or expired code")
	ErrCodeExpired        = errors.New("code has expired")
	ErrSamePassword       = errors.New("new password must be different from the old one")
	ErrMissingInput       = errors.New("code and new password are required")
	ErrNotAuthenticated   = errors.New("please login to continue")
)
