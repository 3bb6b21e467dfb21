package auth

import (
	"context"
	"errors"

	"accounthub/internal/model"

	"gorm.io/gorm"
)

// publicColumns 是用户记录的默认投影，永远不包含 password。
var publicColumns = []string{"id", "name", "email", "role", "avatar_id", "avatar_url", "created_at"}

// UserStore 抽象用户记录的持久化操作。
//
// 带 WithPassword 的查询显式取回哈希列，仅用于口令比对；
// 其余查询一律使用默认投影。
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByEmailWithPassword(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByIDWithPassword(ctx context.Context, id uint) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	// UpdatePassword 是唯一的口令更新入口，调用方传入的必须已是哈希。
	UpdatePassword(ctx context.Context, id uint, hash string) error
}

// ResetStore 抽象找回密码记录的持久化操作。
type ResetStore interface {
	Create(ctx context.Context, rec *model.PasswordReset) error
	FindByCode(ctx context.Context, code string) (*model.PasswordReset, error)
	Delete(ctx context.Context, id uint) error
}

type dbUserStore struct {
	db *gorm.DB
}

// NewUserStore 创建 gorm 实现的 UserStore。
func NewUserStore(db *gorm.DB) UserStore {
	return dbUserStore{db: db}
}

func (s dbUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Select(publicColumns).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) FindByEmailWithPassword(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Select(publicColumns).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) FindByIDWithPassword(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) Create(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s dbUserStore) UpdatePassword(ctx context.Context, id uint, hash string) error {
	return s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("password", hash).Error
}

type dbResetStore struct {
	db *gorm.DB
}

// NewResetStore 创建 gorm 实现的 ResetStore。
func NewResetStore(db *gorm.DB) ResetStore {
	return dbResetStore{db: db}
}

func (s dbResetStore) Create(ctx context.Context, rec *model.PasswordReset) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s dbResetStore) FindByCode(ctx context.Context, code string) (*model.PasswordReset, error) {
	var rec model.PasswordReset
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s dbResetStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&model.PasswordReset{}, id).Error
}
