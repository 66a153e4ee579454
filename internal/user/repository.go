package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SlpAus/pollsafe-backend/internal/platform/database"
)

var (
	ErrUserNotFound = errors.New("用户不存在")
	ErrEmailTaken   = errors.New("邮箱已被使用")
)

// Repository 封装了对 users 表的读写
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create 新建一个账户，ID使用UUID v7
func (r *Repository) Create(ctx context.Context, name, email string) (*User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("无法生成UUID v7: %w", err)
	}

	u := &User{ID: id.String(), Name: strings.TrimSpace(name), Email: strings.ToLower(strings.TrimSpace(email))}
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("无法创建用户: %w", err)
	}
	return u, nil
}

// Get 按ID读取账户
func (r *Repository) Get(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("无法读取用户: %w", err)
	}
	return &u, nil
}

// DisplayName 返回账户名，供已登录投票者省略参与者名字时使用
func (r *Repository) DisplayName(ctx context.Context, id string) (string, error) {
	u, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}
