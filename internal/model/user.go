package model

import "time"

// User 表示系统用户。
//
// Password 字段保存 bcrypt 哈希，JSON 序列化时永远不会输出；
// 登录 / 改密等需要比对口令的查询必须显式 Select 该列（见 auth.UserStore）。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`                       // 用户 ID
	Name      string    `gorm:"not null" json:"name"`                       // 用户名
	Email     string    `gorm:"type:varchar(191);uniqueIndex" json:"email"` // 邮箱（唯一）
	Password  string    `gorm:"not null" json:"-"`                          // bcrypt 哈希，默认投影排除
	Role      string    `gorm:"type:varchar(16);default:user" json:"role"`  // 角色，默认 "user"
	AvatarID  string    `gorm:"type:varchar(191)" json:"avatar_id"`         // 头像在资源站的 public_id
	AvatarURL string    `gorm:"type:varchar(512)" json:"avatar_url"`        // 头像访问 URL
	CreatedAt time.Time `json:"created_at"`                                 // 创建时间
}
