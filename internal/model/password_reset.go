package model

// PasswordReset 表示一条找回密码的一次性验证码记录。
//
// 记录在验证码被成功消费时删除；过期记录不做后台清理，
// 只在消费时惰性校验 ExpiresAt（毫秒时间戳）。
type PasswordReset struct {
	ID        uint   `gorm:"primaryKey"`                 // 记录 ID
	UserID    uint   `gorm:"not null;index"`             // 关联用户 ID
	Code      string `gorm:"type:varchar(8);not null"`   // 4 位数字验证码
	ExpiresAt int64  `gorm:"not null"`                   // 绝对过期时间（Unix 毫秒）
}
