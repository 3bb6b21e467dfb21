package auth

import "golang.org/x/crypto/bcrypt"

// bcryptCost 与原有账户数据保持一致，修改会让旧哈希无法升级。
const bcryptCost = 10

// HashPassword 生成口令的 bcrypt 哈希。
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 校验明文口令与哈希是否匹配。
//
// 只返回布尔值，不区分失败原因，比对由 bcrypt 自身完成。
func CheckPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
