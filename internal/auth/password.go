package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// 口令长度限制。bcrypt 只使用前 72 个字节，超出部分直接拒绝而不是静默截断。
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)
	ErrPasswordBlank    = errors.New("password must not be blank")
)

// passwordCost 在测试中可以调低。
var passwordCost = bcrypt.DefaultCost

// 账号不存在时也做一次比较，使登录耗时不暴露邮箱是否注册。
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("resumecanvas-placeholder"), passwordCost)
	return h
})

// ValidatePassword 检查口令是否满足最低要求。
func ValidatePassword(password string) error {
	switch {
	case strings.TrimSpace(password) == "":
		return ErrPasswordBlank
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword 校验口令后生成 bcrypt 哈希。
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// VerifyPassword 比较口令与哈希。hash 为空表示账号不存在，结果恒为 false。
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NormalizeEmail 统一邮箱的大小写与首尾空白，账号按规范化后的邮箱唯一。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
