package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyPassword = errors.New("empty password")

// CredentialVerifier 单向哈希 + 校验
type CredentialVerifier interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type Bcrypt struct {
	Cost int // 0 使用 bcrypt.DefaultCost
}

func (b Bcrypt) Hash(pw string) (string, error) {
	if pw == "" {
		return "", ErrEmptyPassword
	}
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	return string(h), err
}

// Verify 常量时间比较由 bcrypt 保证
func (Bcrypt) Verify(pw, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(pw)) == nil
}
