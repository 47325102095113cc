package auth

import (
	"golang.org/x/crypto/bcrypt"

	xerrors "IVA-Bank/internal/errors"
)

const (
	defaultCost = bcrypt.DefaultCost
	// bcrypt 只使用前 72 字节。
	maxPasswordBytes = 72
)

// HashPassword 使用默认成本生成 bcrypt 哈希，供种子数据等场景复用。
func HashPassword(password string) (string, error) {
	return hashPassword(password, defaultCost)
}

func hashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(truncate(password), cost)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Password could not be hashed")
	}
	return string(hashed), nil
}

func verifyPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), truncate(password)) == nil
}

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
