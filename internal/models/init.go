package models

import (
	"strings"

	"github.com/veritag-api/internal/logger"

	"golang.org/x/crypto/bcrypt"
)

// InitDefaultUser 初始化默认运营账号
func InitDefaultUser(email, password string) error {
	var count int64
	DB.Model(&User{}).Count(&count)
	if count > 0 {
		return nil
	}

	if strings.TrimSpace(email) == "" {
		email = "ops@veritag.local"
	}
	if password == "" {
		password = "veritag123"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := User{
		Name:         "Operator",
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
	}
	if err := DB.Create(&user).Error; err != nil {
		return err
	}

	if password == "veritag123" {
		logger.Warnw("default_user_created_with_default_password", "email", user.Email)
		logger.Warnw("default_user_password_change_required", "email", user.Email)
	} else {
		logger.Warnw("default_user_created", "email", user.Email, "password_hidden", true)
	}
	return nil
}
