package bootstrap

import (
	"errors"
	"fmt"

	"biogy.com/biogyapi/internal/entity"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.Post{},
		&entity.PostComment{},
		&entity.Topic{},
		&entity.Discussion{},
		&entity.Like{},
		&entity.Notification{},
	)
}

// SeedAdminUser creates the development administrator if it does not exist.
func SeedAdminUser(db *gorm.DB, username, password string, log *zap.Logger) error {
	var existing entity.User
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		log.Info("admin user already exists, skipping seed", zap.String("username", username))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := entity.User{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         entity.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Info("admin user seeded", zap.String("username", username), zap.String("id", admin.ID.String()))
	return nil
}
