package repository

import (
	"context"
	"errors"

	"github.com/linkpulse/linkpulse/internal/app/model"
	"gorm.io/gorm"
)

// ErrUserNotFound signals that the requested user does not exist.
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines the data access contract for link owners.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a GORM-backed UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
