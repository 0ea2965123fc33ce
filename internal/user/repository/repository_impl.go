package repository

import (
	"github.com/smallbiznis/flagship/internal/user/domain"
	"github.com/smallbiznis/flagship/pkg/repository"
	"gorm.io/gorm"
)

func Provide(db *gorm.DB) repository.Repository[domain.User] {
	return repository.ProvideStore[domain.User](db)
}
