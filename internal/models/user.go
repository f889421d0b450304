package models

import (
	"time"

	"github.com/google/uuid"
)

// Role — роль пользователя (ROLE_BUYER, ROLE_INVESTOR, ...).
type Role struct {
	ID   int64
	Name string
}

// User — модель пользователя в системе.
//
// Поля токенов хранят только хэши: сами токены знает лишь клиент.
//   - RefreshTokenHash — хэш единственного актуального refresh-токена;
//     пустая строка означает, что активной сессии нет;
//   - ResetTokenHash/ResetTokenExpiry устанавливаются и очищаются только вместе.
type User struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     string
	Name             string
	Lastname         string
	Role             Role
	Active           bool
	RefreshTokenHash string
	ResetTokenHash   string
	ResetTokenExpiry *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
