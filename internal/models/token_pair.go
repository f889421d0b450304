package models

import "time"

// TokenPair — пара токенов, выдаваемая при входе, регистрации и ротации.
type TokenPair struct {
	// AccessToken — короткоживущий JWT для авторизации запросов.
	AccessToken string
	// RefreshToken — JWT для выпуска новой пары; на сервере хранится только его хэш.
	RefreshToken string
	// AccessExpiresAt — время истечения access-токена (UTC).
	AccessExpiresAt time.Time
	// RefreshExpiresAt — время истечения refresh-токена (UTC).
	RefreshExpiresAt time.Time
}
