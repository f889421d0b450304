package models

import "time"

// BlacklistEntry — отозванный access-токен. Живёт до естественного истечения токена.
type BlacklistEntry struct {
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
