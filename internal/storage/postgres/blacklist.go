package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/identity-service/internal/storage"
)

const insertBlacklist = `
	INSERT INTO token_blacklist(token_hash, expiry_date)
	VALUES ($1, $2)
	ON CONFLICT (token_hash) DO NOTHING
`

// RevokeToken добавляет токен в чёрный список (идемпотентно).
func (s *Storage) RevokeToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	const op = "storage.postgres.RevokeToken"

	if _, err := s.db.Exec(ctx, insertBlacklist, tokenHash, expiresAt.UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IsRevoked сообщает, находится ли токен в чёрном списке.
func (s *Storage) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	const op = "storage.postgres.IsRevoked"

	var revoked bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE token_hash = $1)`, tokenHash,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return revoked, nil
}

// PurgeExpired удаляет записи с истёкшим сроком.
func (s *Storage) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.PurgeExpired"

	tag, err := s.db.Exec(ctx, `DELETE FROM token_blacklist WHERE expiry_date <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

// EndSession очищает refresh-токен и заносит access-токен в чёрный список одной транзакцией.
func (s *Storage) EndSession(ctx context.Context, userID uuid.UUID, accessHash string, accessExpiresAt time.Time) error {
	const op = "storage.postgres.EndSession"

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET refresh_token_hash = NULL, updated_at = now() WHERE id = $1`, userID)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}

		if accessHash == "" {
			return nil
		}

		_, err = tx.Exec(ctx, insertBlacklist, accessHash, accessExpiresAt.UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
