package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/storage"
)

const selectUser = `
	SELECT u.id, u.email::text, u.password_hash, u.name, u.lastname,
	       r.id, r.name, u.active,
	       COALESCE(u.refresh_token_hash, ''), COALESCE(u.reset_token_hash, ''), u.reset_token_expiry,
	       u.created_at, u.updated_at
	FROM users u
	JOIN roles r ON r.id = u.role_id
`

// CreateUser создает нового пользователя в БД.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.CreateUser"

	query := `
		INSERT INTO users(id, email, password_hash, name, lastname, role_id, active,
		                  refresh_token_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
	`

	_, err := s.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Lastname,
		user.Role.ID,
		user.Active,
		user.RefreshTokenHash,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail находит пользователя по email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	const op = "storage.postgres.UserByEmail"

	return s.queryUser(ctx, op, selectUser+`WHERE u.email = $1`, email)
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, bool, error) {
	const op = "storage.postgres.UserByID"

	return s.queryUser(ctx, op, selectUser+`WHERE u.id = $1`, id)
}

// UserByResetToken находит пользователя по хэшу токена сброса.
func (s *Storage) UserByResetToken(ctx context.Context, tokenHash string) (*models.User, bool, error) {
	const op = "storage.postgres.UserByResetToken"

	if tokenHash == "" {
		return nil, false, nil
	}

	return s.queryUser(ctx, op, selectUser+`WHERE u.reset_token_hash = $1`, tokenHash)
}

// SetRefreshToken перезаписывает хэш refresh-токена.
func (s *Storage) SetRefreshToken(ctx context.Context, id uuid.UUID, tokenHash string) error {
	const op = "storage.postgres.SetRefreshToken"

	query := `
		UPDATE users
		SET refresh_token_hash = NULLIF($2, ''), updated_at = now()
		WHERE id = $1
	`

	tag, err := s.db.Exec(ctx, query, id, tokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// RotateRefreshToken — compare-and-swap одним UPDATE: из конкурентных
// запросов со старым хэшем строку обновит только первый.
func (s *Storage) RotateRefreshToken(ctx context.Context, id uuid.UUID, oldHash, newHash string) (bool, error) {
	const op = "storage.postgres.RotateRefreshToken"

	query := `
		UPDATE users
		SET refresh_token_hash = $3, updated_at = now()
		WHERE id = $1 AND refresh_token_hash = $2
	`

	tag, err := s.db.Exec(ctx, query, id, oldHash, newHash)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if err := s.ensureUser(ctx, id); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// ActivateUser переводит аккаунт в active.
func (s *Storage) ActivateUser(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "storage.postgres.ActivateUser"

	query := `
		UPDATE users
		SET active = TRUE, updated_at = now()
		WHERE id = $1 AND active = FALSE
	`

	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if err := s.ensureUser(ctx, id); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// SetResetToken сохраняет хэш токена сброса и срок его действия.
func (s *Storage) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	const op = "storage.postgres.SetResetToken"

	query := `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expiry = $3, updated_at = now()
		WHERE id = $1
	`

	tag, err := s.db.Exec(ctx, query, id, tokenHash, expiresAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// CompleteReset меняет пароль и очищает токен сброса, если он не сменился.
func (s *Storage) CompleteReset(ctx context.Context, id uuid.UUID, tokenHash, passwordHash string) (bool, error) {
	const op = "storage.postgres.CompleteReset"

	query := `
		UPDATE users
		SET password_hash = $3, reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = now()
		WHERE id = $1 AND reset_token_hash = $2
	`

	tag, err := s.db.Exec(ctx, query, id, tokenHash, passwordHash)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if err := s.ensureUser(ctx, id); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// PurgeExpiredResetTokens очищает просроченные токены сброса.
func (s *Storage) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.PurgeExpiredResetTokens"

	query := `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = now()
		WHERE reset_token_expiry < $1
	`

	tag, err := s.db.Exec(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (s *Storage) queryUser(ctx context.Context, op, query string, arg any) (*models.User, bool, error) {
	var user models.User
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Lastname,
		&user.Role.ID,
		&user.Role.Name,
		&user.Active,
		&user.RefreshTokenHash,
		&user.ResetTokenHash,
		&user.ResetTokenExpiry,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return &user, true, nil
}

// ensureUser отличает «условие CAS не выполнено» от «пользователя нет».
func (s *Storage) ensureUser(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}

	if !exists {
		return storage.ErrNotFound
	}

	return nil
}
