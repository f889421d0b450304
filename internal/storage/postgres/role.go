package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/identity-service/internal/models"
)

// RoleByName находит роль по имени.
func (s *Storage) RoleByName(ctx context.Context, name string) (*models.Role, bool, error) {
	const op = "storage.postgres.RoleByName"

	var role models.Role
	err := s.db.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return &role, true, nil
}
