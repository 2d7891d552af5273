package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/remesaops/remesas-backend/internal/models"
)

const userColumns = `id, username, active, role, variant, permitted_currencies, balance_cached, created_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Active, &u.Role, &u.Variant,
		&u.PermittedCurrencies, &u.BalanceCached, &u.CreatedAt)
	return u, err
}

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (q *Queries) CreateUser(ctx context.Context, u models.User) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO users (id, username, active, role, variant, permitted_currencies, balance_cached, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		u.ID, u.Username, u.Active, u.Role, u.Variant, u.PermittedCurrencies, u.BalanceCached)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (q *Queries) UpdateUser(ctx context.Context, u models.User) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE users SET username = $1, active = $2, role = $3, variant = $4, permitted_currencies = $5
		WHERE id = $6`,
		u.Username, u.Active, u.Role, u.Variant, u.PermittedCurrencies, u.ID)
	if err != nil {
		return 0, fmt.Errorf("update user: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListAdmins returns every active administrator. Used by the inbox fan-out
// and the pending watchdog.
func (q *Queries) ListAdmins(ctx context.Context) ([]models.User, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = 'admin' AND active ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (q *Queries) ListActiveUsers(ctx context.Context) ([]models.User, error) {
	rows, err := q.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE active ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUserCachedBalance writes the denormalized USD balance column.
func (q *Queries) UpdateUserCachedBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE users SET balance_cached = $1 WHERE id = $2`, balance, id)
	if err != nil {
		return 0, fmt.Errorf("update user cached balance: %w", err)
	}
	return tag.RowsAffected(), nil
}
