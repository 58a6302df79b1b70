package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pentico/subscription-service/internal/domain"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, reference, email, account_id, date_created, date_updated`

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY date_created`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *UserRepository) FindByReference(ctx context.Context, reference string) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE reference = $1`, reference))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByAccountID returns all users belonging to an account.
func (r *UserRepository) FindByAccountID(ctx context.Context, accountID string) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE account_id = $1 ORDER BY date_created`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, reference, email, account_id, date_created, date_updated)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.Reference, user.Email, user.AccountID,
		user.DateCreated, user.DateUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users SET email = $2, account_id = NULLIF($3, ''), date_updated = NOW()
		WHERE reference = $1
	`
	tag, err := r.db.Exec(ctx, query, user.Reference, user.Email, user.AccountID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found", user.Reference)
	}
	return nil
}

func (r *UserRepository) DeleteByReference(ctx context.Context, reference string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE reference = $1`, reference)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found", reference)
	}
	return nil
}

func collectUsers(rows pgx.Rows) ([]domain.User, error) {
	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user      domain.User
		accountID *string
	)
	err := row.Scan(&user.ID, &user.Reference, &user.Email, &accountID, &user.DateCreated, &user.DateUpdated)
	if err != nil {
		return nil, err
	}
	if accountID != nil {
		user.AccountID = *accountID
	}
	return &user, nil
}
