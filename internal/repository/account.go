package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pentico/subscription-service/internal/domain"
)

// AccountRepository handles persistence for the Account aggregate. The
// embedded subscription list is stored as one jsonb column and written back
// whole on every save; there is no per-subscription row and no version check.
type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, reference, email, metadata, subscriptions, date_created, date_updated`

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY date_created`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *AccountRepository) FindByReference(ctx context.Context, reference string) (*domain.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE reference = $1`, reference)
}

// FindByPaymentCustomerID resolves the account linked to an external payment
// provider customer record (used by the inbound renewal webhook).
func (r *AccountRepository) FindByPaymentCustomerID(ctx context.Context, customerID string) (*domain.Account, error) {
	return r.findOne(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE metadata->>'paymentCustomerId' = $1`, customerID)
}

func (r *AccountRepository) findOne(ctx context.Context, query string, arg any) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	metadata, subscriptions, err := marshalAccount(account)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO accounts (id, reference, email, metadata, subscriptions, date_created, date_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query,
		account.ID, account.Reference, account.Email, metadata, subscriptions,
		account.DateCreated, account.DateUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Save writes the whole aggregate back, subscriptions included.
func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	metadata, subscriptions, err := marshalAccount(account)
	if err != nil {
		return err
	}
	account.DateUpdated = time.Now()
	query := `
		UPDATE accounts
		SET reference = $2, email = $3, metadata = $4, subscriptions = $5, date_updated = $6
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		account.ID, account.Reference, account.Email, metadata, subscriptions, account.DateUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", account.ID)
	}
	return nil
}

// Update changes the account's own fields addressed by reference. The
// subscription list is left untouched; only Save writes it.
func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET email = $2, date_updated = NOW() WHERE reference = $1`,
		account.Reference, account.Email,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", account.Reference)
	}
	return nil
}

func (r *AccountRepository) DeleteByReference(ctx context.Context, reference string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE reference = $1`, reference)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", reference)
	}
	return nil
}

func marshalAccount(account *domain.Account) (metadata, subscriptions []byte, err error) {
	metadata, err = json.Marshal(account.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal account metadata: %w", err)
	}
	subs := account.Subscriptions
	if subs == nil {
		subs = []domain.Subscription{}
	}
	subscriptions, err = json.Marshal(subs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal subscriptions: %w", err)
	}
	return metadata, subscriptions, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account       domain.Account
		metadata      []byte
		subscriptions []byte
	)
	err := row.Scan(
		&account.ID, &account.Reference, &account.Email,
		&metadata, &subscriptions,
		&account.DateCreated, &account.DateUpdated,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &account.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account metadata: %w", err)
	}
	if err := json.Unmarshal(subscriptions, &account.Subscriptions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscriptions: %w", err)
	}
	return &account, nil
}
