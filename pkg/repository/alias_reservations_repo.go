package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tendant/simple-onboarding/pkg/domain"
)

// AliasReservationsRepository holds time-boxed claims on tenant aliases.
//
// The primary key on alias is the only race-prevention mechanism: Reserve is a
// single INSERT, never a read followed by a write.
type AliasReservationsRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewAliasReservationsRepository creates a new alias reservations repository.
func NewAliasReservationsRepository(db *sql.DB, ttl time.Duration) *AliasReservationsRepository {
	if ttl <= 0 {
		ttl = domain.AliasReservationTTL
	}
	return &AliasReservationsRepository{db: db, ttl: ttl, now: time.Now}
}

// Reserve inserts a RESERVED row for alias. It returns domain.ErrAliasTaken if a
// RESERVED or CONFIRMED row already holds the alias. A RESERVED row whose TTL has
// elapsed is taken over in the same statement.
func (r *AliasReservationsRepository) Reserve(ctx context.Context, alias string) error {
	query := `
		INSERT INTO tenant_alias_reservations (alias, status, created_at, expires_at)
		VALUES ($1, 'RESERVED', $2, $3)
		ON CONFLICT (alias) DO UPDATE
		SET status = 'RESERVED', created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		WHERE tenant_alias_reservations.status = 'RESERVED'
		  AND tenant_alias_reservations.expires_at <= EXCLUDED.created_at
	`
	now := r.now().UTC()
	result, err := r.db.ExecContext(ctx, query, alias, now, now.Add(r.ttl))
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return domain.ErrAliasTaken
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAliasTaken
	}
	return nil
}

// Confirm marks a reservation CONFIRMED and clears its expiry. It is a no-op if
// the alias has no reservation.
func (r *AliasReservationsRepository) Confirm(ctx context.Context, alias string) error {
	query := `
		UPDATE tenant_alias_reservations
		SET status = 'CONFIRMED', expires_at = NULL
		WHERE alias = $1
	`
	_, err := r.db.ExecContext(ctx, query, alias)
	return err
}

// Delete removes a reservation regardless of its status. Deleting an absent
// alias is not an error.
func (r *AliasReservationsRepository) Delete(ctx context.Context, alias string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tenant_alias_reservations WHERE alias = $1`, alias)
	return err
}

// Get retrieves the reservation for alias.
func (r *AliasReservationsRepository) Get(ctx context.Context, alias string) (*domain.AliasReservation, error) {
	query := `
		SELECT alias, status, created_at, expires_at
		FROM tenant_alias_reservations
		WHERE alias = $1
	`
	var res domain.AliasReservation
	err := r.db.QueryRowContext(ctx, query, alias).Scan(
		&res.Alias,
		&res.Status,
		&res.CreatedAt,
		&res.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAliasReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteExpired removes RESERVED rows whose TTL elapsed before now and returns
// how many were removed. CONFIRMED rows are never touched.
func (r *AliasReservationsRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM tenant_alias_reservations
		WHERE status = 'RESERVED' AND expires_at <= $1
	`
	result, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
