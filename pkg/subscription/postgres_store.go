package subscription

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const recordColumns = `account_id, status, plan_id, external_subscription_id, external_subscription_since,
	period_start, period_end, last_applied_event_at, created_at, updated_at`

// PostgresStore persists records in the subscriptions table and processed
// event IDs in the processed_events table. It implements both AtomicStore and
// Ledger. Per-account serialization relies on SELECT ... FOR UPDATE.
//
// The *sql.DB is expected to come from pg.OpenDB so it shares the pgx pool.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a store over db. Panics if db is nil.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		panic("subscription: nil database handle")
	}
	return &PostgresStore{db: db, now: time.Now}
}

// Get retrieves the record for accountID.
func (s *PostgresStore) Get(ctx context.Context, accountID uuid.UUID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM subscriptions WHERE account_id = $1`, accountID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return rec, nil
}

// FindAccountByExternalID returns the account most recently bound to externalID.
func (s *PostgresStore) FindAccountByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	if externalID == "" {
		return uuid.Nil, ErrRecordNotFound
	}
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id FROM subscriptions WHERE external_subscription_id = $1 ORDER BY updated_at DESC LIMIT 1`,
		externalID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrRecordNotFound
	}
	if err != nil {
		return uuid.Nil, errors.Join(ErrStoreUnavailable, err)
	}
	return id, nil
}

// Update locks the account row, runs fn and writes its result in one transaction.
func (s *PostgresStore) Update(ctx context.Context, accountID uuid.UUID, fn UpdateFunc) (*Record, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (*Record, error) {
		return s.updateLocked(ctx, tx, accountID, fn)
	})
}

// ApplyOnce inserts eventID into processed_events and applies fn in the same
// transaction, so a failed write never leaves the event marked as processed.
func (s *PostgresStore) ApplyOnce(ctx context.Context, eventID string, accountID uuid.UUID, appliedAt time.Time, fn UpdateFunc) (*Record, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (*Record, error) {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO processed_events (event_id, applied_at) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
			eventID, appliedAt,
		)
		if err != nil {
			return nil, errors.Join(ErrLedgerUnavailable, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, errors.Join(ErrLedgerUnavailable, err)
		}
		if n == 0 {
			return nil, ErrDuplicateEvent
		}
		return s.updateLocked(ctx, tx, accountID, fn)
	})
}

// Reserve records eventID unless it is already present.
func (s *PostgresStore) Reserve(ctx context.Context, eventID string, appliedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_events (event_id, applied_at) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
		eventID, appliedAt,
	)
	if err != nil {
		return false, errors.Join(ErrLedgerUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Join(ErrLedgerUnavailable, err)
	}
	return n == 1, nil
}

// Contains reports whether eventID has been recorded.
func (s *PostgresStore) Contains(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Join(ErrLedgerUnavailable, err)
	}
	return exists, nil
}

// Release deletes a reservation.
func (s *PostgresStore) Release(ctx context.Context, eventID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processed_events WHERE event_id = $1`, eventID); err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) (*Record, error)) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	rec, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (s *PostgresStore) updateLocked(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, fn UpdateFunc) (*Record, error) {
	now := s.now().UTC()

	// Create the row on first reference so there is always something to lock.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions (account_id, status, created_at, updated_at) VALUES ($1, $2, $3, $3)
		ON CONFLICT (account_id) DO NOTHING`,
		accountID, StatusNone, now,
	); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	current, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM subscriptions WHERE account_id = $1 FOR UPDATE`, accountID,
	))
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET
			status = $2,
			plan_id = $3,
			external_subscription_id = $4,
			external_subscription_since = $5,
			period_start = $6,
			period_end = $7,
			last_applied_event_at = $8,
			updated_at = $9
		WHERE account_id = $1`,
		accountID,
		next.Status,
		next.PlanID,
		next.ExternalSubscriptionID,
		nullTime(next.ExternalSubscriptionSince),
		nullTime(next.PeriodStart),
		nullTime(next.PeriodEnd),
		nullTime(next.LastAppliedEventAt),
		now,
	); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	out := *next
	out.AccountID = accountID
	out.CreatedAt = current.CreatedAt
	out.UpdatedAt = now
	return &out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                                     Record
		status                                  string
		since, start, end, lastApplied, updated sql.NullTime
	)
	if err := row.Scan(
		&rec.AccountID,
		&status,
		&rec.PlanID,
		&rec.ExternalSubscriptionID,
		&since,
		&start,
		&end,
		&lastApplied,
		&rec.CreatedAt,
		&updated,
	); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.ExternalSubscriptionSince = since.Time
	rec.PeriodStart = start.Time
	rec.PeriodEnd = end.Time
	rec.LastAppliedEventAt = lastApplied.Time
	rec.UpdatedAt = updated.Time
	return &rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
