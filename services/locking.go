package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/anjiri1684/affiliate_ledger/metrics"
	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres error codes worth retrying.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// AffiliateLocker runs ledger work inside a transaction that holds the
// affiliate's row lock. Every writer that changes what ComputeBalance sees
// goes through it.
type AffiliateLocker struct {
	db     *gorm.DB
	policy config.LedgerPolicy
}

func NewAffiliateLocker(db *gorm.DB, policy config.LedgerPolicy) *AffiliateLocker {
	return &AffiliateLocker{db: db, policy: policy}
}

// WithAffiliate locks the affiliate row and calls fn with the transaction and
// the locked affiliate. Lock contention is retried with linear backoff.
func (l *AffiliateLocker) WithAffiliate(ctx context.Context, affiliateID uuid.UUID, fn func(tx *gorm.DB, affiliate *models.Affiliate) error) error {
	attempts := l.policy.LockRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		started := time.Now()
		err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := l.setLockTimeout(tx); err != nil {
				return err
			}

			var affiliate models.Affiliate
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&affiliate, "id = ?", affiliateID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrAffiliateNotFound
				}
				return err
			}
			return fn(tx, &affiliate)
		})

		if err == nil {
			metrics.RecordLockDuration("success", time.Since(started).Seconds())
			return nil
		}
		if !isRetryable(err) {
			metrics.RecordLockDuration("failure", time.Since(started).Seconds())
			return err
		}

		metrics.RecordLockDuration("transient", time.Since(started).Seconds())
		if attempt == attempts {
			break
		}
		metrics.LockRetries.Inc()
		log.Printf("⚠️ Lock contention on affiliate %s (attempt %d/%d): %v", affiliateID, attempt, attempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * l.policy.LockRetryBackoff):
		}
	}

	return fmt.Errorf("%w: %v", ErrTransient, err)
}

func (l *AffiliateLocker) setLockTimeout(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" || l.policy.LockTimeout <= 0 {
		return nil
	}
	// SET does not accept bind parameters.
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.policy.LockTimeout.Milliseconds())
	return tx.Exec(stmt).Error
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return true
	}
	return false
}
