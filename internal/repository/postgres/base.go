package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/medihub/access-api/internal/repository"
)

const uniqueViolation = pq.ErrorCode("23505")

// Store is the postgres implementation of repository.Store. The same type
// serves both the pool and a single transaction.
type Store struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

// NewStore creates a store bound to the connection pool.
var _ repository.Store = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, ext: db}
}

func (s *Store) Grants() repository.GrantRepository {
	return &grantRepository{ext: s.ext}
}

func (s *Store) Notifications() repository.NotificationRepository {
	return &notificationRepository{ext: s.ext}
}

func (s *Store) Outbox() repository.OutboxRepository {
	return &outboxRepository{ext: s.ext}
}

// WithTx executes a function within a transaction. Nested calls reuse the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if _, inTx := s.ext.(*sqlx.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Store{db: s.db, ext: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}
