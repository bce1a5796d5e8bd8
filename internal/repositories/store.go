// Package repositories is the gorm-backed persistence layer: users, the
// project hierarchy, memberships, assignments, attachment records and the
// audit log.
package repositories

import (
	"context"
	"errors"

	"taskify/backend/internal/apperrors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a *gorm.DB. Inside Transaction the wrapped handle is the
// transaction, so every method composes into the caller's unit of work.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// forUpdate adds a row lock where the dialect supports one.
func (s *Store) forUpdate(q *gorm.DB) *gorm.DB {
	if s.db.Dialector.Name() == "postgres" {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func translate(err error, notFound *apperrors.Error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.Conflict("resource already exists").Wrap(err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperrors.ErrParentNotFound.Wrap(err)
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Internal(err)
}

// Page describes offset pagination and ordering for list queries.
type Page struct {
	Number int
	Size   int
	SortBy string
	Order  string
}

// apply orders by a whitelisted column; sortColumns maps request keys to
// qualified column names.
func (p Page) apply(q *gorm.DB, sortColumns map[string]string, defaultSort string) *gorm.DB {
	sortBy, ok := sortColumns[p.SortBy]
	if !ok {
		sortBy = sortColumns[defaultSort]
	}
	order := "desc"
	if p.Order == "asc" {
		order = "asc"
	}
	q = q.Order(sortBy + " " + order)

	if p.Size > 0 {
		number := p.Number
		if number < 1 {
			number = 1
		}
		q = q.Offset((number - 1) * p.Size).Limit(p.Size)
	}
	return q
}
