package db

import (
	"context"
	"database/sql"
	"fmt"
)

type Store struct {
	DB      *sql.DB
	Queries *Queries
}

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{DB: db, Queries: New(db, dialect)}
}

// InTx runs fn inside one transaction and commits when fn returns nil. Any
// error rolls back every write fn made. With sqlite, fn must only use the
// Queries it is given; the store holds a single connection.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
