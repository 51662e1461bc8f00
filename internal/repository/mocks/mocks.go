package mocks

import (
	"context"

	"github.com/rpggio/fabtrack/internal/repository"
	"github.com/stretchr/testify/mock"
)

// Store is a mock for repository.Store. When Tx is set, InTx invokes the callback
// with it before returning the configured error.
type Store struct {
	mock.Mock
	Tx repository.Tx
}

func (m *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	args := m.Called(ctx, fn)
	if m.Tx != nil {
		if err := fn(m.Tx); err != nil {
			return err
		}
	}
	return args.Error(0)
}
