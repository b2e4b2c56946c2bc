package reminders

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTx struct {
	pgx.Tx
	committed bool
}

func (t *stubTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(context.Context) error { return nil }

type stubBeginner struct {
	tx   *stubTx
	opts pgx.TxOptions
}

func (b *stubBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	return b.tx, nil
}

func TestRepositoryWithTxIsolation(t *testing.T) {
	b := &stubBeginner{tx: &stubTx{}}
	repo := &Repository{txs: b}

	err := repo.WithTx(context.Background(), func(_ context.Context, tx TxRepository) error {
		require.IsType(t, &txRepo{}, tx)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, pgx.ReadCommitted, b.opts.IsoLevel)
	assert.True(t, b.tx.committed)
}

func TestRepositoryWithTxSkipsCommitOnError(t *testing.T) {
	b := &stubBeginner{tx: &stubTx{}}
	repo := &Repository{txs: b}
	boom := errors.New("write failed")

	err := repo.WithTx(context.Background(), func(context.Context, TxRepository) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, b.tx.committed)
}
