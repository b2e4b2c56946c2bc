package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *recordingTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *recordingTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type recordingBeginner struct {
	tx   *recordingTx
	opts pgx.TxOptions
	err  error
}

func (b *recordingBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommitsAtRequestedLevel(t *testing.T) {
	b := &recordingBeginner{tx: &recordingTx{}}
	var got pgx.Tx
	err := WithTx(context.Background(), b, pgx.ReadCommitted, func(tx pgx.Tx) error {
		got = tx
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, pgx.ReadCommitted, b.opts.IsoLevel)
	assert.Same(t, b.tx, got)
	assert.True(t, b.tx.committed)
	assert.False(t, b.tx.rolledBack)
}

func TestWithTxDefaultsToRepeatableRead(t *testing.T) {
	b := &recordingBeginner{tx: &recordingTx{}}
	require.NoError(t, WithTx(context.Background(), b, "", func(pgx.Tx) error { return nil }))
	assert.Equal(t, pgx.RepeatableRead, b.opts.IsoLevel)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &recordingBeginner{tx: &recordingTx{}}
	boom := errors.New("insert failed")
	err := WithTx(context.Background(), b, pgx.ReadCommitted, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, b.tx.committed)
	assert.True(t, b.tx.rolledBack)
}

func TestWithTxWrapsBeginAndCommitErrors(t *testing.T) {
	err := WithTx(context.Background(), &recordingBeginner{err: errors.New("pool closed")}, "", func(pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "begin tx")

	b := &recordingBeginner{tx: &recordingTx{commitErr: errors.New("serialization failure")}}
	err = WithTx(context.Background(), b, "", func(pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "commit tx")
	assert.True(t, b.tx.rolledBack)

	require.Error(t, WithTx(context.Background(), nil, "", func(pgx.Tx) error { return nil }))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}
