package pool

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementCache_PreparesOnceAndReuses(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPrepare("SELECT 1")

	sc, err := NewStatementCache(db, 4)
	require.NoError(t, err)

	s1, err := sc.Prepare(context.Background(), "SELECT 1")
	require.NoError(t, err)
	s2, err := sc.Prepare(context.Background(), "SELECT 1")
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, sc.Len())
}

func TestStatementCache_EvictsBeyondSize(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPrepare("SELECT 1")
	mock.ExpectPrepare("SELECT 2")
	mock.MatchExpectationsInOrder(false)

	sc, err := NewStatementCache(db, 1)
	require.NoError(t, err)

	_, err = sc.Prepare(context.Background(), "SELECT 1")
	require.NoError(t, err)
	_, err = sc.Prepare(context.Background(), "SELECT 2")
	require.NoError(t, err)

	assert.Equal(t, 1, sc.Len())
}
