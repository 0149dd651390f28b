package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/afd-harvester/internal/afd"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var stamp = time.Unix(1700000000, 0).UTC()

func TestStoreCaseMetaUpsertsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMetaStoreWithPool(mock, "case_meta", "run-1", fixedClock{stamp})
	require.NoError(t, err)

	rows := []afd.CaseMeta{
		{CleanedTitle: "Foo", PageExists: true, ReturnedTitle: afd.StringPtr("Foo"), PageID: afd.NumericPageID(12)},
		{CleanedTitle: "Bar", ReturnedTitle: afd.StringPtr("Baz"), PageID: afd.RedirectedPageID()},
	}
	id := int64(12)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO case_meta").
		WithArgs("Foo", true, rows[0].ReturnedTitle, &id, false, "run-1", stamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO case_meta").
		WithArgs("Bar", false, rows[1].ReturnedTitle, (*int64)(nil), true, "run-1", stamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.StoreCaseMeta(context.Background(), rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCaseMetaRollsBack(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMetaStoreWithPool(mock, "", "run-1", fixedClock{stamp})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO case_meta").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err = store.StoreCaseMeta(context.Background(), []afd.CaseMeta{{CleanedTitle: "Foo"}})
	require.Error(t, err)
	require.ErrorContains(t, err, "Foo")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCaseMetaEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMetaStoreWithPool(mock, "case_meta", "run-1", fixedClock{stamp})
	require.NoError(t, err)
	require.NoError(t, store.StoreCaseMeta(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMetaStoreWithPool(mock, "afd_meta", "run-1", fixedClock{stamp})
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS afd_meta").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewMetaStoreWithPoolValidates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewMetaStoreWithPool(nil, "case_meta", "r", fixedClock{stamp})
	require.Error(t, err)
	_, err = NewMetaStoreWithPool(mock, "bad;table", "r", fixedClock{stamp})
	require.Error(t, err)
	_, err = NewMetaStoreWithPool(mock, "case_meta", "r", nil)
	require.Error(t, err)
	_, err = NewMetaStore(context.Background(), MetaStoreConfig{}, fixedClock{stamp})
	require.Error(t, err)
}
