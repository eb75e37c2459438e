package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/metal-price-harvester/internal/dataset"
)

func sampleTable() dataset.Table {
	cols := dataset.NewColumnSet("Наименование", "Цена")
	first := dataset.NewRecord(cols)
	first.Set("Наименование", "Труба")
	first.Set("Цена", "120000")
	second := dataset.NewRecord(cols)
	second.Set("Наименование", "Лист")
	return dataset.Table{Columns: cols.Names(), Records: []dataset.Record{first, second}}
}

func TestSaveRunInsertsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "price_records", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO price_records").
		WithArgs("run-1", 0, []byte(`{"Наименование":"Труба","Цена":"120000"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO price_records").
		WithArgs("run-1", 1, []byte(`{"Наименование":"Лист","Цена":null}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveRun(context.Background(), "run-1", sampleTable()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO price_records").
		WithArgs("run-1", 0, pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.SaveRun(context.Background(), "run-1", sampleTable())
	require.ErrorContains(t, err, "insert record 0")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "runs_2025", nil)
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs_2025").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStoreValidates(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStoreWithPool(nil, "", nil)
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRecordStoreWithPool(mock, "drop table;", nil)
	require.Error(t, err)

	store, err := NewRecordStoreWithPool(mock, "", nil)
	require.NoError(t, err)
	require.Error(t, store.SaveRun(context.Background(), "", sampleTable()))

	_, err = NewRecordStore(context.Background(), Config{}, nil)
	require.Error(t, err)
}
