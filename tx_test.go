package dal

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechXTT/dal/internal/plugin"
)

func TestTx_Commit(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSession(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO brands (name) VALUES ($1)").WithArgs("Audi").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.StartTransaction(ctx)
	require.NoError(t, err)
	assert.Equal(t, TxOpen, tx.State())
	assert.Same(t, tx, s.Transaction())
	assert.NotEmpty(t, tx.ID())

	_, err = s.Insert(ctx, Stmt("INSERT INTO brands (name) VALUES ($1)", "Audi").In(tx))
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, tx))

	assert.Equal(t, TxCommitted, tx.State())
	assert.Nil(t, s.Transaction())
	assert.Zero(t, s.Stats().InUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_TerminalStateIsFinal(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSession(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := s.StartTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Rollback(ctx, tx))
	assert.Equal(t, TxRolledBack, tx.State())

	require.ErrorIs(t, s.Rollback(ctx, tx), ErrTransactionClosed)
	require.ErrorIs(t, s.Commit(ctx, tx), ErrTransactionClosed)
	_, _, err = s.QueryRow(ctx, Stmt("SELECT 1").In(tx))
	require.ErrorIs(t, err, ErrTransactionClosed)
	_, err = s.Delete(ctx, Stmt("DELETE FROM brands WHERE id = $1", 1).In(tx), DeleteOptions{})
	require.ErrorIs(t, err, ErrTransactionClosed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_CommitTwice(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSession(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := s.StartTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, tx))
	require.ErrorIs(t, s.Commit(ctx, tx), ErrTransactionClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_RejectedCommitStaysOpen(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSession(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{
		Code:    "23503",
		Message: `insert or update on table "models" violates foreign key constraint "models_brand_id_fkey"`,
	})

	tx, err := s.StartTransaction(ctx)
	require.NoError(t, err)

	err = s.Commit(ctx, tx)
	require.ErrorIs(t, err, ErrTransaction)
	var te *TransactionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "commit", te.Op)
	assert.Equal(t, tx.ID(), te.TxID)
	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, pq.ErrorCode("23503"), pqErr.Code)

	assert.Equal(t, TxOpen, tx.State())
	require.NoError(t, s.Rollback(ctx, tx))
	assert.Equal(t, TxRolledBack, tx.State())
	assert.Zero(t, s.Stats().InUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_OnePerSession(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSession(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := s.StartTransaction(ctx)
	require.NoError(t, err)

	_, err = s.StartTransaction(ctx)
	require.ErrorIs(t, err, ErrTransaction)

	require.NoError(t, s.Rollback(ctx, tx))

	tx, err = s.StartTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Rollback(ctx, tx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_BeginFailure(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSession(t)
	mock.ExpectBegin().WillReturnError(errors.New("could not serialize access"))

	_, err := s.StartTransaction(ctx)
	require.ErrorIs(t, err, ErrTransaction)
	assert.Nil(t, s.Transaction())
	assert.Zero(t, s.Stats().InUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_ForeignTransaction(t *testing.T) {
	ctx := context.Background()
	a, mockA := newMockSession(t)
	b, _ := newMockSession(t)
	mockA.ExpectBegin()

	tx, err := a.StartTransaction(ctx)
	require.NoError(t, err)

	err = b.Exec(ctx, Stmt("SELECT 1").In(tx))
	require.ErrorIs(t, err, ErrTransaction)
	require.ErrorIs(t, b.Commit(ctx, tx), ErrTransaction)
	require.ErrorIs(t, b.Rollback(ctx, nil), ErrTransaction)
}

func TestTx_StatementFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSession(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO models (brand_id, name) VALUES ($1, $2)").
		WithArgs(99, "Ghost").
		WillReturnError(&pq.Error{Code: "23503", Message: "violates foreign key constraint"})
	mock.ExpectRollback()

	tx, err := s.StartTransaction(ctx)
	require.NoError(t, err)

	_, err = s.Insert(ctx, Stmt("INSERT INTO models (brand_id, name) VALUES ($1, $2)", 99, "Ghost").In(tx))
	require.ErrorIs(t, err, ErrStatement)
	assert.Equal(t, TxOpen, tx.State())
	assert.Same(t, tx, s.Transaction())

	require.NoError(t, s.Rollback(ctx, tx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		s, mock := newMockSession(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE brands SET name = $1 WHERE id = $2").WithArgs("VW", 2).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.InTransaction(ctx, func(tx *Tx) error {
			_, err := s.Update(ctx, Stmt("UPDATE brands SET name = $1 WHERE id = $2", "VW", 2).In(tx))
			return err
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		s, mock := newMockSession(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := s.InTransaction(ctx, func(*Tx) error { return boom })
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on panic", func(t *testing.T) {
		s, mock := newMockSession(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		require.Panics(t, func() {
			_ = s.InTransaction(ctx, func(*Tx) error { panic("boom") })
		})
		assert.Nil(t, s.Transaction())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// The brands/models walkthrough: a failed insert inside a transaction is
// undone by an explicit rollback, and the brand never becomes visible.
func TestScenario_MalformedInsertRolledBack(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSession(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO brands (name) VALUES ($1) RETURNING id").
		WithArgs("Audi").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	for _, name := range []string{"A3", "A4", "Q5"} {
		mock.ExpectExec("INSERT INTO models (brand_id, name) VALUES ($1, $2)").
			WithArgs(1, name).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT id, name FROM brands WHERE id = $1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	tx, err := s.StartTransaction(ctx)
	require.NoError(t, err)

	brand, err := s.Insert(ctx, Stmt("INSERT INTO brands (name) VALUES ($1) RETURNING id", "Audi").In(tx))
	require.NoError(t, err)
	require.Equal(t, int64(1), brand.ID)

	for _, name := range []string{"A3", "A4", "Q5"} {
		res, err := s.Insert(ctx, Stmt("INSERT INTO models (brand_id, name) VALUES ($1, $2)", brand.ID, name).In(tx))
		require.NoError(t, err)
		require.Equal(t, int64(1), res.RowsInserted)
	}

	// Missing the model name.
	_, err = s.Insert(ctx, Stmt("INSERT INTO models (brand_id, name) VALUES ($1, $2)", brand.ID).In(tx))
	require.ErrorIs(t, err, ErrStatement)

	require.NoError(t, s.Rollback(ctx, tx))

	row, ok, err := s.QueryRow(ctx, Stmt("SELECT id, name FROM brands WHERE id = $1", brand.ID))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScenario_NotNullViolationRolledBack(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSession(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO brands (name) VALUES ($1) RETURNING id").
		WithArgs("Audi").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("INSERT INTO models (brand_id, name) VALUES ($1, $2)").
		WithArgs(1, nil).
		WillReturnError(&pq.Error{
			Code:    "23502",
			Message: `null value in column "name" of relation "models" violates not-null constraint`,
			Column:  "name",
		})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT id, name FROM brands WHERE id = $1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	err := s.InTransaction(ctx, func(tx *Tx) error {
		brand, err := s.Insert(ctx, Stmt("INSERT INTO brands (name) VALUES ($1) RETURNING id", "Audi").In(tx))
		if err != nil {
			return err
		}
		_, err = s.Insert(ctx, Stmt("INSERT INTO models (brand_id, name) VALUES ($1, $2)", brand.ID, nil).In(tx))
		return err
	})
	var se *StatementError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "23502", se.Code)
	assert.Contains(t, err.Error(), "violates not-null constraint")

	_, ok, err := s.QueryRow(ctx, Stmt("SELECT id, name FROM brands WHERE id = $1", 1))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_FailedRollbackClosesTransaction(t *testing.T) {
	ctx := context.Background()
	metrics, err := plugin.NewMetrics(nil)
	require.NoError(t, err)
	s, mock := newMockSession(t, WithHooks(metrics))

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection reset by peer"))

	tx, err := s.StartTransaction(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OpenTx))

	require.ErrorIs(t, s.Rollback(ctx, tx), ErrTransaction)
	assert.Equal(t, TxRolledBack, tx.State())
	assert.Nil(t, s.Transaction())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.OpenTx))
	require.NoError(t, mock.ExpectationsWereMet())
}

const (
	createBrands = "CREATE TABLE brands (id SERIAL PRIMARY KEY, brand_name TEXT NOT NULL UNIQUE)"
	createModels = "CREATE TABLE models (id SERIAL PRIMARY KEY, brand_id INTEGER NOT NULL REFERENCES brands (id), model_name TEXT NOT NULL)"
	joinModels   = "SELECT b.brand_name, m.model_name FROM brands b JOIN models m ON m.brand_id = b.id ORDER BY m.id"
)

// Two related tables, one brand and one model, read back through a join.
func TestScenario_BrandsModelsJoin(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockSession(t)

	mock.ExpectExec(createBrands).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(createModels).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO brands (brand_name) VALUES ($1) RETURNING id").
		WithArgs("Ford").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("INSERT INTO models (brand_id, model_name) VALUES ($1, $2)").
		WithArgs(1, "Fiesta").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(joinModels).
		WillReturnRows(sqlmock.NewRows([]string{"brand_name", "model_name"}).AddRow("Ford", "Fiesta"))

	require.NoError(t, s.Exec(ctx, Stmt(createBrands)))
	require.NoError(t, s.Exec(ctx, Stmt(createModels)))

	brand, err := s.Insert(ctx, Stmt("INSERT INTO brands (brand_name) VALUES ($1) RETURNING id", "Ford"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), brand.RowsInserted)
	assert.Equal(t, int64(1), brand.ID)

	model, err := s.Insert(ctx, Stmt("INSERT INTO models (brand_id, model_name) VALUES ($1, $2)", brand.ID, "Fiesta"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), model.RowsInserted)

	rows, err := s.QueryRows(ctx, Stmt(joinModels))
	require.NoError(t, err)
	want := []Row{{"brand_name": "Ford", "model_name": "Fiesta"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("joined rows mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}
