package postgres

import (
	"context"
	"testing"
	"time"

	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoice() *domain.Invoice {
	ref := "order-123"
	return &domain.Invoice{
		ID:           uuid.New(),
		MerchantID:   uuid.New(),
		Env:          domain.EnvProduction,
		Principal:    "merchantuser",
		ReferenceID:  &ref,
		BaseAmount:   10000,
		UniqueSuffix: 7,
		FinalAmount:  10007,
		Status:       domain.InvoiceStatusPending,
		QRISString:   "00020101...",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		ExpiresAt:    time.Now().UTC().Add(15 * time.Minute).Truncate(time.Microsecond),
	}
}

func invoiceRowColumns() []string {
	return []string{
		"id", "merchant_id", "env", "principal", "reference_id", "base_amount", "unique_suffix",
		"final_amount", "status", "qris_string", "metadata", "created_at", "expires_at", "paid_at",
	}
}

func invoiceRow(i *domain.Invoice) *pgxmock.Rows {
	return pgxmock.NewRows(invoiceRowColumns()).AddRow(
		i.ID, i.MerchantID, i.Env, i.Principal, i.ReferenceID, i.BaseAmount, i.UniqueSuffix,
		i.FinalAmount, string(i.Status), i.QRISString, []byte(nil), i.CreatedAt, i.ExpiresAt, i.PaidAt,
	)
}

func TestInvoiceRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	inv := newTestInvoice()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO invoices").
		WithArgs(
			inv.ID, inv.MerchantID, inv.Env, inv.Principal, inv.ReferenceID,
			inv.BaseAmount, inv.UniqueSuffix, inv.FinalAmount, string(inv.Status),
			inv.QRISString, []byte(nil), inv.CreatedAt, inv.ExpiresAt, inv.PaidAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	err = repo.Create(context.Background(), tx, inv)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM invoices WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(invoiceRowColumns()))

	result, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	inv := newTestInvoice()

	mock.ExpectQuery("SELECT .+ FROM invoices WHERE merchant_id").
		WithArgs(inv.MerchantID, inv.Env, 50, 0).
		WillReturnRows(invoiceRow(inv))

	results, err := repo.List(context.Background(), ports.InvoiceListParams{
		MerchantID: inv.MerchantID, Env: inv.Env, Limit: 50, Offset: 0,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, inv.ID, results[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepo_TransitionStatus_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	id := uuid.New()
	paidAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invoices SET status").
		WithArgs(string(domain.InvoiceStatusPaid), &paidAt, id, string(domain.InvoiceStatusPending)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	ok, err := repo.TransitionStatus(context.Background(), tx, id, domain.InvoiceStatusPending, domain.InvoiceStatusPaid, &paidAt)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tx.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepo_TransitionStatus_LostRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invoices SET status").
		WithArgs(string(domain.InvoiceStatusPaid), (*time.Time)(nil), id, string(domain.InvoiceStatusPending)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	ok, err := repo.TransitionStatus(context.Background(), tx, id, domain.InvoiceStatusPending, domain.InvoiceStatusPaid, nil)
	require.NoError(t, err)
	assert.False(t, ok, "zero rows affected means another writer already moved the row")
	require.NoError(t, tx.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepo_ListExpiredPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInvoiceRepo(mock)
	inv := newTestInvoice()

	mock.ExpectQuery("SELECT .+ FROM invoices WHERE status").
		WithArgs(string(domain.InvoiceStatusPending), pgxmock.AnyArg(), 200).
		WillReturnRows(invoiceRow(inv))

	results, err := repo.ListExpiredPending(context.Background(), time.Now(), 200)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, inv.ID, results[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
