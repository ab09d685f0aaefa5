package postgres

import (
	"context"
	"testing"
	"time"

	"qris-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRepo_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEventRepo(mock)
	event := &domain.InvoiceEvent{
		ID:        uuid.New(),
		InvoiceID: uuid.New(),
		EventType: domain.EventPaymentCreated,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO invoice_events").
		WithArgs(event.ID, event.InvoiceID, string(event.EventType), []byte(nil), event.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	err = repo.Append(context.Background(), tx, event)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_ListByInvoice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEventRepo(mock)
	invoiceID := uuid.New()
	eventID := uuid.New()
	createdAt := time.Now().UTC().Truncate(time.Microsecond)

	rows := pgxmock.NewRows([]string{"id", "invoice_id", "event_type", "payload", "created_at"}).
		AddRow(eventID, invoiceID, string(domain.EventPaymentPaid), []byte(nil), createdAt)

	mock.ExpectQuery("SELECT .+ FROM invoice_events WHERE invoice_id").
		WithArgs(invoiceID, 100).
		WillReturnRows(rows)

	events, err := repo.ListByInvoice(context.Background(), invoiceID, 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventID, events[0].ID)
	assert.Equal(t, domain.EventPaymentPaid, events[0].EventType)
	assert.NoError(t, mock.ExpectationsWereMet())
}
