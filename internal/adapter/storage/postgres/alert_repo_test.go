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

func TestAlertRepo_Insert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	merchantID := uuid.New()
	a := &domain.Alert{
		ID:         uuid.New(),
		MerchantID: &merchantID,
		Type:       domain.AlertWebhookFailed,
		Message:    "webhook delivery exhausted retries",
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(a.ID, a.MerchantID, string(a.Type), a.Message, a.CreatedAt, a.ResolvedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Insert(context.Background(), a)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_List_UnresolvedForMerchant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	merchantID := uuid.New()
	alertID := uuid.New()
	createdAt := time.Now().UTC().Truncate(time.Microsecond)

	rows := pgxmock.NewRows([]string{"id", "merchant_id", "type", "message", "created_at", "resolved_at"}).
		AddRow(alertID, &merchantID, string(domain.AlertWebhookFailed), "failed", createdAt, nil)

	mock.ExpectQuery("SELECT .+ FROM alerts WHERE 1=1 AND merchant_id = \\$1 AND resolved_at IS NULL").
		WithArgs(merchantID).
		WillReturnRows(rows)

	alerts, err := repo.List(context.Background(), &merchantID, true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alertID, alerts[0].ID)
	assert.False(t, alerts[0].IsResolved())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_Resolve(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAlertRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE alerts SET resolved_at").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.Resolve(context.Background(), id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
