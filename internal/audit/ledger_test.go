package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sitepulse.io/sitepulse/internal/domain"
)

type fakeLedgerStore struct {
	gotProjectID string
	gotFrom      time.Time
	gotTo        time.Time
	gotLimit     int
	entries      []domain.LedgerEntry
}

func (s *fakeLedgerStore) ListLedger(ctx context.Context, projectID string, from, to time.Time, limit int) ([]domain.LedgerEntry, error) {
	s.gotProjectID = projectID
	s.gotFrom = from
	s.gotTo = to
	s.gotLimit = limit
	return s.entries, nil
}

func TestProjectHistoryAppliesDefaults(t *testing.T) {
	store := &fakeLedgerStore{entries: []domain.LedgerEntry{{ID: "l-1"}}}
	svc := NewService(store)

	entries, err := svc.ProjectHistory(context.Background(), Query{ProjectID: "proj-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "proj-1", store.gotProjectID)
	require.Equal(t, DefaultQueryLimit, store.gotLimit)
	require.True(t, store.gotFrom.IsZero())
	require.True(t, store.gotTo.IsZero())
}

func TestProjectHistoryRejectsMissingProject(t *testing.T) {
	svc := NewService(&fakeLedgerStore{})
	_, err := svc.ProjectHistory(context.Background(), Query{})
	require.Error(t, err)
}

func TestProjectHistoryRejectsInvertedRange(t *testing.T) {
	svc := NewService(&fakeLedgerStore{})
	_, err := svc.ProjectHistory(context.Background(), Query{
		ProjectID: "proj-1",
		From:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
}
