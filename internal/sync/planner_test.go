package sync

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalift/searchsync/internal/pgpool"
)

func TestPlanSizePolicy(t *testing.T) {
	cases := []struct {
		name      string
		remaining int
		want      int
	}{
		{"empty backlog short-circuits", 0, 0},
		{"tiny backlog gets the floor", 50, 100},
		{"floor boundary", 100, 100},
		{"medium backlog drains in one batch", 2500, 2500},
		{"ceiling boundary", 5000, 5000},
		{"million rows scale by log10", 1_000_000, 600},
		{"billion rows still capped by log10", 1_000_000_000, 900},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PlanSize(tc.remaining, 100, 5000))
		})
	}
}

func TestPlanSizeBounds(t *testing.T) {
	for remaining := 1; remaining < 2_000_000; remaining = remaining*3 + 1 {
		got := PlanSize(remaining, 100, 5000)
		assert.GreaterOrEqual(t, got, 100, "remaining=%d", remaining)
		assert.LessOrEqual(t, got, 5000, "remaining=%d", remaining)
	}
}

func TestPlanSizeMonotonicUpToCeiling(t *testing.T) {
	prev := 0
	for remaining := 0; remaining <= 5000; remaining += 37 {
		got := PlanSize(remaining, 100, 5000)
		assert.GreaterOrEqual(t, got, prev, "remaining=%d", remaining)
		prev = got
	}
}

func TestPlanSizeMonotonicInLogRegime(t *testing.T) {
	prev := 0
	for remaining := 5001; remaining < 50_000_000; remaining = remaining * 2 {
		got := PlanSize(remaining, 100, 5000)
		assert.GreaterOrEqual(t, got, prev, "remaining=%d", remaining)
		prev = got
	}
}

func TestPlanCountsBacklog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	planner := NewPlanner(pgpool.NewFromDB(db, zerolog.Nop()), 100, 5000)
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "orders" WHERE "updated_at" >`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(50))

	got, err := planner.Plan(context.Background(), "orders", "updated_at", since)
	require.NoError(t, err)
	assert.Equal(t, 100, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanZeroBacklogShortCircuits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	planner := NewPlanner(pgpool.NewFromDB(db, zerolog.Nop()), 100, 5000)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	got, err := planner.Plan(context.Background(), "orders", "updated_at", time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}
