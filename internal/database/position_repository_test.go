package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembot/ensembot/internal/models"
)

func testPosition() *models.TradingPosition {
	return &models.TradingPosition{
		ID:              "pos-1",
		ExpertID:        "oracle",
		Instrument:      "BTC/USDT",
		Direction:       models.DirectionLong,
		EntryTime:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EntryPrice:      decimal.NewFromInt(50_000),
		EntryConfidence: 72.5,
		Status:          models.PositionOpen,
		BalanceBefore:   decimal.NewFromInt(1000),
	}
}

func TestOpenPosition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := testPosition()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trading_positions")).
		WithArgs(p.ID, p.ExpertID, p.Instrument, "long", p.EntryTime,
			p.EntryPrice, p.EntryConfidence, p.HighestProfitSeen, "open", p.BalanceBefore).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPositionRepository(mock)
	require.NoError(t, repo.Open(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenPositionGuarded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := testPosition()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trading_positions")).
		WithArgs(p.ID, p.ExpertID, p.Instrument, "long", p.EntryTime,
			p.EntryPrice, p.EntryConfidence, p.HighestProfitSeen, "open", p.BalanceBefore).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	repo := NewPositionRepository(mock)
	err = repo.Open(context.Background(), p)
	assert.ErrorIs(t, err, ErrOpenPositionExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOpenPositions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := testPosition()
	mock.ExpectQuery(regexp.QuoteMeta("FROM trading_positions")).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "expert_id", "instrument", "direction", "entry_time",
			"entry_price", "entry_confidence", "highest_profit_seen", "status", "balance_before",
		}).AddRow(p.ID, p.ExpertID, p.Instrument, "long", p.EntryTime,
			p.EntryPrice, p.EntryConfidence, p.HighestProfitSeen, "open", p.BalanceBefore))

	repo := NewPositionRepository(mock)
	open, err := repo.ListOpen(context.Background())

	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, p, open[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClosePositionDoubleCloseReturnsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := testPosition()
	p.Status = models.PositionClosedWin

	mock.ExpectExec(regexp.QuoteMeta("UPDATE trading_positions")).
		WithArgs(p.ID, "closed_win", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPositionRepository(mock)
	err = repo.Close(context.Background(), p)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
