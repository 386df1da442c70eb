package mt5

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/metaapi"
)

func dealAt(id, positionID, typ, entry string, minute int, volume, price, profit float64) metaapi.Deal {
	return metaapi.Deal{
		ID:         id,
		PositionID: positionID,
		Type:       typ,
		EntryType:  entry,
		Symbol:     "EURUSD",
		Time:       time.Date(2024, 3, 1, 10, minute, 0, 0, time.UTC),
		Volume:     volume,
		Price:      price,
		Profit:     profit,
	}
}

func TestPairDeals_ClosedAndOpen(t *testing.T) {
	deals := []metaapi.Deal{
		{ID: "b0", Type: "DEAL_TYPE_BALANCE", Profit: 10000},
		dealAt("d2", "p1", metaapi.DealTypeSell, metaapi.DealEntryOut, 30, 0.1, 1.1050, 50),
		dealAt("d1", "p1", metaapi.DealTypeBuy, metaapi.DealEntryIn, 0, 0.1, 1.1000, 0),
		dealAt("d3", "p2", metaapi.DealTypeSell, metaapi.DealEntryIn, 40, 0.2, 1.2000, 0),
	}
	deals[2].Commission = -0.7

	records := pairDeals(deals)
	require.Len(t, records, 2)

	closed := records[0]
	assert.Equal(t, "d2", closed.ID)
	assert.Equal(t, models.TradeClosed, closed.Status)
	assert.Equal(t, models.SideBuy, closed.Side)
	assert.True(t, closed.OpenPrice.Equal(decimal.RequireFromString("1.1")))
	assert.True(t, closed.ClosePrice.Equal(decimal.RequireFromString("1.105")))
	assert.True(t, closed.Profit.Equal(decimal.NewFromInt(50)))
	assert.True(t, closed.Commission.Equal(decimal.RequireFromString("-0.7")))
	require.NotNil(t, closed.CloseTime)
	assert.Equal(t, 0, closed.OpenTime.Minute())

	open := records[1]
	assert.Equal(t, "d3", open.ID)
	assert.Equal(t, models.TradeOpen, open.Status)
	assert.Equal(t, models.SideSell, open.Side)
	assert.Nil(t, open.CloseTime)
}

func TestPairDeals_PartialClose(t *testing.T) {
	deals := []metaapi.Deal{
		dealAt("d1", "p1", metaapi.DealTypeBuy, metaapi.DealEntryIn, 0, 1.0, 1.1000, 0),
		dealAt("d2", "p1", metaapi.DealTypeSell, metaapi.DealEntryOut, 10, 0.4, 1.1010, 4),
	}

	records := pairDeals(deals)
	require.Len(t, records, 2)
	assert.Equal(t, models.TradeOpen, records[0].Status)
	assert.True(t, records[0].Volume.Equal(decimal.RequireFromString("0.6")))
	assert.Equal(t, models.TradeClosed, records[1].Status)
	assert.True(t, records[1].Volume.Equal(decimal.RequireFromString("0.4")))
}

func TestPairDeals_ExitWithoutEntryInRange(t *testing.T) {
	deals := []metaapi.Deal{
		dealAt("d9", "p7", metaapi.DealTypeBuy, metaapi.DealEntryOut, 5, 0.3, 1.3, -12),
	}

	records := pairDeals(deals)
	require.Len(t, records, 1)
	assert.Equal(t, models.SideSell, records[0].Side)
	assert.Equal(t, models.TradeClosed, records[0].Status)
	assert.True(t, records[0].OpenPrice.IsZero())
}

func TestPairDeals_Reversal(t *testing.T) {
	deals := []metaapi.Deal{
		dealAt("d1", "p1", metaapi.DealTypeBuy, metaapi.DealEntryIn, 0, 1.0, 1.1, 0),
		dealAt("d2", "p1", metaapi.DealTypeSell, metaapi.DealEntryInOut, 10, 1.5, 1.2, 10),
	}

	records := pairDeals(deals)
	require.Len(t, records, 2)
	assert.Equal(t, models.TradeClosed, records[0].Status)
	assert.Equal(t, models.SideBuy, records[0].Side)
	assert.True(t, records[0].Volume.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, models.TradeOpen, records[1].Status)
	assert.Equal(t, models.SideSell, records[1].Side)
	assert.True(t, records[1].Volume.Equal(decimal.RequireFromString("0.5")))
}
