package ctrader

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
)

// pairDeals maps cTrader deals to trades. Closing deals carry closePositionDetail and become
// closed records; opening deals whose position was not closed in range stay open.
func pairDeals(deals []deal, accountDigits int) []models.TradeHistoryRecord {
	sort.SliceStable(deals, func(i, j int) bool { return deals[i].ExecutionTimestamp < deals[j].ExecutionTimestamp })

	openings := make(map[int64]deal)
	closedPositions := make(map[int64]bool)
	var records []models.TradeHistoryRecord

	for _, d := range deals {
		if d.DealStatus != "" && !strings.EqualFold(d.DealStatus, "FILLED") && !strings.EqualFold(d.DealStatus, "PARTIALLY_FILLED") {
			continue
		}
		digits := accountDigits
		if d.MoneyDigits != nil {
			digits = *d.MoneyDigits
		}

		if d.ClosePositionDetail == nil {
			if _, seen := openings[d.PositionID]; !seen {
				openings[d.PositionID] = d
			}
			continue
		}

		detail := d.ClosePositionDetail
		if detail.MoneyDigits != nil {
			digits = *detail.MoneyDigits
		}
		closeTime := time.UnixMilli(d.ExecutionTimestamp).UTC()
		volume := detail.ClosedVolume
		if volume == 0 {
			volume = filled(d)
		}
		rec := models.TradeHistoryRecord{
			ID:         strconv.FormatInt(d.DealID, 10),
			OrderID:    strconv.FormatInt(d.OrderID, 10),
			PositionID: strconv.FormatInt(d.PositionID, 10),
			Symbol:     d.SymbolName,
			Side:       oppositeSide(tradeSide(d.TradeSide)),
			Status:     models.TradeClosed,
			Volume:     units(volume),
			ClosePrice: priceOf(d.ExecutionPrice),
			OpenPrice:  priceOf(detail.EntryPrice),
			CloseTime:  &closeTime,
			Profit:     money(detail.GrossProfit, digits),
			Commission: money(detail.Commission+d.Commission, digits),
			Swap:       money(detail.Swap, digits),
			Comment:    d.Comment,
		}
		if open, ok := openings[d.PositionID]; ok {
			rec.OpenTime = time.UnixMilli(open.ExecutionTimestamp).UTC()
		}
		closedPositions[d.PositionID] = true
		records = append(records, rec)
	}

	for positionID, d := range openings {
		if closedPositions[positionID] {
			continue
		}
		digits := accountDigits
		if d.MoneyDigits != nil {
			digits = *d.MoneyDigits
		}
		records = append(records, models.TradeHistoryRecord{
			ID:         strconv.FormatInt(d.DealID, 10),
			OrderID:    strconv.FormatInt(d.OrderID, 10),
			PositionID: strconv.FormatInt(positionID, 10),
			Symbol:     d.SymbolName,
			Side:       tradeSide(d.TradeSide),
			Status:     models.TradeOpen,
			Volume:     units(filled(d)),
			OpenPrice:  priceOf(d.ExecutionPrice),
			OpenTime:   time.UnixMilli(d.ExecutionTimestamp).UTC(),
			Commission: money(d.Commission, digits),
			Comment:    d.Comment,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return recordTime(records[i]).Before(recordTime(records[j]))
	})
	return records
}

func priceOf(p float64) decimal.Decimal {
	return decimal.NewFromFloat(p)
}

func filled(d deal) int64 {
	if d.FilledVolume != 0 {
		return d.FilledVolume
	}
	return d.Volume
}

func tradeSide(s string) string {
	if strings.EqualFold(s, "SELL") {
		return models.SideSell
	}
	return models.SideBuy
}

func oppositeSide(side string) string {
	if side == models.SideBuy {
		return models.SideSell
	}
	return models.SideBuy
}

func recordTime(r models.TradeHistoryRecord) time.Time {
	if r.CloseTime != nil {
		return *r.CloseTime
	}
	return r.OpenTime
}
