package mt5

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/metaapi"
)

// openLeg is the unclosed part of a position built from its entry deal.
type openLeg struct {
	record    models.TradeHistoryRecord
	remaining decimal.Decimal
}

// pairDeals turns terminal deals into trades. Entry and exit deals sharing a position id
// become one closed record per exit; entries never closed in the range stay open.
// Balance, credit and other non-trade deals are skipped.
func pairDeals(deals []metaapi.Deal) []models.TradeHistoryRecord {
	sorted := make([]metaapi.Deal, 0, len(deals))
	for _, d := range deals {
		if d.Type == metaapi.DealTypeBuy || d.Type == metaapi.DealTypeSell {
			sorted = append(sorted, d)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	open := make(map[string]*openLeg)
	var order []string
	var records []models.TradeHistoryRecord

	for _, d := range sorted {
		key := d.PositionID
		if key == "" {
			key = d.ID
		}
		volume := decimal.NewFromFloat(d.Volume)

		switch d.EntryType {
		case metaapi.DealEntryIn:
			if leg, ok := open[key]; ok {
				// Scaling into an existing position.
				leg.remaining = leg.remaining.Add(volume)
				leg.record.Volume = leg.record.Volume.Add(volume)
				leg.record.Commission = leg.record.Commission.Add(decimal.NewFromFloat(d.Commission))
				continue
			}
			open[key] = &openLeg{record: entryRecord(d), remaining: volume}
			order = append(order, key)

		case metaapi.DealEntryOut, metaapi.DealEntryOutBy, metaapi.DealEntryInOut:
			leg := open[key]
			closed := exitRecord(d, leg)
			records = append(records, closed)
			if leg == nil {
				if d.EntryType == metaapi.DealEntryInOut {
					open[key] = &openLeg{record: entryRecord(d), remaining: volume}
					order = append(order, key)
				}
				continue
			}

			leg.remaining = leg.remaining.Sub(volume)
			// Entry commission and swap are charged to the first exit.
			leg.record.Commission = decimal.Zero
			leg.record.Swap = decimal.Zero
			if !leg.remaining.IsPositive() {
				excess := leg.remaining.Neg()
				delete(open, key)
				if d.EntryType == metaapi.DealEntryInOut && excess.IsPositive() {
					reversed := entryRecord(d)
					reversed.Volume = excess
					open[key] = &openLeg{record: reversed, remaining: excess}
					order = append(order, key)
				}
			}

		default:
			continue
		}
	}

	for _, key := range order {
		leg, ok := open[key]
		if !ok {
			continue
		}
		delete(open, key)
		rec := leg.record
		rec.Volume = leg.remaining
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return recordTime(records[i]).Before(recordTime(records[j]))
	})
	return records
}

func entryRecord(d metaapi.Deal) models.TradeHistoryRecord {
	return models.TradeHistoryRecord{
		ID:         d.ID,
		OrderID:    d.OrderID,
		PositionID: d.PositionID,
		Symbol:     d.Symbol,
		Side:       dealSide(d.Type),
		Status:     models.TradeOpen,
		Volume:     decimal.NewFromFloat(d.Volume),
		OpenPrice:  decimal.NewFromFloat(d.Price),
		OpenTime:   d.Time,
		Profit:     decimal.NewFromFloat(d.Profit),
		Commission: decimal.NewFromFloat(d.Commission),
		Swap:       decimal.NewFromFloat(d.Swap),
		Comment:    d.Comment,
	}
}

// exitRecord builds the closed trade for an exit deal. Without a matching entry in range the
// side is inferred from the exit direction and the open leg is left empty.
func exitRecord(d metaapi.Deal, leg *openLeg) models.TradeHistoryRecord {
	closeTime := d.Time
	rec := models.TradeHistoryRecord{
		ID:         d.ID,
		OrderID:    d.OrderID,
		PositionID: d.PositionID,
		Symbol:     d.Symbol,
		Side:       oppositeSide(dealSide(d.Type)),
		Status:     models.TradeClosed,
		Volume:     decimal.NewFromFloat(d.Volume),
		ClosePrice: decimal.NewFromFloat(d.Price),
		CloseTime:  &closeTime,
		Profit:     decimal.NewFromFloat(d.Profit),
		Commission: decimal.NewFromFloat(d.Commission),
		Swap:       decimal.NewFromFloat(d.Swap),
		Comment:    d.Comment,
	}
	if leg != nil {
		rec.Side = leg.record.Side
		rec.OpenPrice = leg.record.OpenPrice
		rec.OpenTime = leg.record.OpenTime
		rec.Commission = rec.Commission.Add(leg.record.Commission)
		rec.Swap = rec.Swap.Add(leg.record.Swap)
		if leg.remaining.LessThan(rec.Volume) {
			rec.Volume = leg.remaining
		}
		if rec.Comment == "" {
			rec.Comment = leg.record.Comment
		}
	}
	return rec
}

func dealSide(dealType string) string {
	if dealType == metaapi.DealTypeSell {
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
