package tradesync

import (
	"context"
	"log/slog"
	"math"
	"time"

	"fueltracker/internal/model"
	"fueltracker/internal/providers/kpler"
	"fueltracker/internal/store"
)

const (
	// factorTolerance is the per-factor and per-day relative error accepted
	// by the aggregate compare.
	factorTolerance = 0.05

	// maxFactorExceptions factors may exceed the tolerance on a day that
	// still totals within tolerance.
	maxFactorExceptions = 2

	// rollingWindowDays scales the absolute-error relief: an error within 5%
	// of the trailing window's total traffic is noise, not drift.
	rollingWindowDays  = 90
	rollingReliefRatio = 0.05
)

// Verify compares stored raw trades against the feed's own daily aggregates
// on the destination-country and product-group axes, and stamps each day's
// sync-history row with the outcome.
func (e *Engine) Verify(ctx context.Context, origins []string, from, to time.Time) error {
	from = dayStart(from)
	to = dayStart(to)
	checkedAt := e.now()

	for _, origin := range origins {
		destOK, err := e.verifyAxis(ctx, origin, kpler.AxisDestination, from, to)
		if err != nil {
			return err
		}
		groupOK, err := e.verifyAxis(ctx, origin, kpler.AxisProductGroup, from, to)
		if err != nil {
			return err
		}

		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			date := day.Format(model.DateLayout)
			ok := destOK[date] && groupOK[date]
			if !ok {
				reconciliationFailures.WithLabelValues(origin).Inc()
				slog.Warn("day failed aggregate compare", "component", "tradesync",
					"origin", origin, "date", date)
			}
			if err := e.Store.MarkSyncChecked(origin, date, ok, checkedAt); err != nil {
				return err
			}
		}
	}
	return nil
}

// verifyAxis returns per-day acceptance for one split axis.
func (e *Engine) verifyAxis(ctx context.Context, origin string, axis kpler.AggregateAxis, from, to time.Time) (map[string]bool, error) {
	// The feed pull reaches back a window before the range so the rolling
	// relief has history to sum over.
	feed, err := e.Feed.FlowAggregates(ctx, origin, axis, from.AddDate(0, 0, -rollingWindowDays), to)
	if err != nil {
		return nil, err
	}

	var stored []store.DailyFactorSum
	dateFrom, dateTo := from.Format(model.DateLayout), to.Format(model.DateLayout)
	switch axis {
	case kpler.AxisDestination:
		stored, err = e.Store.DailyTonnesByDestination(origin, dateFrom, dateTo)
	default:
		stored, err = e.Store.DailyTonnesByProductGroup(origin, dateFrom, dateTo)
	}
	if err != nil {
		return nil, err
	}

	feedByDay := map[string]map[string]float64{}
	dayTotals := map[string]float64{}
	for _, agg := range feed {
		if feedByDay[agg.Date] == nil {
			feedByDay[agg.Date] = map[string]float64{}
		}
		feedByDay[agg.Date][agg.Factor] += agg.Tonne
		dayTotals[agg.Date] += agg.Tonne
	}
	storedByDay := map[string]map[string]float64{}
	for _, sum := range stored {
		if storedByDay[sum.Date] == nil {
			storedByDay[sum.Date] = map[string]float64{}
		}
		storedByDay[sum.Date][sum.Factor] += sum.Tonne
	}

	result := map[string]bool{}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(model.DateLayout)
		relief := rollingReliefRatio * rollingSum(dayTotals, day)
		result[date] = compareDay(feedByDay[date], storedByDay[date], relief)
	}
	return result, nil
}

// compareDay applies the tolerance ladder: every factor within 5% (or within
// the rolling relief in absolute terms) passes outright; a small number of
// factor exceptions is forgiven when the day total still matches.
func compareDay(feed, stored map[string]float64, relief float64) bool {
	exceptions := 0
	var feedTotal, storedTotal float64

	for factor, want := range feed {
		feedTotal += want
		if !factorWithin(want, stored[factor], relief) {
			exceptions++
		}
	}
	for factor, got := range stored {
		storedTotal += got
		if _, seen := feed[factor]; seen {
			continue
		}
		if !factorWithin(0, got, relief) {
			exceptions++
		}
	}

	if exceptions == 0 {
		return true
	}
	if exceptions > maxFactorExceptions {
		return false
	}
	return factorWithin(feedTotal, storedTotal, 0)
}

func factorWithin(want, got, relief float64) bool {
	diff := math.Abs(want - got)
	if diff <= relief {
		return true
	}
	base := math.Max(math.Abs(want), math.Abs(got))
	if base == 0 {
		return true
	}
	return diff/base <= factorTolerance
}

// rollingSum totals the trailing window ending on day.
func rollingSum(dayTotals map[string]float64, day time.Time) float64 {
	var sum float64
	for i := 0; i < rollingWindowDays; i++ {
		sum += dayTotals[day.AddDate(0, 0, -i).Format(model.DateLayout)]
	}
	return sum
}
