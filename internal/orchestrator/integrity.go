package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fueltracker/internal/model"
)

const unknownGapDays = 100

// checkIntegrity runs the post-run consistency checks. Findings are reported
// and the data is left as-is for the next run to heal; only the reporting
// path can fail the stage.
func (r *Runner) checkIntegrity(ctx context.Context, origins []string, from, to time.Time) error {
	var findings []string

	if n, err := r.duplicateTradeKeys(); err != nil {
		return err
	} else if n > 0 {
		findings = append(findings, fmt.Sprintf("%d duplicate raw trade keys", n))
	}

	missing, err := r.unconvergedSyncDays(origins, from, to)
	if err != nil {
		return err
	}
	if missing > 0 {
		findings = append(findings, fmt.Sprintf("%d sync days not advanced by this run", missing))
	}

	overlaps, err := r.validOverlappingUnknowns()
	if err != nil {
		return err
	}
	if overlaps > 0 {
		findings = append(findings, fmt.Sprintf("%d unknown insurer rows overlap a known one", overlaps))
	}

	if len(findings) == 0 {
		return nil
	}
	message := strings.Join(findings, "; ")
	slog.Error("integrity checks failed", "component", "orchestrator", "findings", message)
	r.alert(ctx, "integrity checks failed", message)
	return nil
}

func (r *Runner) duplicateTradeKeys() (int64, error) {
	var total, distinct int64
	db := r.Store.DB()
	if err := db.Model(&model.RawTrade{}).Count(&total).Error; err != nil {
		return 0, err
	}
	err := db.Model(&model.RawTrade{}).
		Distinct("trade_id", "flow_id", "product_id").Count(&distinct).Error
	return total - distinct, err
}

// unconvergedSyncDays counts days in the run window whose last_updated still
// predates the run start (the window's upper bound).
func (r *Runner) unconvergedSyncDays(origins []string, from, to time.Time) (int, error) {
	missing := 0
	for _, origin := range origins {
		rows, err := r.Store.SyncHistoryRange(origin,
			from.Format(model.DateLayout), to.Format(model.DateLayout))
		if err != nil {
			return 0, err
		}
		updated := map[string]time.Time{}
		for _, row := range rows {
			updated[row.Date] = row.LastUpdated
		}
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if ts, ok := updated[day.Format(model.DateLayout)]; !ok || ts.Before(to) {
				missing++
			}
		}
	}
	return missing, nil
}

// validOverlappingUnknowns counts unknown insurer rows the cleaner should
// have retired: scraped within the gap bound of their start and contradicted
// by a later known row.
func (r *Runner) validOverlappingUnknowns() (int, error) {
	byShip, err := r.Store.AllInsurers()
	if err != nil {
		return 0, err
	}
	violations := 0
	for _, rows := range byShip {
		for i := range rows {
			unknown := rows[i]
			if !unknown.IsValid || !unknown.Unknown() ||
				unknown.DateFromEquasis == nil || unknown.CheckedOn == nil {
				continue
			}
			if unknown.CheckedOn.Sub(*unknown.DateFromEquasis) >= unknownGapDays*24*time.Hour {
				continue
			}
			for j := range rows {
				known := rows[j]
				if known.Unknown() || known.DateFromEquasis == nil || known.UpdatedOn == nil {
					continue
				}
				if unknown.DateFromEquasis.Before(*known.DateFromEquasis) &&
					known.UpdatedOn.After(*unknown.CheckedOn) {
					violations++
					break
				}
			}
		}
	}
	return violations, nil
}
