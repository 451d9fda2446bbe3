package shipdetails

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"fueltracker/internal/model"
	"fueltracker/internal/store"
)

const (
	defaultRunCap = 500

	// expiryHeuristic flags known cover likely to have lapsed: P&I policies
	// run twelve months, so anything started over eleven months ago is due.
	expiryHeuristic = 11 * 30 * 24 * time.Hour

	backoffBase   = 1.5
	backoffCapDay = 90

	// jitterDays randomises the known-refresh threshold so a fleet scraped
	// in one run does not come due again in one run.
	jitterDays = 3
)

type Selector struct {
	Store      *store.Store
	Priorities PriorityTable
	RunCap     int
	Now        func() time.Time
	Rand       *rand.Rand
}

// Candidate is one ship due for a registry scrape.
type Candidate struct {
	Ship     model.Ship
	Rank     int
	Failures int
	Checked  time.Time
}

// Select returns the ships due for scraping, capped and ordered by
// (priority, consecutive failures, last check).
func (s *Selector) Select() ([]Candidate, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	runCap := s.RunCap
	if runCap <= 0 {
		runCap = defaultRunCap
	}
	priorities := s.Priorities
	if priorities == nil {
		priorities = DefaultPriorities()
	}

	ships, err := s.Store.AllShips()
	if err != nil {
		return nil, err
	}
	insurers, err := s.Store.AllInsurers()
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, ship := range ships {
		rows := insurers[ship.IMO]
		priority := priorities.For(ship.Commodity)
		due, failures, checked := s.evaluate(ship, rows, priority, now)
		if !due {
			continue
		}
		candidates = append(candidates, Candidate{Ship: ship, Rank: priority.Rank, Failures: failures, Checked: checked})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Rank != candidates[j].Rank {
			return candidates[i].Rank < candidates[j].Rank
		}
		if candidates[i].Failures != candidates[j].Failures {
			return candidates[i].Failures < candidates[j].Failures
		}
		return candidates[i].Checked.Before(candidates[j].Checked)
	})
	if len(candidates) > runCap {
		candidates = candidates[:runCap]
	}
	return candidates, nil
}

func (s *Selector) evaluate(ship model.Ship, rows []model.ShipInsurer, priority Priority, now time.Time) (bool, int, time.Time) {
	latest := latestChecked(rows)

	var failures int
	var checked time.Time
	if latest != nil {
		failures = latest.ConsecutiveFailures
		if latest.CheckedOn != nil {
			checked = *latest.CheckedOn
		}
	}

	// A ship inside its failure backoff window stays out of the run unless
	// it has never been checked at all.
	if latest != nil && failures > 0 && !checked.IsZero() {
		window := time.Duration(math.Min(math.Pow(backoffBase, float64(failures)), backoffCapDay)) * 24 * time.Hour
		if checked.After(now.Add(-window)) {
			return false, failures, checked
		}
	}

	if ship.ForceUnknown {
		return true, failures, checked
	}
	if len(rows) == 0 {
		return true, 0, time.Time{}
	}

	if latest.Unknown() {
		threshold := now.Add(-time.Duration(priority.UnknownRefreshDays) * 24 * time.Hour)
		return checked.IsZero() || checked.Before(threshold), failures, checked
	}

	refreshDays := float64(priority.KnownRefreshDays) + s.jitter()
	threshold := now.Add(-time.Duration(refreshDays * 24 * float64(time.Hour)))
	if latest.UpdatedOn == nil || latest.UpdatedOn.Before(threshold) {
		return true, failures, checked
	}
	if latest.DateFrom != nil && latest.DateFrom.Before(now.Add(-expiryHeuristic)) {
		return true, failures, checked
	}
	return false, failures, checked
}

func (s *Selector) jitter() float64 {
	if s.Rand == nil {
		return (rand.Float64()*2 - 1) * jitterDays
	}
	return (s.Rand.Float64()*2 - 1) * jitterDays
}

// latestChecked picks the row carrying the ship's current scrape state.
func latestChecked(rows []model.ShipInsurer) *model.ShipInsurer {
	var latest *model.ShipInsurer
	for i := range rows {
		row := &rows[i]
		if latest == nil {
			latest = row
			continue
		}
		if checkedAfter(row, latest) {
			latest = row
		}
	}
	return latest
}

func checkedAfter(a, b *model.ShipInsurer) bool {
	at := rowCheckTime(a)
	bt := rowCheckTime(b)
	return at.After(bt)
}

func rowCheckTime(row *model.ShipInsurer) time.Time {
	if row.CheckedOn != nil {
		return *row.CheckedOn
	}
	if row.UpdatedOn != nil {
		return *row.UpdatedOn
	}
	return time.Time{}
}
