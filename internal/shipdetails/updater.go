package shipdetails

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"fueltracker/internal/model"
	"fueltracker/internal/providers/equasis"
	"fueltracker/internal/store"
)

// DetailScraper is the registry client the updater drives. Satisfied by
// *equasis.Scraper.
type DetailScraper interface {
	ShipDetails(ctx context.Context, imo string) (equasis.ShipDetails, error)
}

// CoverageConfirmer fills in inception dates the registry did not give, from
// the insurers' own sites. Satisfied by *insurersite.Client.
type CoverageConfirmer interface {
	CoverageStart(ctx context.Context, insurerName, imo string) (*time.Time, error)
}

type Updater struct {
	Store     *store.Store
	Scraper   DetailScraper
	Confirmer CoverageConfirmer
	Now       func() time.Time

	companies []model.Company
}

type UpdateStats struct {
	Scraped int
	Failed  int
}

// Run scrapes every candidate, committing each ship's insurer, owner,
// manager and flag updates in one transaction. Per-ship errors are recorded
// and the loop continues.
func (u *Updater) Run(ctx context.Context, candidates []Candidate) (UpdateStats, error) {
	var stats UpdateStats

	companies, err := u.Store.AllCompanies()
	if err != nil {
		return stats, err
	}
	u.companies = companies

	for _, candidate := range candidates {
		now := u.now()
		details, err := u.Scraper.ShipDetails(ctx, candidate.Ship.IMO)
		if err != nil {
			stats.Failed++
			scrapes.WithLabelValues("failed").Inc()
			slog.Warn("ship scrape failed", "component", "shipdetails", "imo", candidate.Ship.IMO, "err", err)
			if recErr := u.recordFailure(candidate.Ship, now); recErr != nil {
				return stats, recErr
			}
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			continue
		}

		u.confirmInsurerDates(ctx, candidate.Ship.IMO, details.Insurers)

		err = u.Store.Transaction(func(tx *gorm.DB) error {
			return u.apply(u.Store.WithTx(tx), candidate.Ship, details, now)
		})
		if err != nil {
			return stats, err
		}
		stats.Scraped++
		scrapes.WithLabelValues("scraped").Inc()
	}

	if err := u.invalidateOverlappingUnknowns(); err != nil {
		return stats, err
	}
	return stats, nil
}

// confirmInsurerDates asks the insurers' own sites for inception dates the
// registry left blank. A confirmation failure keeps the row undated.
func (u *Updater) confirmInsurerDates(ctx context.Context, imo string, records []equasis.InsurerRecord) {
	if u.Confirmer == nil {
		return
	}
	for i := range records {
		if records[i].DateFrom != nil {
			continue
		}
		dateFrom, err := u.Confirmer.CoverageStart(ctx, records[i].Name, imo)
		if err != nil {
			slog.Warn("coverage confirmation failed", "component", "shipdetails",
				"imo", imo, "insurer", records[i].Name, "err", err)
			continue
		}
		records[i].DateFrom = dateFrom
	}
}

func (u *Updater) apply(st *store.Store, ship model.Ship, details equasis.ShipDetails, now time.Time) error {
	rows, err := st.InsurersByShip(ship.IMO)
	if err != nil {
		return err
	}

	if len(details.Insurers) == 0 {
		if err := u.recordNoInsurer(st, ship, rows, now); err != nil {
			return err
		}
	} else {
		for _, record := range details.Insurers {
			if err := u.applyInsurer(st, ship, rows, record, now); err != nil {
				return err
			}
			// re-read so a second record in the same scrape sees the
			// rows the first one wrote
			rows, err = st.InsurersByShip(ship.IMO)
			if err != nil {
				return err
			}
		}
	}

	for _, record := range details.Owners {
		if err := u.applyOwner(st, ship, record, now); err != nil {
			return err
		}
	}
	for _, record := range details.Managers {
		if err := u.applyManager(st, ship, record, now); err != nil {
			return err
		}
	}
	if details.FlagISO2 != "" {
		if err := u.applyFlag(st, ship, details.FlagISO2, now); err != nil {
			return err
		}
	}
	return nil
}

// applyInsurer writes one scraped insurer under the special cases: the
// first-ever insurer back-fills an open-ended row, an open-ended row is never
// mutated into a dated one, and a clean re-read just refreshes bookkeeping.
func (u *Updater) applyInsurer(st *store.Store, ship model.Ship, rows []model.ShipInsurer, record equasis.InsurerRecord, now time.Time) error {
	name := strings.TrimSpace(record.Name)
	if name == "" {
		return nil
	}
	companyID := u.resolveCompany(st, name, "")

	var sameName []*model.ShipInsurer
	hasKnown := false
	for i := range rows {
		if !rows[i].Unknown() {
			hasKnown = true
		}
		if strings.EqualFold(rows[i].CompanyRawName, name) {
			sameName = append(sameName, &rows[i])
		}
	}

	if !hasKnown && len(sameName) == 0 {
		// First-ever insurer for this ship: back-fill the ship's history
		// with an open-ended row before writing the dated one.
		open := model.ShipInsurer{
			ShipIMO:        ship.IMO,
			CompanyRawName: name,
			CompanyID:      companyID,
			UpdatedOn:      &now,
			CheckedOn:      &now,
			IsValid:        true,
		}
		if err := st.SaveInsurer(&open); err != nil {
			return err
		}
		dated := model.ShipInsurer{
			ShipIMO:         ship.IMO,
			CompanyRawName:  name,
			CompanyID:       companyID,
			DateFrom:        record.DateFrom,
			DateFromEquasis: &now,
			UpdatedOn:       &now,
			CheckedOn:       &now,
			IsValid:         true,
		}
		return st.SaveInsurer(&dated)
	}

	if len(sameName) > 0 {
		latest := sameName[len(sameName)-1]
		if latest.DateFromEquasis == nil {
			// Never overwrite the open-ended history row; the dated
			// observation becomes a new row.
			latest.CheckedOn = &now
			if err := st.SaveInsurer(latest); err != nil {
				return err
			}
			dated := model.ShipInsurer{
				ShipIMO:         ship.IMO,
				CompanyRawName:  name,
				CompanyID:       companyID,
				DateFrom:        record.DateFrom,
				DateFromEquasis: &now,
				UpdatedOn:       &now,
				CheckedOn:       &now,
				IsValid:         true,
			}
			return st.SaveInsurer(&dated)
		}

		latest.UpdatedOn = &now
		latest.CheckedOn = &now
		latest.ConsecutiveFailures = 0
		if record.DateFrom != nil {
			latest.DateFrom = record.DateFrom
		}
		if latest.CompanyID == nil {
			latest.CompanyID = companyID
		}
		return st.SaveInsurer(latest)
	}

	// A new insurer for a ship that already has history.
	row := model.ShipInsurer{
		ShipIMO:         ship.IMO,
		CompanyRawName:  name,
		CompanyID:       companyID,
		DateFrom:        record.DateFrom,
		DateFromEquasis: &now,
		UpdatedOn:       &now,
		CheckedOn:       &now,
		IsValid:         true,
	}
	return st.SaveInsurer(&row)
}

// recordNoInsurer handles a successful scrape that shows no cover: unknown
// rows are never duplicated, only their failure count and check time move.
func (u *Updater) recordNoInsurer(st *store.Store, ship model.Ship, rows []model.ShipInsurer, now time.Time) error {
	latest := latestChecked(rows)
	if latest != nil && latest.Unknown() {
		latest.CheckedOn = &now
		latest.ConsecutiveFailures++
		return st.SaveInsurer(latest)
	}

	row := model.ShipInsurer{
		ShipIMO:             ship.IMO,
		CompanyRawName:      model.UnknownCompany,
		CheckedOn:           &now,
		ConsecutiveFailures: 1,
		IsValid:             true,
	}
	if len(rows) > 0 {
		row.DateFromEquasis = &now
	}
	return st.SaveInsurer(&row)
}

// recordFailure bumps the failure counter after a scrape error so the
// backoff window engages. A ship with no history yet gets an unknown
// placeholder row to carry the counter.
func (u *Updater) recordFailure(ship model.Ship, now time.Time) error {
	rows, err := u.Store.InsurersByShip(ship.IMO)
	if err != nil {
		return err
	}
	latest := latestChecked(rows)
	if latest == nil {
		row := model.ShipInsurer{
			ShipIMO:             ship.IMO,
			CompanyRawName:      model.UnknownCompany,
			CheckedOn:           &now,
			ConsecutiveFailures: 1,
			IsValid:             true,
		}
		return u.Store.SaveInsurer(&row)
	}
	latest.CheckedOn = &now
	latest.ConsecutiveFailures++
	return u.Store.SaveInsurer(latest)
}

func (u *Updater) applyOwner(st *store.Store, ship model.Ship, record equasis.CompanyRecord, now time.Time) error {
	name := strings.TrimSpace(record.Name)
	if name == "" {
		return nil
	}
	row := model.ShipOwner{
		ShipIMO:        ship.IMO,
		CompanyRawName: name,
		CompanyID:      u.resolveCompany(st, name, record.Address),
		DateFrom:       record.DateFrom,
		UpdatedOn:      now,
	}
	return st.UpsertOwner(&row)
}

func (u *Updater) applyManager(st *store.Store, ship model.Ship, record equasis.CompanyRecord, now time.Time) error {
	name := strings.TrimSpace(record.Name)
	if name == "" {
		return nil
	}
	row := model.ShipManager{
		ShipIMO:        ship.IMO,
		CompanyRawName: name,
		CompanyID:      u.resolveCompany(st, name, record.Address),
		DateFrom:       record.DateFrom,
		UpdatedOn:      now,
	}
	return st.UpsertManager(&row)
}

func (u *Updater) applyFlag(st *store.Store, ship model.Ship, flagISO2 string, now time.Time) error {
	flags, err := st.FlagsByShip(ship.IMO)
	if err != nil {
		return err
	}
	for i := range flags {
		if flags[i].FlagISO2 == flagISO2 {
			flags[i].UpdatedOn = now
			return st.UpsertFlag(&flags[i])
		}
	}
	return st.UpsertFlag(&model.ShipFlag{
		ShipIMO:   ship.IMO,
		FlagISO2:  flagISO2,
		FirstSeen: now,
		UpdatedOn: now,
	})
}

// resolveCompany reuses an existing company when the raw name is a spelling
// variant (trigram similarity at or above the threshold), creating one
// otherwise.
func (u *Updater) resolveCompany(st *store.Store, name, address string) *int64 {
	var best *model.Company
	bestScore := 0.0
	for i := range u.companies {
		score := trigramSimilarity(u.companies[i].Name, name)
		if score >= companyMatchThreshold && score > bestScore {
			best = &u.companies[i]
			bestScore = score
		}
	}
	if best != nil {
		return &best.ID
	}

	company := model.Company{Name: name, Address: address}
	if err := st.CreateCompany(&company); err != nil {
		slog.Warn("company create failed", "component", "shipdetails", "name", name, "err", err)
		return nil
	}
	u.companies = append(u.companies, company)
	return &company.ID
}

func (u *Updater) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now().UTC()
}
