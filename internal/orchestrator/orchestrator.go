// Package orchestrator sequences one full update run: reference data, ship
// details, trade sync, verification, historic re-fetch, trade compute and the
// counter, with operational notification when a stage halts the chain.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fueltracker/internal/counter"
	"fueltracker/internal/model"
	"fueltracker/internal/notify"
	"fueltracker/internal/providers/kpler"
	"fueltracker/internal/refdata"
	"fueltracker/internal/shipdetails"
	"fueltracker/internal/store"
	"fueltracker/internal/tradecompute"
	"fueltracker/internal/tradesync"
)

const defaultRecentDays = 14

// ReferenceFeed is the slice of the provenance client the reference stage
// pulls from. Nil skips the remote pull and loads only the compiled-in data.
type ReferenceFeed interface {
	Products(ctx context.Context) ([]kpler.ProductPayload, error)
	Zones(ctx context.Context) ([]kpler.ZonePayload, error)
	Installations(ctx context.Context) ([]kpler.InstallationPayload, error)
}

type Runner struct {
	Store     *store.Store
	Reference ReferenceFeed
	Selector  *shipdetails.Selector
	Updater   *shipdetails.Updater
	Sync      *tradesync.Engine
	Computer  *tradecompute.Computer
	Counter   *counter.Aggregator
	Notifier  notify.Notifier

	Origins    []string
	RecentDays int
	Now        func() time.Time
}

type stage struct {
	name string
	run  func(ctx context.Context) error
}

// Run executes the fixed stage sequence. The first stage failure halts the
// chain; progress committed by earlier stages is kept.
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	start := r.now()
	origins := r.Origins
	if len(origins) == 0 {
		origins = []string{"RU"}
	}
	recentDays := r.RecentDays
	if recentDays <= 0 {
		recentDays = defaultRecentDays
	}
	from := start.AddDate(0, 0, -recentDays)

	stages := []stage{
		{"reference", r.LoadReference},
		{"shipdetails", r.updateShipDetails},
		{"tradesync", func(ctx context.Context) error {
			return r.Sync.Update(ctx, origins, from, start, start)
		}},
		{"cleanup", func(context.Context) error {
			removed, err := r.Store.DeleteOutdatedComputedTrades()
			if err == nil && removed > 0 {
				slog.Info("outdated computed rows removed", "component", "orchestrator", "rows", removed)
			}
			return err
		}},
		{"verify", func(ctx context.Context) error {
			return r.Sync.Verify(ctx, origins, from, start)
		}},
		{"refetch", func(ctx context.Context) error {
			return r.Sync.RefetchInvalid(ctx, origins)
		}},
		{"tradecompute", func(ctx context.Context) error {
			_, err := r.Computer.Run(ctx)
			return err
		}},
		{"counter", func(ctx context.Context) error {
			_, err := r.Counter.Run(ctx)
			return err
		}},
		{"integrity", func(ctx context.Context) error {
			return r.checkIntegrity(ctx, origins, from, start)
		}},
	}

	slog.Info("run started", "component", "orchestrator", "run_id", runID, "origins", origins)
	for _, st := range stages {
		stageStart := r.now()
		if err := st.run(ctx); err != nil {
			slog.Error("stage failed", "component", "orchestrator",
				"run_id", runID, "stage", st.name, "err", err)
			r.alert(ctx, fmt.Sprintf("run %s halted at stage %s", runID, st.name), err.Error())
			return fmt.Errorf("orchestrator: stage %s: %w", st.name, err)
		}
		slog.Info("stage done", "component", "orchestrator",
			"run_id", runID, "stage", st.name, "elapsed", r.now().Sub(stageStart))
	}
	slog.Info("run finished", "component", "orchestrator", "run_id", runID, "elapsed", r.now().Sub(start))
	return nil
}

// LoadReference replaces the compiled-in tables and, when a feed is wired,
// refreshes products, zones and installations from it. Known export zones
// get their area label applied.
func (r *Runner) LoadReference(ctx context.Context) error {
	commodities, err := refdata.Commodities()
	if err != nil {
		return err
	}
	if err := r.Store.ReplaceCommodities(commodities); err != nil {
		return err
	}
	countries, err := refdata.Countries()
	if err != nil {
		return err
	}
	if err := r.Store.ReplaceCountries(countries); err != nil {
		return err
	}
	if r.Reference == nil {
		return nil
	}

	products, err := r.Reference.Products(ctx)
	if err != nil {
		return err
	}
	productRows := make([]model.Product, 0, len(products))
	for _, p := range products {
		name := p.Commodity
		if name == "" {
			name = p.Group
		}
		productRows = append(productRows, model.Product{
			ID: p.ID, Name: p.Name, Grade: p.Grade, Commodity: p.Commodity,
			Group: p.Group, Family: p.Family, CommodityID: refdata.KplerCommodityID(name),
		})
	}
	if err := r.Store.UpsertProducts(productRows); err != nil {
		return err
	}

	areas, err := refdata.ZoneAreas()
	if err != nil {
		return err
	}
	zones, err := r.Reference.Zones(ctx)
	if err != nil {
		return err
	}
	zoneRows := make([]model.Zone, 0, len(zones))
	for _, z := range zones {
		zoneRows = append(zoneRows, model.Zone{
			ID: z.ID, Name: z.Name, Type: model.ZoneType(z.Type),
			PortID: z.PortID, CountryISO2: z.CountryISO2,
			Area: areas[normalizeZoneName(z.Name)],
		})
	}
	if err := r.Store.UpsertZones(zoneRows); err != nil {
		return err
	}

	installations, err := r.Reference.Installations(ctx)
	if err != nil {
		return err
	}
	installationRows := make([]model.Installation, 0, len(installations))
	for _, inst := range installations {
		installationRows = append(installationRows, model.Installation{
			ID: inst.ID, Name: inst.Name, PortID: inst.PortID, CountryISO2: inst.CountryISO2,
		})
	}
	return r.Store.UpsertInstallations(installationRows)
}

func (r *Runner) updateShipDetails(ctx context.Context) error {
	if r.Selector == nil || r.Updater == nil {
		slog.Info("ship details stage skipped, no scraper wired", "component", "orchestrator")
		return nil
	}
	candidates, err := r.Selector.Select()
	if err != nil {
		return err
	}
	stats, err := r.Updater.Run(ctx, candidates)
	if err != nil {
		return err
	}
	slog.Info("ship details updated", "component", "orchestrator",
		"selected", len(candidates), "scraped", stats.Scraped, "failed", stats.Failed)
	return nil
}

func normalizeZoneName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Runner) alert(ctx context.Context, subject, message string) {
	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.Notify(ctx, subject, message); err != nil {
		slog.Error("notification failed", "component", "orchestrator", "err", err)
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}
