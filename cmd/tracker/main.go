package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"fueltracker/internal/counter"
	"fueltracker/internal/model"
	"fueltracker/internal/notify"
	"fueltracker/internal/orchestrator"
	"fueltracker/internal/providers/equasis"
	"fueltracker/internal/providers/insurersite"
	"fueltracker/internal/providers/kpler"
	"fueltracker/internal/refdata"
	"fueltracker/internal/shipdetails"
	"fueltracker/internal/store"
	"fueltracker/internal/tradecompute"
	"fueltracker/internal/tradesync"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	case "backfill":
		backfill(os.Args[2:])
	case "verify":
		verify(os.Args[2:])
	case "ships":
		ships(os.Args[2:])
	case "compute":
		compute(os.Args[2:])
	case "counter":
		counterCmd(os.Args[2:])
	case "reference":
		reference(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tracker <command> [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  run        full orchestrated update run")
	fmt.Fprintln(os.Stderr, "  backfill   refresh raw trades for a date range")
	fmt.Fprintln(os.Stderr, "  verify     compare stored trades against feed aggregates")
	fmt.Fprintln(os.Stderr, "  ships      refresh insurer/owner/flag details for stale ships")
	fmt.Fprintln(os.Stderr, "  compute    rebuild the denormalised trade view")
	fmt.Fprintln(os.Stderr, "  counter    aggregate the monetary counter")
	fmt.Fprintln(os.Stderr, "  reference  load reference data only")
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "tracker:", err)
	os.Exit(1)
}

func openStore(dsn string) *store.Store {
	st, err := store.Open(dsn)
	if err != nil {
		fail(err)
	}
	return st
}

func newFeed() *kpler.Client {
	cfg, err := kpler.ConfigFromEnv()
	if err != nil {
		fail(err)
	}
	auth := kpler.NewPasswordAuthenticator(
		getenv("KPLER_AUTH_URL", cfg.BaseURL+"auth"),
		cfg.Email, cfg.Password, cfg.OTPSeed,
	)
	client, err := kpler.NewWithConfig(cfg, auth)
	if err != nil {
		fail(err)
	}
	return client
}

func newScraper() *equasis.Scraper {
	if os.Getenv("EQUASIS_EMAIL_PATTERN") == "" {
		return nil
	}
	var solver equasis.CaptchaSolver
	if httpSolver := equasis.NewHTTPSolverFromEnv(); httpSolver != nil {
		solver = httpSolver
	}
	scraper, err := equasis.New(solver)
	if err != nil {
		fail(err)
	}
	return scraper
}

func parseDate(value string) time.Time {
	ts, err := time.Parse(model.DateLayout, value)
	if err != nil {
		fail(fmt.Errorf("invalid date %q: %w", value, err))
	}
	return ts
}

func parseOrigins(csv string) []string {
	var origins []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			origins = append(origins, part)
		}
	}
	return origins
}

func run(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dbPath := fs.String("db", "fueltracker.db", "sqlite database path")
	origins := fs.String("origins", "RU", "comma-separated origin ISO2 list")
	recentDays := fs.Int("recent-days", 14, "recent window re-synced each run")
	priorities := fs.String("priorities", "", "ship priority table YAML (empty = defaults)")
	overrides := fs.String("company-overrides", "", "company country override YAML")
	insurerSites := fs.String("insurer-sites", "", "insurer coverage-site table YAML")
	version := fs.String("version", string(model.CounterV2), "counter algorithm version")
	fs.Parse(args)

	st := openStore(*dbPath)
	defer st.Close()
	feed := newFeed()

	table, err := shipdetails.LoadPriorities(*priorities)
	if err != nil {
		fail(err)
	}
	companyCountries, err := tradecompute.LoadOverrides(*overrides)
	if err != nil {
		fail(err)
	}

	runner := &orchestrator.Runner{
		Store:      st,
		Reference:  feed,
		Sync:       &tradesync.Engine{Store: st, Feed: feed},
		Computer:   &tradecompute.Computer{Store: st, Overrides: companyCountries},
		Counter:    &counter.Aggregator{Store: st, Version: model.CounterVersion(*version)},
		Notifier:   webhookOrNil(),
		Origins:    parseOrigins(*origins),
		RecentDays: *recentDays,
	}
	if scraper := newScraper(); scraper != nil {
		confirmer, err := insurersite.Load(*insurerSites)
		if err != nil {
			fail(err)
		}
		runner.Selector = &shipdetails.Selector{Store: st, Priorities: table}
		runner.Updater = &shipdetails.Updater{Store: st, Scraper: scraper, Confirmer: confirmer}
	}

	if err := runner.Run(context.Background()); err != nil {
		fail(err)
	}
}

func backfill(args []string) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	dbPath := fs.String("db", "fueltracker.db", "sqlite database path")
	origins := fs.String("origins", "RU", "comma-separated origin ISO2 list")
	from := fs.String("from", "", "start date (YYYY-MM-DD)")
	to := fs.String("to", "", "end date (YYYY-MM-DD)")
	fs.Parse(args)
	if *from == "" || *to == "" {
		fail(fmt.Errorf("backfill requires -from and -to"))
	}

	st := openStore(*dbPath)
	defer st.Close()

	engine := &tradesync.Engine{Store: st, Feed: newFeed()}
	if err := engine.Update(context.Background(), parseOrigins(*origins),
		parseDate(*from), parseDate(*to), time.Time{}); err != nil {
		fail(err)
	}
}

func verify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dbPath := fs.String("db", "fueltracker.db", "sqlite database path")
	origins := fs.String("origins", "RU", "comma-separated origin ISO2 list")
	from := fs.String("from", "", "start date (YYYY-MM-DD)")
	to := fs.String("to", "", "end date (YYYY-MM-DD)")
	refetch := fs.Bool("refetch", false, "re-ingest months containing rejected days")
	fs.Parse(args)
	if *from == "" || *to == "" {
		fail(fmt.Errorf("verify requires -from and -to"))
	}

	st := openStore(*dbPath)
	defer st.Close()

	engine := &tradesync.Engine{Store: st, Feed: newFeed()}
	ctx := context.Background()
	originList := parseOrigins(*origins)
	if err := engine.Verify(ctx, originList, parseDate(*from), parseDate(*to)); err != nil {
		fail(err)
	}
	if *refetch {
		if err := engine.RefetchInvalid(ctx, originList); err != nil {
			fail(err)
		}
	}
}

func ships(args []string) {
	fs := flag.NewFlagSet("ships", flag.ExitOnError)
	dbPath := fs.String("db", "fueltracker.db", "sqlite database path")
	priorities := fs.String("priorities", "", "ship priority table YAML (empty = defaults)")
	insurerSites := fs.String("insurer-sites", "", "insurer coverage-site table YAML")
	runCap := fs.Int("cap", 0, "per-run ship cap (0 = default)")
	fs.Parse(args)

	st := openStore(*dbPath)
	defer st.Close()
	scraper := newScraper()
	if scraper == nil {
		fail(fmt.Errorf("ships requires the EQUASIS_* environment to be set"))
	}

	table, err := shipdetails.LoadPriorities(*priorities)
	if err != nil {
		fail(err)
	}
	confirmer, err := insurersite.Load(*insurerSites)
	if err != nil {
		fail(err)
	}
	selector := &shipdetails.Selector{Store: st, Priorities: table, RunCap: *runCap}
	candidates, err := selector.Select()
	if err != nil {
		fail(err)
	}
	updater := &shipdetails.Updater{Store: st, Scraper: scraper, Confirmer: confirmer}
	stats, err := updater.Run(context.Background(), candidates)
	if err != nil {
		fail(err)
	}
	slog.Info("ship details updated", "selected", len(candidates),
		"scraped", stats.Scraped, "failed", stats.Failed)
}

func compute(args []string) {
	fs := flag.NewFlagSet("compute", flag.ExitOnError)
	dbPath := fs.String("db", "fueltracker.db", "sqlite database path")
	overrides := fs.String("company-overrides", "", "company country override YAML")
	fs.Parse(args)

	st := openStore(*dbPath)
	defer st.Close()

	companyCountries, err := tradecompute.LoadOverrides(*overrides)
	if err != nil {
		fail(err)
	}
	computer := &tradecompute.Computer{Store: st, Overrides: companyCountries}
	rows, err := computer.Run(context.Background())
	if err != nil {
		fail(err)
	}
	slog.Info("trades computed", "rows", rows)
}

func counterCmd(args []string) {
	fs := flag.NewFlagSet("counter", flag.ExitOnError)
	dbPath := fs.String("db", "fueltracker.db", "sqlite database path")
	version := fs.String("version", string(model.CounterV2), "counter algorithm version")
	fs.Parse(args)

	st := openStore(*dbPath)
	defer st.Close()

	aggregator := &counter.Aggregator{Store: st, Version: model.CounterVersion(*version)}
	rows, err := aggregator.Run(context.Background())
	if err != nil {
		fail(err)
	}
	slog.Info("counter aggregated", "rows", rows)
}

func reference(args []string) {
	fs := flag.NewFlagSet("reference", flag.ExitOnError)
	dbPath := fs.String("db", "fueltracker.db", "sqlite database path")
	local := fs.Bool("local", false, "skip the remote reference pull")
	fs.Parse(args)

	st := openStore(*dbPath)
	defer st.Close()

	runner := &orchestrator.Runner{Store: st}
	if !*local {
		runner.Reference = newFeed()
	}
	if err := runner.LoadReference(context.Background()); err != nil {
		fail(err)
	}
	commodities, err := refdata.Commodities()
	if err != nil {
		fail(err)
	}
	slog.Info("reference data loaded", "commodities", len(commodities))
}

func webhookOrNil() notify.Notifier {
	if hook := notify.NewWebhookFromEnv(); hook != nil {
		return hook
	}
	return nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
