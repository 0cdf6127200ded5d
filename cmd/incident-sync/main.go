// incident-sync maintains a local SQLite cache of a crowdsourced
// incident-reporting API: reads go fetch-then-cache with a transparent stale
// fallback, reactions apply optimistically, and a background reconciler
// evicts rows that have not synced within the retention window.
//
// Usage:
//
//	incident-sync daemon [--config <path>]             # run the cache reconciler until signalled
//	incident-sync sweep [--config <path>]              # single eviction pass then exit
//	incident-sync nearby --lat <f> --lon <f> [--radius <km>]
//	incident-sync feed [--page <n>]
//	incident-sync react --report <id> --feedback useful|not_useful
//	incident-sync group --id <id> [--join|--leave]
//	incident-sync version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/c0deZ3R0/incident-sync/config"
	"github.com/c0deZ3R0/incident-sync/incident"
	"github.com/c0deZ3R0/incident-sync/keylock"
	"github.com/c0deZ3R0/incident-sync/logging"
	"github.com/c0deZ3R0/incident-sync/reaction"
	"github.com/c0deZ3R0/incident-sync/reconciler"
	"github.com/c0deZ3R0/incident-sync/remote"
	"github.com/c0deZ3R0/incident-sync/repository"
	"github.com/c0deZ3R0/incident-sync/storage/sqlite"
	"github.com/c0deZ3R0/incident-sync/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch cmd := os.Args[1]; cmd {
	case "daemon":
		return runDaemon(os.Args[2:])
	case "sweep":
		return runSweep(os.Args[2:])
	case "nearby":
		return runNearby(os.Args[2:])
	case "feed":
		return runFeed(os.Args[2:])
	case "react":
		return runReact(os.Args[2:])
	case "group":
		return runGroup(os.Args[2:])
	case "version":
		fmt.Println("incident-sync", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q — run 'incident-sync' for usage", cmd)
	}
}

func printUsage() error {
	fmt.Fprintln(os.Stderr, "incident-sync — offline-first cache for the incident-reporting API")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  incident-sync daemon [--config ...]    Run the cache reconciler until signalled")
	fmt.Fprintln(os.Stderr, "  incident-sync sweep [--config ...]     Single eviction pass then exit")
	fmt.Fprintln(os.Stderr, "  incident-sync nearby --lat --lon       Fetch nearby reports (stale fallback)")
	fmt.Fprintln(os.Stderr, "  incident-sync feed [--page ...]        Fetch one page of the user feed")
	fmt.Fprintln(os.Stderr, "  incident-sync react --report --feedback  Toggle feedback on a cached report")
	fmt.Fprintln(os.Stderr, "  incident-sync group --id [--join|--leave]  Show or change group membership")
	fmt.Fprintln(os.Stderr, "  incident-sync version                  Print version")
	os.Exit(1)
	return nil // unreachable
}

// app bundles the wired components behind one teardown.
type app struct {
	store     *sqlite.Store
	client    *remote.HTTPClient
	reports   *repository.ReportRepository
	posts     *repository.PostRepository
	groups    *repository.GroupRepository
	reactions *reaction.Coordinator
	sweeper   *reconciler.Reconciler
	shutdown  telemetry.ShutdownFunc
}

// configFlags parses the shared --config flag plus any extra flags the
// subcommand registered on fs.
func configFlags(fs *flag.FlagSet, args []string) (*config.Config, error) {
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*cfgPath)
}

// newApp wires the full stack from configuration.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	shutdown := telemetry.ShutdownFunc(func(context.Context) error { return nil })
	metrics := telemetry.Collector(telemetry.NoopCollector{})
	if cfg.Telemetry != nil {
		var err error
		shutdown, err = telemetry.Setup(ctx, telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up telemetry: %w", err)
		}
		metrics, err = telemetry.NewOTelCollector()
		if err != nil {
			return nil, fmt.Errorf("creating metrics collector: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	store, err := sqlite.NewWithDataSource(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	client := remote.NewHTTPClient(cfg.APIBaseURL, cfg.APIToken,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))

	locks := keylock.NewMap()
	sweeper, err := reconciler.New(store, cfg.CacheRetention, cfg.EvictInterval,
		reconciler.WithCollector(metrics))
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		store:     store,
		client:    client,
		reports:   repository.NewReportRepository(store, client, locks, repository.WithCollector(metrics)),
		posts:     repository.NewPostRepository(store, client, locks, repository.WithCollector(metrics)),
		groups:    repository.NewGroupRepository(store, client, locks, repository.WithCollector(metrics)),
		reactions: reaction.NewCoordinator(store, store, client, locks, reaction.WithCollector(metrics)),
		sweeper:   sweeper,
		shutdown:  shutdown,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("closing cache database", "error", err)
	}
	a.client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		slog.Warn("telemetry shutdown", "error", err)
	}
}

func runDaemon(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	cfg, err := configFlags(fs, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.sweeper.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return a.sweeper.Stop()
}

func runSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfg, err := configFlags(fs, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	rows, err := a.sweeper.EvictAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("evicted %d rows\n", rows)
	return nil
}

func runNearby(args []string) error {
	fs := flag.NewFlagSet("nearby", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "latitude of the query center")
	lon := fs.Float64("lon", 0, "longitude of the query center")
	radius := fs.Float64("radius", 0, "radius in km (default from config)")
	cfg, err := configFlags(fs, args)
	if err != nil {
		return err
	}
	if *radius == 0 {
		*radius = cfg.DefaultRadiusKm
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	res := a.reports.ReportsNear(ctx, *lat, *lon, *radius)
	if !res.Ok() {
		return res.Err
	}
	if res.Freshness == repository.StaleData {
		fmt.Fprintf(os.Stderr, "warning: showing cached data (%v)\n", res.Err)
	}
	return printJSON(res.Data)
}

func runFeed(args []string) error {
	fs := flag.NewFlagSet("feed", flag.ExitOnError)
	page := fs.Int("page", 1, "feed page to fetch")
	cfg, err := configFlags(fs, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	res := a.posts.Feed(ctx, *page, cfg.PageSize)
	if !res.Ok() {
		return res.Err
	}
	if res.Freshness == repository.StaleData {
		fmt.Fprintf(os.Stderr, "warning: showing cached data (%v)\n", res.Err)
	}
	return printJSON(res.Data)
}

func runReact(args []string) error {
	fs := flag.NewFlagSet("react", flag.ExitOnError)
	reportID := fs.String("report", "", "report id to react to")
	feedback := fs.String("feedback", "useful", "useful or not_useful")
	cfg, err := configFlags(fs, args)
	if err != nil {
		return err
	}
	if *reportID == "" {
		return fmt.Errorf("--report is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.reactions.ToggleReportFeedback(ctx, *reportID, incident.Feedback(*feedback))
	if report == nil {
		return err
	}
	if err != nil {
		// The local toggle stuck; only the server confirmation failed.
		fmt.Fprintf(os.Stderr, "warning: not confirmed by server (%v)\n", err)
	}
	return printJSON(report)
}

func runGroup(args []string) error {
	fs := flag.NewFlagSet("group", flag.ExitOnError)
	id := fs.String("id", "", "group id")
	join := fs.Bool("join", false, "join the group")
	leave := fs.Bool("leave", false, "leave the group")
	cfg, err := configFlags(fs, args)
	if err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	if *join && *leave {
		return fmt.Errorf("--join and --leave are mutually exclusive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	printMembership := func(group *incident.Group, err error) error {
		if group == nil {
			return err
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: not confirmed by server (%v)\n", err)
		}
		return printJSON(group)
	}

	switch {
	case *join:
		return printMembership(a.groups.Join(ctx, *id))
	case *leave:
		return printMembership(a.groups.Leave(ctx, *id))
	default:
		res := a.groups.Group(ctx, *id)
		if !res.Ok() {
			return res.Err
		}
		if res.Freshness == repository.StaleData {
			fmt.Fprintf(os.Stderr, "warning: showing cached data (%v)\n", res.Err)
		}
		return printJSON(res.Data)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
