package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/tvqphuoc01/diagram-mcp/api"
	"github.com/tvqphuoc01/diagram-mcp/db/clickhouse"
	"github.com/tvqphuoc01/diagram-mcp/db/ingestion"
	"github.com/tvqphuoc01/diagram-mcp/db/postgres"
	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/decision/generation"
	"github.com/tvqphuoc01/diagram-mcp/decision/rules"
	"github.com/tvqphuoc01/diagram-mcp/internal/awscoverage"
)

const (
	sourceEmbedded   = "embedded"
	sourceClickHouse = "clickhouse"
	sourcePostgres   = "postgres"
)

// env is the loaded catalog, rules and engine plus whatever store backs them
type env struct {
	engine  *generation.Engine
	catalog *catalog.Catalog
	report  *catalog.LoadReport
	store   api.Pinger
	logger  zerolog.Logger
	closers []func() error
}

func (e *env) Close() {
	for _, closeFn := range e.closers {
		if err := closeFn(); err != nil {
			e.logger.Debug().Err(err).Msg("close failed")
		}
	}
}

func openEnv(c *cli.Context) (*env, error) {
	e := &env{logger: log.Logger}
	ctx := loggerContext(c.Context, e.logger)

	rs := rules.Default()
	if path := c.String("rules"); path != "" {
		loaded, err := rules.LoadFile(path)
		if err != nil {
			return nil, err
		}
		rs = loaded
	}

	var src catalog.Source
	switch kind := c.String("catalog"); kind {
	case "", sourceEmbedded:
		src = catalog.EmbeddedSource()
	case sourceClickHouse:
		store, err := openClickHouse(c)
		if err != nil {
			return nil, err
		}
		e.store = store
		e.closers = append(e.closers, store.Close)
		src = store.ActiveSource()
	case sourcePostgres:
		store, err := openPostgres(c)
		if err != nil {
			return nil, err
		}
		e.store = store
		e.closers = append(e.closers, store.Close)
		src = store.ActiveSource()
	default:
		src = catalog.DirSource(kind)
	}

	cat, report, err := catalog.Load(ctx, src)
	if err != nil {
		e.Close()
		return nil, err
	}
	for p, msg := range report.ProviderErrors {
		e.logger.Warn().Str("provider", string(p)).Str("error", msg).Msg("provider catalog degraded")
	}

	e.catalog = cat
	e.report = report
	e.engine = generation.NewEngine(cat, rs).WithLogger(e.logger)
	return e, nil
}

func openClickHouse(c *cli.Context) (*clickhouse.Store, error) {
	return clickhouse.NewStore(&clickhouse.Config{
		Host:     c.String("clickhouse-host"),
		Port:     c.Int("clickhouse-port"),
		Database: c.String("clickhouse-database"),
		Username: c.String("clickhouse-user"),
		Password: c.String("clickhouse-password"),
	})
}

func openPostgres(c *cli.Context) (*postgres.Store, error) {
	dsn := c.String("postgres-dsn")
	if dsn == "" {
		return nil, errors.New("--postgres-dsn (or DATABASE_URL) is required")
	}
	return postgres.Open(dsn)
}

// =============================================================================
// CATALOG COMMAND
// =============================================================================

func catalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Inspect and publish the service catalog",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List catalog services",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "provider", Aliases: []string{"p"}, Usage: "Only this provider"},
					&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Only this category"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "table", Usage: "Output format (table, json)"},
				},
				Action: runCatalogList,
			},
			{
				Name:  "publish",
				Usage: "Publish the loaded catalog as a new active snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "to", Value: sourceClickHouse, Usage: "Target store (clickhouse, postgres)"},
					&cli.StringFlag{Name: "snapshot-version", Value: "1", Usage: "Version label stored with the snapshot"},
					&cli.BoolFlag{Name: "force", Usage: "Publish even when the active snapshot has the same content"},
					&cli.BoolFlag{Name: "migrate", Value: true, Usage: "Create the catalog tables if missing (clickhouse, postgres)"},
					&cli.IntFlag{Name: "batch-size", Value: ingestion.DefaultBatchSize, Usage: "Records per batch insert (clickhouse only; postgres copies in one stream)"},
				},
				Action: runCatalogPublish,
			},
			{
				Name:  "snapshots",
				Usage: "List published catalog snapshots",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Value: sourceClickHouse, Usage: "Store (clickhouse, postgres)"},
				},
				Action: runCatalogSnapshots,
			},
			{
				Name:  "coverage",
				Usage: "Compare AWS catalog entries with the live AWS Pricing service list",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "min-coverage", Usage: "Fail when coverage is below this percentage"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "table", Usage: "Output format (table, json)"},
				},
				Action: runCatalogCoverage,
			},
		},
	}
}

func runCatalogList(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	records := e.catalog.All()
	if raw := c.String("provider"); raw != "" {
		p, err := catalog.ParseProvider(raw)
		if err != nil {
			return err
		}
		records = e.catalog.Records(p)
	}
	category := catalog.Category(strings.ToLower(c.String("category")))
	var out []*catalog.ServiceRecord
	for _, rec := range records {
		if category == "" || rec.Category == category {
			out = append(out, rec)
		}
	}

	if c.String("format") == "json" {
		return writeJSON(c.App.Writer, out)
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tCATEGORY\tSERVICE\tALIASES")
	for _, rec := range out {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Provider, rec.Category, rec.Name, truncate(strings.Join(rec.Aliases, ", "), 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.ErrWriter, "%d services from %s (%s)\n", len(out), e.catalog.Source(), shortHash(e.catalog.Hash()))
	return nil
}

func runCatalogPublish(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := c.Context

	switch target := c.String("to"); target {
	case sourceClickHouse:
		store, err := openClickHouse(c)
		if err != nil {
			return err
		}
		defer store.Close()
		if c.Bool("migrate") {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
		adapter := ingestion.NewClickHouseAdapter(store).
			WithBatchSize(c.Int("batch-size")).
			WithLogger(e.logger)
		res, err := adapter.Publish(ctx, &ingestion.PublishInput{
			Catalog: e.catalog,
			Version: c.String("snapshot-version"),
			Force:   c.Bool("force"),
		})
		if err != nil {
			return err
		}
		if res.Skipped {
			fmt.Fprintf(c.App.Writer, "catalog unchanged, active snapshot %s kept\n", res.SnapshotID)
			return nil
		}
		fmt.Fprintf(c.App.Writer, "published snapshot %s: %d records in %d batches (%s)\n",
			res.SnapshotID, res.RecordCount, res.Batches, res.Duration.Round(time.Millisecond))
	case sourcePostgres:
		store, err := openPostgres(c)
		if err != nil {
			return err
		}
		defer store.Close()
		store.WithMigrate(c.Bool("migrate"))
		if c.Bool("migrate") {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
		if !c.Bool("force") {
			active, err := store.ActiveSnapshot(ctx)
			if err != nil {
				return err
			}
			if active != nil && active.Hash == e.catalog.Hash() {
				fmt.Fprintf(c.App.Writer, "catalog unchanged, active snapshot %s kept\n", active.ID)
				return nil
			}
		}
		snap, err := store.Publish(ctx, e.catalog, c.String("snapshot-version"))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "published snapshot %s: %d records\n", snap.ID, snap.RecordCount)
	default:
		return fmt.Errorf("unknown publish target %q (want clickhouse or postgres)", target)
	}
	return nil
}

func runCatalogSnapshots(c *cli.Context) error {
	ctx := c.Context
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTIVE\tRECORDS\tHASH\tSOURCE\tCREATED")

	switch from := c.String("from"); from {
	case sourceClickHouse:
		store, err := openClickHouse(c)
		if err != nil {
			return err
		}
		defer store.Close()
		snaps, err := store.ListSnapshots(ctx)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Fprintf(tw, "%s\t%t\t%d\t%s\t%s\t%s\n", s.ID, s.IsActive, s.RecordCount, shortHash(s.Hash), s.Source, s.CreatedAt.Format(time.RFC3339))
		}
	case sourcePostgres:
		store, err := openPostgres(c)
		if err != nil {
			return err
		}
		defer store.Close()
		snaps, err := store.ListSnapshots(ctx)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Fprintf(tw, "%s\t%t\t%d\t%s\t%s\t%s\n", s.ID, s.IsActive, s.RecordCount, shortHash(s.Hash), s.Source, s.CreatedAt.Format(time.RFC3339))
		}
	default:
		return fmt.Errorf("unknown snapshot store %q (want clickhouse or postgres)", from)
	}
	return tw.Flush()
}

func runCatalogCoverage(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	lister, err := awscoverage.NewPricingLister(c.Context)
	if err != nil {
		return err
	}
	report, err := awscoverage.Check(c.Context, e.catalog, lister)
	if err != nil {
		return err
	}

	if c.String("format") == "json" {
		if err := writeJSON(c.App.Writer, report); err != nil {
			return err
		}
	} else {
		out := c.App.Writer
		fmt.Fprintf(out, "Live AWS services:   %d\n", report.LiveServices)
		fmt.Fprintf(out, "Mapped services:     %d\n", len(report.Mapped))
		fmt.Fprintf(out, "Coverage:            %.1f%%\n", report.Coverage*100)
		if len(report.Stale) > 0 {
			fmt.Fprintf(out, "Stale service codes: %s\n", strings.Join(report.Stale, ", "))
		}
		if len(report.Unmapped) > 0 {
			fmt.Fprintf(out, "Without code:        %s\n", truncate(strings.Join(report.Unmapped, ", "), 120))
		}
	}

	if minCoverage := c.Float64("min-coverage"); minCoverage > 0 && report.Coverage*100 < minCoverage {
		return cli.Exit(fmt.Sprintf("coverage %.1f%% is below %.1f%%", report.Coverage*100, minCoverage), 2)
	}
	return nil
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
