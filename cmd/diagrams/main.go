// diagrams CLI - architecture descriptions to diagram source
//
// Usage:
//
//	diagrams search "postgres" --provider aws
//	diagrams generate --type infrastructure "a load balancer in front of servers and a database"
//	diagrams serve --port 8080
//	diagrams catalog publish --to clickhouse
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/tvqphuoc01/diagram-mcp/api"
	"github.com/tvqphuoc01/diagram-mcp/decision/generation"
	"github.com/tvqphuoc01/diagram-mcp/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	platform.LoadDotEnv(platform.GetEnvList("DIAGRAMS_ENV_FILE", nil)...)

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "diagrams",
		Usage:   "Turn infrastructure descriptions into diagram source code",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"DIAGRAMS_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "console",
				Usage:   "Log format (console, json)",
				EnvVars: []string{"DIAGRAMS_LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "catalog",
				Value:   sourceEmbedded,
				Usage:   "Catalog source: embedded, clickhouse, postgres, or a directory of provider YAML files",
				EnvVars: []string{"DIAGRAMS_CATALOG"},
			},
			&cli.StringFlag{
				Name:    "rules",
				Usage:   "Path to a rules YAML file overriding the built-in tables",
				EnvVars: []string{"DIAGRAMS_RULES"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "diagrams",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				Usage:   "Postgres connection string",
				EnvVars: []string{"DATABASE_URL", "POSTGRES_DSN"},
			},
		},

		Before: func(c *cli.Context) error {
			platform.InitLogger(c.String("log-level"), c.String("log-format"))
			return nil
		},

		Commands: []*cli.Command{
			searchCommand(),
			generateCommand(),
			typesCommand(),
			serveCommand(),
			catalogCommand(),
		},
	}
}

// =============================================================================
// SEARCH COMMAND
// =============================================================================

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find catalog services matching a query",
		ArgsUsage: "QUERY",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "provider", Aliases: []string{"p"}, Usage: "Restrict to one provider"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Restrict to one category"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: generation.DefaultSearchLimit, Usage: "Maximum results"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "table", Usage: "Output format (table, json)"},
		},
		Action: runSearch,
	}
}

func runSearch(c *cli.Context) error {
	env, err := openEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	results, err := env.engine.Search(c.Context, generation.SearchRequest{
		Query:    strings.Join(c.Args().Slice(), " "),
		Provider: c.String("provider"),
		Category: c.String("category"),
		Limit:    c.Int("limit"),
	})
	if err != nil {
		return err
	}

	out := c.App.Writer
	if c.String("format") == "json" {
		return writeJSON(out, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No matching services")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tKIND\tPROVIDER\tCATEGORY\tSERVICE\tIMPORT")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Decimal().StringFixed(2), r.Kind, r.Record.Provider, r.Record.Category, r.Record.Name, r.Record.ImportPath)
	}
	return tw.Flush()
}

// =============================================================================
// GENERATE COMMAND
// =============================================================================

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate diagram source from a description",
		ArgsUsage: "DESCRIPTION (or - to read standard input)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: "infrastructure", Usage: "Diagram type"},
			&cli.StringFlag{Name: "provider", Aliases: []string{"p"}, Usage: "Preferred provider"},
			&cli.StringFlag{Name: "title", Usage: "Diagram title"},
			&cli.StringFlag{Name: "file", Aliases: []string{"i"}, Usage: "Read the description from a file"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the source code to a file"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "source", Usage: "Output format (source, json)"},
			&cli.StringFlag{Name: "diagram-format", Aliases: []string{"d"}, Usage: "Source language of the diagram (python-diagrams, mermaid, plantuml); defaults per type"},
		},
		Action: runGenerate,
	}
}

func runGenerate(c *cli.Context) error {
	description, err := readDescription(c.String("file"), c.Args().Slice(), c.App.Reader)
	if err != nil {
		return err
	}

	env, err := openEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := env.engine.Generate(c.Context, generation.Request{
		Description: description,
		Provider:    c.String("provider"),
		DiagramType: c.String("type"),
		Title:       c.String("title"),
		Format:      c.String("diagram-format"),
	})
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(c.App.ErrWriter, "warning: %s\n", w)
	}
	fmt.Fprintf(c.App.ErrWriter, "%d of %d components resolved, %d relationships\n",
		result.Stats.EntitiesResolved, result.Stats.EntitiesFound, len(result.Edges))

	if path := c.String("output"); path != "" {
		if err := os.WriteFile(path, []byte(result.SourceCode), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(c.App.ErrWriter, "wrote %s (%s)\n", path, result.Format)
		return nil
	}
	if c.String("format") == "json" {
		return writeJSON(c.App.Writer, result)
	}
	_, err = io.WriteString(c.App.Writer, result.SourceCode)
	return err
}

// readDescription takes the description from a file, from "-" (stdin) or
// from the joined arguments.
func readDescription(file string, args []string, stdin io.Reader) (string, error) {
	var raw []byte
	var err error
	switch {
	case file != "":
		raw, err = os.ReadFile(file)
	case len(args) == 1 && args[0] == "-":
		raw, err = io.ReadAll(stdin)
	default:
		raw = []byte(strings.Join(args, " "))
	}
	if err != nil {
		return "", fmt.Errorf("failed to read description: %w", err)
	}
	description := strings.TrimSpace(string(raw))
	if description == "" {
		return "", fmt.Errorf("a description is required")
	}
	return description, nil
}

// =============================================================================
// TYPES COMMAND
// =============================================================================

func typesCommand() *cli.Command {
	return &cli.Command{
		Name:  "types",
		Usage: "List supported diagram types and their output formats",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "table", Usage: "Output format (table, json)"},
		},
		Action: func(c *cli.Context) error {
			env, err := openEnv(c)
			if err != nil {
				return err
			}
			defer env.Close()

			infos := env.engine.DiagramTypes()
			if c.String("format") == "json" {
				return writeJSON(c.App.Writer, infos)
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tFORMAT\tALSO\tCLUSTERED\tDEFAULT TITLE")
			for _, info := range infos {
				also := "-"
				if len(info.Formats) > 1 {
					names := make([]string, 0, len(info.Formats)-1)
					for _, f := range info.Formats[1:] {
						names = append(names, string(f))
					}
					also = strings.Join(names, ",")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", info.Type, info.Format, also, info.Clustered, info.Title)
			}
			return tw.Flush()
		},
	}
}

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the diagram API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"DIAGRAMS_PORT", "PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Value:   "*",
				Usage:   "Comma-separated list of allowed CORS origins",
				EnvVars: []string{"DIAGRAMS_CORS_ORIGINS"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Require this X-API-Key on /api routes",
				EnvVars: []string{"DIAGRAMS_API_KEY"},
			},
			&cli.IntFlag{
				Name:    "search-cache-size",
				Value:   api.DefaultConfig().SearchCacheSize,
				Usage:   "Number of search responses kept in memory",
				EnvVars: []string{"DIAGRAMS_SEARCH_CACHE_SIZE"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	env, err := openEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	corsOrigins := strings.Split(c.String("cors-origins"), ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")
	cfg.CORSOrigins = corsOrigins
	cfg.APIKey = c.String("api-key")
	cfg.SearchCacheSize = c.Int("search-cache-size")

	api.Version = version
	server, err := api.NewServer(env.engine, cfg)
	if err != nil {
		return err
	}
	server.WithLoadReport(env.report).WithLogger(env.logger)
	if env.store != nil {
		server.WithStore(env.store)
	}
	return server.StartWithGracefulShutdown()
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loggerContext(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return logger.WithContext(ctx)
}
