package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/andresuchdata/po-tool/internal/app"
	"github.com/andresuchdata/po-tool/internal/config"
	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/repository/postgres"
	"github.com/andresuchdata/po-tool/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"
)

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func openDB(c *cli.Context) (*sql.DB, error) {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(c.Context); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func main() {
	application := &cli.App{
		Name:  "potool",
		Usage: "Operate the purchase order workflow",
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create the purchase order and settings tables",
				Flags:  []cli.Flag{newDBURLFlag()},
				Action: runMigrate,
			},
			{
				Name:  "settings",
				Usage: "Inspect or seed the stored settings",
				Subcommands: []*cli.Command{
					{
						Name:  "seed",
						Usage: "Store the default settings that are missing",
						Flags: []cli.Flag{
							newDBURLFlag(),
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Overwrite existing settings with the defaults",
							},
						},
						Action: runSettingsSeed,
					},
					{
						Name:   "show",
						Usage:  "Print the stored settings as JSON",
						Flags:  []cli.Flag{newDBURLFlag()},
						Action: runSettingsShow,
					},
				},
			},
			{
				Name:  "stage",
				Usage: "Run a pipeline stage in the foreground",
				Subcommands: []*cli.Command{
					{
						Name:      "run",
						Usage:     "Run one stage, and any stage chained after it, for a purchase order",
						ArgsUsage: "<stage>",
						Flags: []cli.Flag{
							&cli.Int64Flag{Name: "po", Usage: "Purchase order id", Required: true},
						},
						Action: runStage,
					},
				},
			},
			{
				Name:  "cache",
				Usage: "Manage the reference data caches",
				Subcommands: []*cli.Command{
					{
						Name:      "refresh",
						Usage:     "Reload one cache, or all of them, from their sources",
						ArgsUsage: "[cache name]",
						Action:    runCacheRefresh,
					},
				},
			},
		},
	}

	if err := application.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runMigrate(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(c.Context, db); err != nil {
		return err
	}
	logger.Log.Info().Msg("schema applied")
	return nil
}

func runSettingsSeed(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	settings := postgres.NewSettingsRepository(postgres.Wrap(sqlx.NewDb(db, "pgx")))
	seeded, err := app.SeedSettings(c.Context, settings, c.Bool("force"))
	if err != nil {
		return err
	}
	logger.Log.Info().Strs("settings", seeded).Msg("settings seeded")
	return nil
}

func runSettingsShow(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	settings := postgres.NewSettingsRepository(postgres.Wrap(sqlx.NewDb(db, "pgx")))
	breakdown, err := settings.BreakdownSettings(c.Context)
	if err != nil {
		return fmt.Errorf("breakdown settings: %w", err)
	}
	catalog, err := settings.CatalogSettings(c.Context)
	if err != nil {
		return fmt.Errorf("catalog settings: %w", err)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		domain.SettingsBreakdownNetSales: breakdown,
		domain.SettingsCatalog:           catalog,
	})
}

func runStage(c *cli.Context) error {
	stage := domain.Stage(c.Args().First())
	if _, ok := domain.Transitions[stage]; !ok {
		return fmt.Errorf("unknown stage %q", stage)
	}

	application, err := app.New(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer application.Close()
	application.RefData.RestoreAll(c.Context)

	status, err := application.Runner.RunSync(c.Context, c.Int64("po"), stage)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "purchase order %d is now %s\n", c.Int64("po"), status)
	return nil
}

func runCacheRefresh(c *cli.Context) error {
	application, err := app.New(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer application.Close()

	if name := c.Args().First(); name != "" {
		// sales reports join against the other caches
		application.RefData.RestoreAll(c.Context)
		return application.RefData.Refresh(c.Context, name)
	}
	return application.RefData.RefreshAll(c.Context)
}
