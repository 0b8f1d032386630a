package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	"github.com/platinummonkey/scorecard/pkg/storage"
)

func (e *env) newMigrateCommand() *Command {
	return &Command{
		Name:        "migrate",
		Description: "Apply the database schema",
		Run:         e.runMigrate,
	}
}

func (e *env) runMigrate(args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	driver, url := dbFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	db, dialect, err := e.connect(ctx, *driver, *url)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db, dialect); err != nil {
		return err
	}
	e.logger.WithField("dialect", dialect).Info("Schema applied")
	return nil
}

func (e *env) connect(ctx context.Context, driver, url string) (*sql.DB, storage.Dialect, error) {
	if url == "" {
		return nil, "", fmt.Errorf("a database URL is required (--db or SCORECARD_DATABASE_URL)")
	}
	cfg := storage.DefaultConfig()
	cfg.Driver = driver
	cfg.URL = url
	if cfg.Dialect() == storage.DialectSQLite {
		cfg.MaxConns = 1
	}

	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	e.logger.WithField("driver", driver).Debug("Connected to database")
	return db, cfg.Dialect(), nil
}
