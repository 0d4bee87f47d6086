package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/portal-crm-backend/pkg/config"
	"github.com/angelmondragon/portal-crm-backend/pkg/db"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
	"github.com/angelmondragon/portal-crm-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// command is one migrate subcommand. Commands without a database run before
// any connection is opened.
type command struct {
	needsDB  bool
	validate func(options) error
	run      func(ctx context.Context, sqlDB *sql.DB, opts options, out io.Writer) error
}

var commands = map[string]command{
	"create": {
		validate: requireFlag("name", func(o options) string { return o.name }),
		run: func(_ context.Context, _ *sql.DB, opts options, out io.Writer) error {
			path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
			if err != nil {
				return fmt.Errorf("create migration: %w", err)
			}
			fmt.Fprintln(out, "created migration:", path)
			return nil
		},
	},
	"validate": {
		run: func(_ context.Context, _ *sql.DB, opts options, out io.Writer) error {
			if err := migrate.ValidateDir(opts.dir); err != nil {
				return fmt.Errorf("migration validation failed: %w", err)
			}
			fmt.Fprintln(out, "migration validation passed")
			return nil
		},
	},
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"redo":   gooseCommand("redo"),
	"status": gooseCommand("status"),
	"version": {
		needsDB:  true,
		validate: requireFlag("version", func(o options) string { return o.version }),
		run: func(ctx context.Context, sqlDB *sql.DB, opts options, _ io.Writer) error {
			return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
		},
	},
}

func gooseCommand(name string) command {
	return command{
		needsDB: true,
		run: func(ctx context.Context, sqlDB *sql.DB, opts options, _ io.Writer) error {
			return migrate.Run(ctx, sqlDB, opts.dir, name)
		},
	}
}

func requireFlag(flagName string, get func(options) string) func(options) error {
	return func(o options) error {
		if strings.TrimSpace(get(o)) == "" {
			return fmt.Errorf("missing -%s for %s", flagName, o.cmd)
		}
		return nil
	}
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func parseArgs(args []string) (options, command, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var opts options
	fs.StringVar(&opts.cmd, "cmd", "up", "migration command: "+commandNames())
	fs.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	fs.StringVar(&opts.name, "name", "", "migration name (for create)")
	fs.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return options{}, command{}, err
	}

	cmd, ok := commands[opts.cmd]
	if !ok {
		return options{}, command{}, fmt.Errorf("unknown -cmd value %q (want %s)", opts.cmd, commandNames())
	}
	if cmd.validate != nil {
		if err := cmd.validate(opts); err != nil {
			return options{}, command{}, err
		}
	}
	return opts, cmd, nil
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	opts, cmd, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": opts.cmd, "dir": opts.dir})

	if err := execute(ctx, cfg, logg, opts, cmd); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options, cmd command) error {
	if !cmd.needsDB {
		return cmd.run(ctx, nil, opts, os.Stdout)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return multierr.Combine(fmt.Errorf("sql database: %w", err), dbClient.Close())
	}

	logg.Info(ctx, "migrate ready")
	runErr := cmd.run(ctx, sqlDB, opts, os.Stdout)
	if runErr != nil {
		runErr = fmt.Errorf("goose %s: %w", opts.cmd, runErr)
	}
	return multierr.Combine(runErr, dbClient.Close())
}
