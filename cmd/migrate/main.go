package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/stickerlab/stickerlab/pkg/config"
	"github.com/stickerlab/stickerlab/pkg/db"
	"github.com/stickerlab/stickerlab/pkg/logger"
	"github.com/stickerlab/stickerlab/pkg/migrate"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	cmd     string
	dir     string
	fromDir bool
	name    string
	version string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fset := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	fset.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory (create, validate, -from-dir)")
	fset.BoolVar(&opts.fromDir, "from-dir", false, "apply migrations from -dir instead of the embedded set")
	fset.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	fset.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	if err := fset.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	// create and validate only touch the filesystem.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			fmt.Fprintln(stderr, "missing -name for create")
			return 1
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			fmt.Fprintf(stderr, "create migration: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "created migration:", path)
		return 0
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			fmt.Fprintf(stderr, "migration validation failed: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "migration validation passed")
		return 0
	case "up", "down", "status", "version":
	default:
		fmt.Fprintln(stderr, "unknown -cmd value:", opts.cmd)
		return 2
	}
	if opts.cmd == "version" && opts.version == "" {
		fmt.Fprintln(stderr, "missing -version for version command")
		return 2
	}

	_ = godotenv.Load()
	if _, err := config.ApplyFile(config.DefaultFilePath()); err != nil {
		fmt.Fprintf(stderr, "config file: %v\n", err)
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if cfg.Store.Driver != config.StoreDriverSQLite && cfg.Store.Driver != config.StoreDriverPostgres {
		fmt.Fprintf(stderr, "store driver %q has no SQL schema to migrate\n", cfg.Store.Driver)
		return 1
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      stderr,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"cmd":   opts.cmd,
		"store": cfg.Store.Driver,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "open database", err)
		return 1
	}
	defer dbClient.Close()

	var source fs.FS
	if opts.fromDir {
		source = os.DirFS(opts.dir)
	}
	provider, err := migrate.NewProvider(dbClient, source)
	if err != nil {
		logg.Error(ctx, "build goose provider", err)
		return 1
	}

	if opts.cmd == "version" {
		if err := migrate.MigrateToVersion(ctx, provider, opts.version); err != nil {
			fmt.Fprintf(stderr, "goose version migrate failed: %v\n", err)
			return 1
		}
		return 0
	}

	lines, err := migrate.Run(ctx, provider, opts.cmd)
	if err != nil {
		fmt.Fprintf(stderr, "goose %s failed: %v\n", opts.cmd, err)
		return 1
	}
	for _, line := range lines {
		fmt.Fprintln(stdout, line)
	}
	return 0
}
