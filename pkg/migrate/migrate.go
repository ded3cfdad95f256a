package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/stickerlab/stickerlab/pkg/db"
)

// DefaultDir is where new migrations are created; the files are compiled into
// the binary through Migrations.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the embedded migration files rooted at the migrations dir.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("migrate: embedded migrations: %v", err))
	}
	return sub
}

// NewProvider builds a goose provider for the client's dialect.
func NewProvider(client *db.Client, fsys fs.FS) (*goose.Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if fsys == nil {
		fsys = Migrations()
	}

	var dialect goose.Dialect
	switch client.Dialect() {
	case "postgres":
		dialect = goose.DialectPostgres
	case "sqlite":
		dialect = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("no goose dialect for %q", client.Dialect())
	}

	sqlDB, err := client.SQLDB()
	if err != nil {
		return nil, fmt.Errorf("extracting sql.DB: %w", err)
	}
	provider, err := goose.NewProvider(dialect, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Run executes one goose command (up, down, status) and returns printable lines.
func Run(ctx context.Context, provider *goose.Provider, command string) ([]string, error) {
	switch command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose up: %w", err)
		}
		return describeResults(results), nil

	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose down: %w", err)
		}
		return describeResults([]*goose.MigrationResult{result}), nil

	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose status: %w", err)
		}
		lines := make([]string, 0, len(statuses))
		for _, st := range statuses {
			applied := "pending"
			if st.State == goose.StateApplied {
				applied = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			lines = append(lines, fmt.Sprintf("%d %s %s", st.Source.Version, st.Source.Path, applied))
		}
		return lines, nil

	default:
		return nil, fmt.Errorf("unknown migrate command %q", command)
	}
}

// MigrateToVersion migrates up or down to targetVersion (YYYYMMDDHHMMSS).
func MigrateToVersion(ctx context.Context, provider *goose.Provider, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if _, err := provider.UpTo(ctx, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if _, err := provider.DownTo(ctx, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

func describeResults(results []*goose.MigrationResult) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %d %s (%s)", r.Direction, r.Source.Version, r.Source.Path, r.Duration))
	}
	return lines
}
