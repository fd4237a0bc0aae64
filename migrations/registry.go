package migrations

import (
	"fmt"
	"io/fs"
	"slices"
	"strings"

	leadhooks "github.com/goliatone/go-leadhooks"
	"github.com/goliatone/go-leadhooks/core"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const baseDir = "data/sql/migrations"

// Source is the migration tree of one SQL dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
	// Versions lists migration names without the .up.sql/.down.sql suffix, in order.
	Versions []string
}

// Sources loads the postgres and sqlite trees from root, defaulting to the embedded
// migrations. Both dialects must ship the same versions, each with an up and a down file.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = leadhooks.GetMigrationsFS()
	}
	base, err := fs.Sub(root, baseDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", baseDir, err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: baseDir, FS: base},
		{Dialect: DialectSQLite, Path: baseDir + "/sqlite", FS: sqliteFS},
	}
	for i := range sources {
		versions, err := versionsOf(sources[i])
		if err != nil {
			return nil, err
		}
		sources[i].Versions = versions
	}
	if !slices.Equal(sources[0].Versions, sources[1].Versions) {
		return nil, fmt.Errorf("migrations: dialects diverge: postgres %v, sqlite %v",
			sources[0].Versions, sources[1].Versions)
	}
	return sources, nil
}

// ForDriver returns the migration tree matching a database/sql driver name.
func ForDriver(driver string, roots ...fs.FS) (Source, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return Source{}, err
	}
	var root fs.FS
	if len(roots) > 0 {
		root = roots[0]
	}
	sources, err := Sources(root)
	if err != nil {
		return Source{}, err
	}
	for _, source := range sources {
		if source.Dialect == dialect {
			return source, nil
		}
	}
	return Source{}, fmt.Errorf("migrations: no tree for dialect %q", dialect)
}

func DialectFor(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case core.DriverPostgres, "pgx":
		return DialectPostgres, nil
	case core.DriverSQLite, DialectSQLite:
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

func versionsOf(source Source) ([]string, error) {
	ups, err := fs.Glob(source.FS, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", source.Path, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s tree %q has no *.up.sql files", source.Dialect, source.Path)
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(source.FS, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("migrations: %s/%s has no down migration", source.Path, up)
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, nil
}
