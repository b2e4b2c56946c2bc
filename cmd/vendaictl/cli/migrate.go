package cli

import (
	"errors"
	"fmt"

	"github.com/vendai/vendai-jobs/internal/platform/db"
)

// MigrateOptions configures the migrate command.
type MigrateOptions struct {
	Output
	DSN     string
	Migrate func(dsn string) error
	Version func(dsn string) (uint, bool, error)
}

// MigrateCommand applies the embedded schema migrations and reports the
// resulting schema version.
func MigrateCommand(opts MigrateOptions) int {
	if opts.DSN == "" {
		return opts.fail(errors.New("database dsn is required"))
	}
	migrate := opts.Migrate
	if migrate == nil {
		migrate = db.Migrate
	}
	version := opts.Version
	if version == nil {
		version = db.Version
	}
	if err := migrate(opts.DSN); err != nil {
		return opts.fail(err)
	}
	current, dirty, err := version(opts.DSN)
	if err != nil {
		return opts.fail(err)
	}
	if dirty {
		return opts.fail(fmt.Errorf("schema version %d is dirty", current))
	}
	if opts.JSONOutput {
		return opts.json(map[string]any{"version": current, "dirty": dirty})
	}
	fmt.Fprintf(opts.stdout(), "migrations applied (version %d)\n", current)
	return 0
}
