package postgres

import (
	"errors"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/migrations"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrator applies the embedded SQL migrations
type Migrator struct {
	url    string
	logger *logger.Logger
}

func NewMigrator(url string, logger *logger.Logger) *Migrator {
	return &Migrator{url: url, logger: logger}
}

// Up applies all pending migrations
func (m *Migrator) Up() error {
	return m.run("up", func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down rolls back the given number of migrations
func (m *Migrator) Down(steps int) error {
	return m.run("down", func(mg *migrate.Migrate) error { return mg.Steps(-steps) })
}

// Version returns the current schema version
func (m *Migrator) Version() (uint, bool, error) {
	mg, err := m.open()
	if err != nil {
		return 0, false, err
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (m *Migrator) run(direction string, fn func(*migrate.Migrate) error) error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer mg.Close()

	if err := fn(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return ierr.WithError(err).
			WithHintf("Failed to migrate database %s", direction).
			Mark(ierr.ErrDatabase)
	}

	version, dirty, _ := mg.Version()
	m.logger.Infow("database migrations applied",
		"direction", direction,
		"version", version,
		"dirty", dirty,
	)
	return nil
}

func (m *Migrator) open() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, migrations.PostgresDir)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load embedded migrations").
			Mark(ierr.ErrSystem)
	}

	mg, err := migrate.NewWithSourceInstance("iofs", src, m.url)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect for migrations").
			Retryable().
			Mark(ierr.ErrDatabase)
	}
	return mg, nil
}
