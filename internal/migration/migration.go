package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	validatedomain "github.com/smallbiznis/routepay/internal/validate/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted entity, in foreign-key order.
func Models() []any {
	return []any{
		&driverdomain.DriverProfile{},
		&routedomain.Route{},
		&deliverydomain.DeliveryEvent{},
		&payrolldomain.PayrollRecord{},
		&validatedomain.AddressMismatch{},
	}
}

// Apply migrates the schema for the connected dialect. Postgres uses the
// versioned SQL files; sqlite and mysql fall back to gorm AutoMigrate.
func Apply(conn *gorm.DB) error {
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
