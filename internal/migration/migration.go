package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	idempotencydomain "github.com/smallbiznis/paydesk/internal/idempotency/domain"
	ledgerdomain "github.com/smallbiznis/paydesk/internal/ledger/domain"
	paymentlinkdomain "github.com/smallbiznis/paydesk/internal/paymentlink/domain"
	receiptdomain "github.com/smallbiznis/paydesk/internal/receipt/domain"
	webhookdomain "github.com/smallbiznis/paydesk/internal/webhook/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded SQL migrations to a Postgres database.
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

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&ledgerdomain.Transaction{},
		&ledgerdomain.Transition{},
		&idempotencydomain.Record{},
		&paymentlinkdomain.PaymentLink{},
		&webhookdomain.Event{},
		&receiptdomain.Receipt{},
	}
}

// AutoMigrate creates the schema from the GORM models. It backs the SQLite
// and MySQL dialects and the in-memory test databases.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(Models()...)
}
