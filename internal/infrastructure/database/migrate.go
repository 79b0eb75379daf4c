package database

import (
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations brings the bot_state schema up to date. An already-current
// schema is not an error.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("initialisation des migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("application des migrations: %w", err)
		}
		log.Println("✅ Schéma bot_state déjà à jour.")
		return nil
	}

	version, dirty, _ := m.Version()
	log.Printf("✅ Schéma bot_state migré (version %d, dirty=%v).", version, dirty)
	return nil
}
