package database

import (
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/username/tradejournal/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// connPragmas are applied through the DSN so every connection gets them.
// WAL lets the stats reads proceed while an import batch is writing, and
// foreign_keys makes the trade/strategy/tag cascades actually fire.
var connPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(on)",
}

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath+"?_pragma="+strings.Join(connPragmas, "&_pragma="))
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	// Import batches run as single multi-insert transactions; one writer
	// connection keeps them from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		stdlog.Fatalf("failed to ping database: %v", err)
	}
	DB = db
	logger.L.Info("Database connection established.", "path", databasePath, "pragmas", connPragmas)
}

// RunMigrations applies pending schema migrations. The source directory
// defaults to ./db/migrations and can be overridden with MIGRATIONS_DIR
// (the container image ships them under /app/db/migrations).
func RunMigrations(databasePath string) {
	if DB == nil {
		stdlog.Fatal("database connection is not initialized before running migrations")
	}

	driver, err := sqlite.WithInstance(DB, &sqlite.Config{})
	if err != nil {
		stdlog.Fatalf("could not create sqlite migration driver: %v", err)
	}

	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = filepath.Join("db", "migrations")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		stdlog.Fatalf("failed to resolve migrations directory %s: %v", dir, err)
	}
	sourceURL := fmt.Sprintf("file://%s", filepath.ToSlash(abs))

	m, err := migrate.NewWithDatabaseInstance(sourceURL, databasePath, driver)
	if err != nil {
		logger.L.Error("Migration instance creation failed", "source", sourceURL, "error", err)
		stdlog.Fatalf("migration instance creation failed: %v", err)
	}

	logger.L.Info("Applying database migrations...", "source", sourceURL)
	switch err = m.Up(); {
	case err == nil:
		logger.L.Info("Database migrations applied successfully.")
	case errors.Is(err, migrate.ErrNoChange):
		logger.L.Info("No new database migrations to apply.")
	default:
		logger.L.Error("Failed to apply migrations", "error", err)
		stdlog.Fatalf("failed to apply migrations: %v", err)
	}
}
