package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/wolfman30/booking-reminders/internal/config"
	appmigrations "github.com/wolfman30/booking-reminders/migrations"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

// migrator is the subset of *migrate.Migrate the verbs drive.
type migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
}

type command struct {
	verb    string
	version int
}

// parseCommand reads: up (default), down, force <version>, version.
func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{verb: "up"}, nil
	}
	switch args[0] {
	case "up", "down", "version":
		return command{verb: args[0]}, nil
	case "force":
		if len(args) < 2 {
			return command{}, errors.New("force needs a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return command{verb: "force", version: v}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q", args[0])
	}
}

func run(m migrator, cmd command, logger *logging.Logger) error {
	switch cmd.verb {
	case "force":
		if err := m.Force(cmd.version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		logger.Info("schema version forced", "version", cmd.version)
	case "down":
		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.Info("rolled back one migration")
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		logger.Info("schema version", "version", v, "dirty", dirty)
	default:
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema already up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		logger.Info("migrations complete")
	}
	return nil
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		logger.Error("bad arguments", "error", err)
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("ping db", "error", err)
		os.Exit(1)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		logger.Error("db driver", "error", err)
		os.Exit(1)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		logger.Error("source driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Error("create migrator", "error", err)
		os.Exit(1)
	}

	err = run(m, cmd, logger)
	_, _ = m.Close()
	if err != nil {
		logger.Error("migration failed", "verb", cmd.verb, "error", err)
		os.Exit(1)
	}
}
