package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"

	"github.com/ManuelReschke/SupplierHub/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	dbURL := fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		env.GetEnv("DB_USER", "supplierhub"),
		env.GetEnv("DB_PASSWORD", "supplierhub"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "supplierhub_db"),
	)

	log.Info().
		Str("user", env.GetEnv("DB_USER", "supplierhub")).
		Str("host", env.GetEnv("DB_HOST", "db")).
		Str("port", env.GetEnv("DB_PORT", "3306")).
		Str("database", env.GetEnv("DB_NAME", "supplierhub_db")).
		Msg("connecting to database")

	m, err := migrate.New(
		"file://"+env.GetEnv("MIGRATIONS_PATH", "migrations"),
		dbURL,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize migrations")
	}

	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Error().AnErr("source", sourceErr).AnErr("database", dbErr).Msg("failed to close migration resources")
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("no change: database is up to date")
		} else if err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		} else {
			log.Info().Msg("migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatal().Err(err).Msg("failed to roll back the last migration")
		}
		log.Info().Msg("last migration rolled back")

	case "goto":
		if len(os.Args) < 3 {
			log.Fatal().Msg("please provide a version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid version number")
		}

		if err := m.Migrate(uint(version)); errors.Is(err, migrate.ErrNoChange) {
			log.Info().Uint64("version", version).Msg("no change: database already at version")
		} else if err != nil {
			log.Fatal().Err(err).Uint64("version", version).Msg("failed to migrate to version")
		} else {
			log.Info().Uint64("version", version).Msg("migrated to version")
		}

	case "status":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("no migrations applied yet")
		} else if err != nil {
			log.Fatal().Err(err).Msg("failed to read migration version")
		} else {
			log.Info().Uint("version", version).Bool("dirty", dirty).Msg("current migration version")
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  up           - apply all pending migrations")
	fmt.Println("  down         - roll back the last migration")
	fmt.Println("  goto VERSION - migrate to a specific version")
	fmt.Println("  status       - show the current migration version")
}
