package main

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/logger"
)

// migrateLogger routes golang-migrate's progress lines into zerolog.
type migrateLogger struct {
	log     zerolog.Logger
	verbose bool
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool { return l.verbose }

func main() {
	var migrationDir string
	var verbose bool
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.BoolVar(&verbose, "v", false, "Log every applied migration")
	flag.Parse()

	cfg := config.Load()
	log := logger.Component(logger.Setup(cfg.LogLevel, cfg.LogFormat), "migrate")

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+migrationDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", migrationDir).Msg("Migration failed to initialize")
	}
	defer m.Close()
	m.Log = migrateLogger{log: log, verbose: verbose}

	switch command := args[0]; command {
	case "up":
		run(log, command, m.Up())
	case "down":
		run(log, command, m.Down())
	case "steps":
		n := intArg(log, args, "steps requires a step count, e.g. steps -1")
		run(log, command, m.Steps(n))
	case "force":
		v := intArg(log, args, "force requires version argument")
		if err := m.Force(v); err != nil {
			log.Fatal().Err(err).Int("version", v).Msg("Force failed")
		}
		log.Info().Int("version", v).Msg("Forced version")
	case "version":
		reportVersion(log, m)
	default:
		printUsage()
	}
}

// run reports the outcome of a schema change. ErrNoChange is not a failure.
func run(log zerolog.Logger, command string, err error) {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Str("command", command).Msg("Schema already up to date")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Migration failed")
	}
	log.Info().Str("command", command).Msg("Migration applied")
}

func reportVersion(log zerolog.Logger, m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info().Msg("No migration applied yet")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Version failed")
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
}

func intArg(log zerolog.Logger, args []string, usage string) int {
	if len(args) < 2 {
		log.Fatal().Msg(usage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		log.Fatal().Err(err).Str("arg", args[1]).Msg("Invalid number")
	}
	return n
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, steps <n>, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
