package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/example/authcore/internal/config"
	"github.com/example/authcore/internal/logger"
	"github.com/example/authcore/internal/migrations"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")
	)
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.DBAdapter != "postgres" {
		log.Fatal("migrations only work with PostgreSQL", zap.String("adapter", cfg.DBAdapter))
	}
	migrationsDir := cfg.MigrationsDir
	if *dir != "" {
		migrationsDir = *dir
	}

	mg, err := migrations.NewPostgres(migrationsDir, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("open migrator", zap.Error(err))
	}
	defer mg.Close()

	switch *command {
	case "up":
		if err := mg.Up(*steps); err != nil {
			log.Fatal("migration up failed", zap.Error(err))
		}
		log.Info("migrations applied")
	case "down":
		if err := mg.Down(*steps); err != nil {
			log.Fatal("migration down failed", zap.Error(err))
		}
		log.Info("migrations rolled back")
	case "version":
		v, dirty, err := mg.Version()
		if err != nil {
			log.Fatal("failed to get version", zap.Error(err))
		}
		if dirty {
			log.Error("database is in a dirty state", zap.Uint("version", v))
			mg.Close()
			os.Exit(1)
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "force":
		if *version == 0 {
			log.Fatal("version required for force command (use -version flag)")
		}
		if err := mg.Force(int(*version)); err != nil {
			log.Fatal("force migration failed", zap.Error(err))
		}
		log.Info("forced database version", zap.Uint("version", *version))
	default:
		log.Fatal("unknown command (supported: up, down, version, force)", zap.String("command", *command))
	}
}
