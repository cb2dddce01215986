package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/seqre/secubot/internal/github"
	"github.com/seqre/secubot/internal/hof"
	"github.com/seqre/secubot/internal/metrics"
	"github.com/seqre/secubot/internal/ping"
	"github.com/seqre/secubot/internal/store"
	"github.com/seqre/secubot/internal/todo"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("secubot failed")
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "secubot",
		Short:         "Telegram bot with the Ping Cannon, TODOs and halls of fame",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			setupLogging(cfg)
			return runBot(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			setupLogging(cfg)
			db, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := store.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			log.Info().Int("applied", applied).Str("path", cfg.DatabasePath).Msg("migrations done")
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("secubot " + version)
		},
	})
	return root
}

func setupLogging(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func runBot(ctx context.Context, cfg Config) error {
	log.Info().Interface("config", cfg.redacted()).Msg("starting secubot")

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	applied, err := store.Migrate(ctx, db)
	if err != nil {
		return err
	}
	if applied > 0 {
		log.Info().Int("applied", applied).Msg("database migrated")
	}

	todos, err := todo.NewService(ctx, db)
	if err != nil {
		return err
	}
	hofs, err := hof.NewService(ctx, db)
	if err != nil {
		return err
	}

	notifier, err := newTelegramNotifier(cfg.Telegram)
	if err != nil {
		return fmt.Errorf("telegram init: %w", err)
	}

	worker := ping.NewWorker(notifier, cfg.Ping.workerConfig())
	gh := github.New(cfg.GitHub.clientConfig(), &http.Client{Timeout: 30 * time.Second})
	app := newApp(notifier, worker, todos, hofs, gh, version)

	// deferred after db.Close, so loops stop before the database does
	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.runTodoReminders(ctx, cfg.Todo.ReminderInterval)
	}()

	if cfg.MetricsAddr != "" {
		registry := metrics.NewRegistry(worker.Metrics().Collectors()...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.MetricsAddr, registry); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	// returns once in-flight handlers are done
	notifier.run(ctx, app)
	log.Info().Msg("secubot stopped")
	return nil
}
