package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/erkineren/homework-monitor/internal/bot"
	"github.com/erkineren/homework-monitor/internal/config"
	"github.com/erkineren/homework-monitor/internal/logging"
	"github.com/erkineren/homework-monitor/internal/poller"
	"github.com/erkineren/homework-monitor/internal/practicum"
	"github.com/erkineren/homework-monitor/internal/store"
	"github.com/erkineren/homework-monitor/internal/store/postgres"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// loggedError marks errors that already reached the log, so main only sets
// the exit code for them.
type loggedError struct{ err error }

func (e loggedError) Error() string { return e.err.Error() }
func (e loggedError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stderr).ExecuteContext(ctx); err != nil {
		var logged loggedError
		if !errors.As(err, &logged) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	var envFile string
	var once bool

	root := &cobra.Command{
		Use:           "homework-monitor",
		Short:         "Notify a Telegram chat when the latest homework review status changes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), envFile, once, stderr)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment, ignored when missing")
	root.Flags().BoolVar(&once, "once", false, "run a single check and exit")

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := setup(envFile, stderr)
			if err != nil {
				return err
			}
			logger.Info().Msg("Configuration is valid")
			return nil
		},
	})

	return root
}

// setup loads the configuration, builds the logger and checks credentials.
// Nothing touches the network before it succeeds.
func setup(envFile string, stderr io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	logger, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if err := cfg.CheckCredentials(); err != nil {
		logger.WithLevel(zerolog.FatalLevel).Err(err).Msg("Required configuration is missing, stopping")
		return nil, logger, loggedError{err}
	}

	return cfg, logger, nil
}

func run(ctx context.Context, envFile string, once bool, stderr io.Writer) error {
	cfg, logger, err := setup(envFile, stderr)
	if err != nil {
		return err
	}

	journal := openJournal(ctx, cfg, logger)
	defer journal.Close()

	// The chat id was validated by CheckCredentials, so this cannot fail.
	telegramBot, err := bot.New(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramEndpoint, &http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		logger.WithLevel(zerolog.FatalLevel).Err(err).Msg("Invalid Telegram configuration")
		return loggedError{err}
	}
	logger.Info().Str("chat_id", cfg.TelegramChatID).Msg("Telegram bot initialized")

	client := practicum.NewClient(cfg.PracticumToken, cfg.Endpoint, cfg.RequestTimeout)
	p := poller.New(client, telegramBot, journal, logger, poller.Options{
		Interval:         cfg.PollInterval,
		FromDate:         cfg.FromDate,
		AdvanceTimestamp: cfg.AdvanceTimestamp,
		ChatID:           cfg.TelegramChatID,
		JournalRetention: cfg.JournalRetention,
	})

	if once {
		if err := p.RunOnce(ctx); err != nil {
			return loggedError{err}
		}
		return nil
	}

	return p.Run(ctx)
}

// openJournal never fails: an unreachable database only disables the journal.
func openJournal(ctx context.Context, cfg *config.Config, logger zerolog.Logger) store.Journal {
	if cfg.DatabaseURL == "" {
		logger.Debug().Msg("DATABASE_URL is not set, notification journal disabled")
		return store.Nop{}
	}

	database := maskDatabaseURL(cfg.DatabaseURL)
	logger.Info().Str("database", database).Msg("Connecting to notification journal")
	s, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn().Err(err).Str("database", database).Msg("Notification journal unavailable, continuing without it")
		return store.Nop{}
	}
	return s
}

func maskDatabaseURL(url string) string {
	return regexp.MustCompile(`://[^:]+:[^@]+@`).ReplaceAllString(url, "://*****:*****@")
}
