package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/postpilot/internal/persona"
	"github.com/user/postpilot/internal/scheduler"
	"github.com/user/postpilot/internal/types"
)

var serveOnce bool

func init() {
	serveCmd.Flags().BoolVar(&serveOnce, "once", false, "run a single publish cycle and exit")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the publishing daemon",
	Long: `Serve polls the post registry and publishes every post whose
scheduled time has passed. Failed attempts are retried with exponential
backoff; after each successful publish the persona profile is updated
with new facts from the post.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	pub, err := newPublisher(cfg)
	if err != nil {
		return err
	}

	notifiers, err := newNotifiers(cfg)
	if err != nil {
		return err
	}

	opts := []scheduler.Option{
		scheduler.WithPollInterval(cfg.Scheduler.PollInterval.Std()),
		scheduler.WithPublishTimeout(cfg.Scheduler.PublishTimeout.Std()),
		scheduler.WithMaxConcurrent(cfg.Scheduler.MaxConcurrent),
		scheduler.WithRetryPolicy(&scheduler.RetryPolicy{
			MaxAttempts:  cfg.Scheduler.MaxAttempts,
			InitialDelay: cfg.Scheduler.InitialBackoff.Std(),
			Multiplier:   2.0,
			MaxDelay:     cfg.Scheduler.MaxBackoff.Std(),
		}),
		scheduler.WithNotifiers(notifiers...),
	}

	// Persona updates need the LLM; without a key the daemon still
	// publishes, it just stops growing the profile.
	if cfg.LLM.APIKey != "" {
		transformer, err := newTransformer(cfg)
		if err != nil {
			return err
		}
		updater := persona.NewUpdater(transformer, newPersonaStore(cfg))
		opts = append(opts, scheduler.WithPostedHook(func(ctx context.Context, record *types.PostRecord) {
			if _, err := updater.UpdateFromPost(ctx, record.Content, nil); err != nil {
				slog.Error("persona update failed", "post", record.ID, "error", err)
			}
		}))
	} else {
		slog.Warn("persona updates disabled (no LLM API key)")
	}

	sched := scheduler.New(store, pub, opts...)

	if serveOnce {
		return sched.RunCycle(cmd.Context())
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sched.Start(ctx) }()

	slog.Info("postpilot started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"poll_interval", cfg.Scheduler.PollInterval.Std(),
		"max_attempts", cfg.Scheduler.MaxAttempts,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		cancel()
		return <-done
	}
}
