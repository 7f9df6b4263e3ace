// ABOUTME: Scheduled sync daemon
// ABOUTME: Runs every enabled connection on an interval until interrupted
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/plansync/sync"
)

const minDaemonInterval = 5 * time.Minute

// enabledRunner is the part of sync.Runner the daemon drives.
type enabledRunner interface {
	RunEnabled(ctx context.Context) ([]sync.ConnectionResult, error)
}

// SyncDaemonCommand runs every enabled connection on a fixed interval
func SyncDaemonCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync daemon", flag.ExitOnError)
	intervalStr := fs.String("interval", "15m", "Time between sync passes (minimum 5m)")
	_ = fs.Parse(args)

	interval, err := parseInterval(*intervalStr)
	if err != nil {
		return err
	}

	cfg, err := sync.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := log.Default().WithPrefix(sync.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := sync.NewGraphRunner(ctx, database, cfg, logger)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Sync daemon started (every %s). Press Ctrl+C to stop.\n", interval)
	runDaemon(ctx, runner, interval, logger)
	fmt.Println("\n✓ Sync daemon stopped")

	return nil
}

// parseInterval validates the daemon interval flag
func parseInterval(s string) (time.Duration, error) {
	interval, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if interval < minDaemonInterval {
		return 0, fmt.Errorf("interval must be at least %s, got %s", minDaemonInterval, interval)
	}
	return interval, nil
}

// runDaemon syncs once immediately, then on every tick until ctx is done
func runDaemon(ctx context.Context, runner enabledRunner, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		daemonPass(ctx, runner, logger)
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func daemonPass(ctx context.Context, runner enabledRunner, logger *log.Logger) {
	start := time.Now()
	results, err := runner.RunEnabled(ctx)
	if err != nil {
		logger.Error("sync pass failed", "err", err)
		return
	}

	for _, res := range results {
		if res.Err != nil {
			logger.Error("connection sync failed", "connection", res.ConnectionID, "err", res.Err)
			continue
		}
		logger.Info("connection synced",
			"connection", res.ConnectionID,
			"created", res.Summary.Created,
			"updated", res.Summary.Updated,
			"inbound", res.Summary.InboundUpdated,
			"imported", res.Summary.TasksImported,
			"errors", len(res.Summary.Errors))
	}
	logger.Info("sync pass complete", "connections", len(results), "took", time.Since(start).Round(time.Millisecond))
}
