// ABOUTME: Serializes engine runs per connection and wires Graph-backed collaborators
// ABOUTME: Shared by the CLI, daemon, MCP tools and dashboard
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
)

// Runner wraps an Engine so two runs for the same connection never overlap. The
// in-process lock queues local callers; the database run lease turns away runs
// started by other processes. Runs for different connections may proceed concurrently.
type Runner struct {
	engine *Engine

	mu    gosync.Mutex
	locks map[uuid.UUID]*gosync.Mutex
}

func NewRunner(engine *Engine) *Runner {
	return &Runner{
		engine: engine,
		locks:  make(map[uuid.UUID]*gosync.Mutex),
	}
}

// NewGraphRunner builds a Runner backed by the Graph planner and directory clients.
func NewGraphRunner(ctx context.Context, database *sql.DB, cfg *Config, logger *log.Logger) (*Runner, error) {
	graph, err := NewGraphService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	board := NewPlannerClient(graph)
	directory := NewGraphDirectory(graph)

	return NewRunner(NewEngine(database, board, directory, cfg, logger)), nil
}

func (r *Runner) lockFor(id uuid.UUID) *gosync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[id]
	if !ok {
		lock = &gosync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

// Run waits for any in-flight run of the same connection in this process, then runs
// it. A run held by another process fails with ErrRunInProgress.
func (r *Runner) Run(ctx context.Context, connectionID uuid.UUID) (*models.RunSummary, error) {
	lock := r.lockFor(connectionID)
	lock.Lock()
	defer lock.Unlock()

	return r.engine.Run(ctx, connectionID)
}

// TryRun is Run without waiting; it reports false when the connection is already
// syncing here or in another process.
func (r *Runner) TryRun(ctx context.Context, connectionID uuid.UUID) (*models.RunSummary, bool, error) {
	lock := r.lockFor(connectionID)
	if !lock.TryLock() {
		return nil, false, nil
	}
	defer lock.Unlock()

	summary, err := r.engine.Run(ctx, connectionID)
	if errors.Is(err, ErrRunInProgress) {
		return nil, false, nil
	}
	return summary, true, err
}

// ConnectionResult is the outcome of one connection inside RunEnabled.
type ConnectionResult struct {
	ConnectionID uuid.UUID
	Summary      *models.RunSummary
	Err          error
}

// RunEnabled runs every enabled connection in creation order. A failing connection
// does not stop the others.
func (r *Runner) RunEnabled(ctx context.Context) ([]ConnectionResult, error) {
	connections, err := db.ListConnections(r.engine.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	var results []ConnectionResult
	for _, conn := range connections {
		if !conn.SyncEnabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		summary, err := r.Run(ctx, conn.ID)
		results = append(results, ConnectionResult{ConnectionID: conn.ID, Summary: summary, Err: err})
	}

	return results, nil
}
