// ABOUTME: Reconciliation orchestrator running outbound, inbound and import passes in order
// ABOUTME: Owns run-scoped state and records the outcome on the connection and run history
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionDisabled = errors.New("sync is disabled for connection")
	ErrNoFallbackRole     = errors.New("no fallback role configured for imported tasks")

	// ErrRunInProgress means another process holds the connection's run lease.
	ErrRunInProgress = db.ErrRunInProgress
)

// Engine reconciles allocations with an external task board. One Engine may serve
// many connections, but runs for the same connection must not overlap.
type Engine struct {
	db        *sql.DB
	board     TaskBoard
	directory Directory
	cfg       *Config
	logger    *log.Logger
	now       func() time.Time
}

func NewEngine(database *sql.DB, board TaskBoard, directory Directory, cfg *Config, logger *log.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.Default().WithPrefix(AppName)
	}
	return &Engine{
		db:        database,
		board:     board,
		directory: directory,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// run holds everything scoped to one reconciliation.
type run struct {
	conn       *models.Connection
	project    *models.Project
	buckets    *BucketMapper
	identities *IdentityResolver
	summary    *models.RunSummary
	logger     *log.Logger
}

// itemError records a recoverable per-item failure and lets the pass continue.
func (r *run) itemError(kind string, id any, err error) {
	msg := fmt.Sprintf("%s %v: %v", kind, id, err)
	r.logger.Warn("sync item failed", "kind", kind, "id", id, "err", err)
	r.summary.Errors = append(r.summary.Errors, msg)
}

// Run performs one full reconciliation for a connection. A nil error means the run
// succeeded, possibly with per-item errors listed in the summary.
func (e *Engine) Run(ctx context.Context, connectionID uuid.UUID) (*models.RunSummary, error) {
	conn, err := db.GetConnection(e.db, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}
	if !conn.SyncEnabled {
		return nil, fmt.Errorf("%w: %s", ErrConnectionDisabled, connectionID)
	}

	// The lease spans processes; nothing is recorded when another run holds it.
	record, err := db.StartSyncRun(e.db, conn.ID)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("connection", conn.ID.String(), "run", record.ID)
	logger.Info("sync started", "plan", conn.ExternalPlanID, "direction", conn.SyncDirection)

	summary := &models.RunSummary{Errors: []string{}}
	runErr := e.reconcile(ctx, conn, summary, logger)

	record.Summary = *summary
	if runErr != nil {
		record.Status = models.RunStatusFailed
		record.FatalError = runErr.Error()
		logger.Error("sync failed", "err", runErr)

		if err := db.UpdateConnectionSyncResult(e.db, conn.ID, models.RunStatusFailed, runErr.Error()); err != nil {
			logger.Error("could not record connection result", "err", err)
		}
		if err := db.FinishSyncRun(e.db, record); err != nil {
			logger.Error("could not record sync run", "err", err)
		}
		return nil, runErr
	}

	status := models.RunStatusSuccess
	if len(summary.Errors) > 0 {
		status = models.RunStatusPartial
	}
	record.Status = status

	if err := db.UpdateConnectionSyncResult(e.db, conn.ID, status, strings.Join(summary.Errors, "; ")); err != nil {
		return nil, err
	}
	if err := db.FinishSyncRun(e.db, record); err != nil {
		return nil, err
	}

	logger.Info("sync finished", "status", status,
		"created", summary.Created, "updated", summary.Updated,
		"inbound_updated", summary.InboundUpdated, "inbound_deleted", summary.InboundDeleted,
		"imported", summary.TasksImported, "skipped", summary.TasksSkipped,
		"errors", len(summary.Errors))

	return summary, nil
}

func (e *Engine) reconcile(ctx context.Context, conn *models.Connection, summary *models.RunSummary, logger *log.Logger) error {
	project, err := db.GetProject(e.db, conn.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	if project == nil {
		return fmt.Errorf("project %s for connection %s not found", conn.ProjectID, conn.ID)
	}

	groupID := conn.ExternalGroupID
	if groupID == "" {
		groupID = project.ExternalGroupID
	}

	r := &run{
		conn:    conn,
		project: project,
		buckets: NewBucketMapper(e.db, e.board, NewBucketCache(), logger),
		identities: NewIdentityResolver(e.db, e.directory, ResolverOptions{
			GroupID:          groupID,
			AutoAddMembers:   conn.AutoAddMembers,
			AutoCreatePeople: e.cfg.AutoCreatePeople,
		}, logger),
		summary: summary,
		logger:  logger,
	}

	if conn.SyncsOutbound() {
		stages, err := db.ListStagesByProject(e.db, project.ID)
		if err != nil {
			return fmt.Errorf("failed to list stages: %w", err)
		}
		if skipped := r.buckets.PrecreateBuckets(ctx, conn.ExternalPlanID, stages); skipped > 0 {
			logger.Warn("some stage buckets were not pre-created", "skipped", skipped)
		}

		if err := e.runOutbound(ctx, r); err != nil {
			return err
		}
	}

	if conn.SyncsInbound() {
		if err := e.runInbound(ctx, r); err != nil {
			return err
		}
		if err := e.runImport(ctx, r); err != nil {
			return err
		}
	}

	return nil
}
