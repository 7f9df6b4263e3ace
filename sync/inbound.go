// ABOUTME: Inbound pass pulling task state from the board into ledgered allocations
// ABOUTME: Maps percent to status, copies dates, adopts assignees and tombstones vanished tasks
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
)

func (e *Engine) runInbound(ctx context.Context, r *run) error {
	// Listed fresh so entries written by the outbound pass are included.
	entries, err := db.FindLedgerByConnection(e.db, r.conn.ID)
	if err != nil {
		return fmt.Errorf("failed to list ledger: %w", err)
	}

	for i := range entries {
		entry := &entries[i]
		if entry.Status != models.LedgerSynced || entry.AllocationID == nil {
			continue
		}
		if err := e.pullEntry(ctx, r, entry); err != nil {
			r.itemError("task", entry.ExternalTaskID, err)
		}
	}

	return nil
}

func (e *Engine) pullEntry(ctx context.Context, r *run, entry *models.LedgerEntry) error {
	task, err := e.board.GetTask(ctx, entry.ExternalTaskID)
	if err != nil {
		return fmt.Errorf("failed to fetch task: %w", err)
	}

	now := e.now()
	if task == nil {
		deleted := models.LedgerDeletedRemote
		if err := db.UpdateLedgerEntry(e.db, entry.ID, db.LedgerUpdate{
			Status:       &deleted,
			LastSyncedAt: &now,
		}); err != nil {
			return err
		}
		r.logger.Info("task deleted remotely", "task", entry.ExternalTaskID, "allocation", *entry.AllocationID)
		r.summary.InboundDeleted++
		return nil
	}

	a, err := db.GetAllocation(e.db, *entry.AllocationID)
	if err != nil {
		return fmt.Errorf("failed to load allocation: %w", err)
	}
	if a == nil {
		return fmt.Errorf("allocation %s no longer exists", *entry.AllocationID)
	}

	changed := applyTaskState(a, task, now)

	if a.PersonID == nil {
		if externalID := task.FirstAssignee(); externalID != "" {
			person, err := r.identities.ResolveInternalForExternal(ctx, externalID)
			if err != nil {
				r.itemError("assignee", externalID, err)
			} else if person != nil {
				a.PersonID = &person.ID
				a.PricingMode = models.PricingPerson
				if person.Rate != nil {
					a.Rate = *person.Rate
				}
				changed = true
			}
		}
	}

	if changed {
		if err := db.UpdateAllocation(e.db, a); err != nil {
			return err
		}
		r.summary.InboundUpdated++
	}

	synced := models.LedgerSynced
	u := db.LedgerUpdate{
		Status:       &synced,
		LastEtag:     &task.Etag,
		LastSyncedAt: &now,
	}
	if task.BucketID != "" && task.BucketID != entry.BucketID {
		u.BucketID = &task.BucketID
		if name := r.buckets.BucketName(task.BucketID); name != "" {
			u.BucketName = &name
		}
	}

	return db.UpdateLedgerEntry(e.db, entry.ID, u)
}

// applyTaskState copies status and dates from the task onto the allocation and
// reports whether anything changed. The board is authoritative for dates inbound.
func applyTaskState(a *models.Allocation, task *models.ExternalTask, now time.Time) bool {
	changed := false

	status := models.StatusForPercent(task.PercentComplete)
	// Cancellation has no percent of its own; an untouched task keeps it.
	keepCancelled := a.Status == models.AllocationCancelled && status == models.AllocationOpen
	if status != a.Status && !keepCancelled {
		a.Status = status
		switch status {
		case models.AllocationInProgress:
			if a.StartedDate == nil {
				a.StartedDate = &now
			}
		case models.AllocationCompleted:
			if a.CompletedDate == nil {
				a.CompletedDate = &now
			}
		}
		changed = true
	}

	if !sameTime(a.PlannedStart, task.StartDate) {
		a.PlannedStart = task.StartDate
		changed = true
	}
	if !sameTime(a.PlannedEnd, task.DueDate) {
		a.PlannedEnd = task.DueDate
		changed = true
	}

	return changed
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
