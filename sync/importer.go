// ABOUTME: Import pass adopting unledgered board tasks as new allocations
// ABOUTME: Prices imports from the assignee or a fallback role and records failures in the ledger
package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
)

func (e *Engine) runImport(ctx context.Context, r *run) error {
	tasks, err := e.board.ListTasks(ctx, r.conn.ExternalPlanID)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	if err := r.buckets.Load(ctx, r.conn.ExternalPlanID); err != nil {
		return err
	}

	var fallback *models.Role
	for i := range tasks {
		task := &tasks[i]

		// Direct lookup: tasks ledgered earlier in this run, and tombstones, are skipped.
		existing, err := db.FindLedgerByExternalTaskID(e.db, r.conn.ID, task.ID)
		if err != nil {
			r.itemError("task", task.ID, err)
			continue
		}
		if existing != nil {
			continue
		}

		if task.PercentComplete >= 100 {
			r.summary.TasksSkipped++
			continue
		}

		if fallback == nil {
			if fallback, err = e.fallbackRole(); err != nil {
				return err
			}
		}

		if err := e.importTask(ctx, r, task, fallback); err != nil {
			r.itemError("task", task.ID, err)
			e.recordImportFailure(r, task, err)
			continue
		}
		r.summary.TasksImported++
	}

	return nil
}

func (e *Engine) fallbackRole() (*models.Role, error) {
	name := strings.TrimSpace(e.cfg.FallbackRole)
	if name == "" {
		return nil, ErrNoFallbackRole
	}
	role, err := db.FindRoleByName(e.db, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up fallback role: %w", err)
	}
	if role == nil {
		return nil, fmt.Errorf("%w: role %q does not exist", ErrNoFallbackRole, name)
	}
	return role, nil
}

func (e *Engine) importTask(ctx context.Context, r *run, task *models.ExternalTask, fallback *models.Role) error {
	stage, err := r.buckets.MapBucketToStage(r.project.ID, task.BucketID, r.buckets.BucketName(task.BucketID))
	if err != nil {
		return err
	}

	// Unknown assignees become placeholders stored with the allocation, never ahead of it.
	var person *models.Person
	var placeholder *db.Placeholder
	if externalID := task.FirstAssignee(); externalID != "" {
		p, identity, err := r.identities.MatchInternalForExternal(ctx, externalID)
		if err != nil {
			r.itemError("assignee", externalID, err)
		}
		person = p
		if person == nil && identity != nil && e.cfg.AutoCreatePeople {
			placeholder = r.identities.NewPlaceholder(identity)
		}
	}

	a := &models.Allocation{
		ProjectID:    r.project.ID,
		EpicID:       &stage.EpicID,
		StageID:      &stage.ID,
		Hours:        e.cfg.DefaultImportHours,
		PlannedStart: task.StartDate,
		PlannedEnd:   task.DueDate,
		Status:       models.StatusForPercent(task.PercentComplete),
		Description:  task.Title,
	}
	if err := e.priceImport(a, person, fallback); err != nil {
		return err
	}

	details, err := e.board.GetTaskDetails(ctx, task.ID)
	if err != nil {
		r.logger.Warn("could not fetch task notes, using title", "task", task.ID, "err", err)
	} else if desc := strings.TrimSpace(details.Description); desc != "" {
		a.Description = desc
	}

	now := e.now()
	if a.Status == models.AllocationInProgress {
		a.StartedDate = &now
	}

	entry := &models.LedgerEntry{
		ConnectionID:   r.conn.ID,
		ExternalTaskID: task.ID,
		BucketID:       task.BucketID,
		BucketName:     stage.Name,
		Status:         models.LedgerSynced,
		LastEtag:       task.Etag,
		LastSyncedAt:   &now,
	}
	if err := db.CreateAllocationWithLedger(e.db, a, entry, placeholder); err != nil {
		return err
	}
	if placeholder != nil {
		r.identities.Remember(placeholder)
	}

	r.logger.Debug("imported task", "task", task.ID, "allocation", a.ID, "stage", stage.Name)
	return nil
}

// priceImport picks rate and role: the person's own rate, then the person's role
// default, then the fallback role.
func (e *Engine) priceImport(a *models.Allocation, person *models.Person, fallback *models.Role) error {
	if person != nil {
		a.PersonID = &person.ID
		a.RoleID = person.RoleID

		if person.Rate != nil {
			a.Rate = *person.Rate
			a.PricingMode = models.PricingPerson
			return nil
		}

		if person.RoleID != nil {
			role, err := db.GetRole(e.db, *person.RoleID)
			if err != nil {
				return fmt.Errorf("failed to load role: %w", err)
			}
			if role != nil {
				a.Rate = role.DefaultRate
				a.PricingMode = models.PricingRole
				return nil
			}
		}
	}

	a.RoleID = &fallback.ID
	a.Rate = fallback.DefaultRate
	a.PricingMode = models.PricingRole
	return nil
}

func (e *Engine) recordImportFailure(r *run, task *models.ExternalTask, cause error) {
	now := e.now()
	if err := db.CreateLedgerEntry(e.db, &models.LedgerEntry{
		ConnectionID:   r.conn.ID,
		ExternalTaskID: task.ID,
		BucketID:       task.BucketID,
		BucketName:     r.buckets.BucketName(task.BucketID),
		Status:         models.LedgerImportFailed,
		LastEtag:       task.Etag,
		LastSyncedAt:   &now,
		ErrorText:      cause.Error(),
	}); err != nil {
		r.itemError("task", task.ID, fmt.Errorf("could not record import failure: %w", err))
	}
}
