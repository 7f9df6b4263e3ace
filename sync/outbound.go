// ABOUTME: Outbound pass pushing allocations to the external task board
// ABOUTME: Derives title, bucket, assignee, percent, dates and notes, then updates or creates tasks
package sync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
)

const maxTitleLength = 255

func (e *Engine) runOutbound(ctx context.Context, r *run) error {
	allocations, err := db.ListAllocationsByProject(e.db, r.project.ID)
	if err != nil {
		return fmt.Errorf("failed to list allocations: %w", err)
	}

	for i := range allocations {
		a := &allocations[i]
		if err := e.pushAllocation(ctx, r, a); err != nil {
			r.itemError("allocation", a.ID, err)
		}
	}

	return nil
}

func (e *Engine) pushAllocation(ctx context.Context, r *run, a *models.Allocation) error {
	entry, err := db.FindLedgerByAllocationID(e.db, r.conn.ID, a.ID)
	if err != nil {
		return err
	}
	if entry != nil && entry.Status == models.LedgerDeletedRemote {
		return nil
	}
	if entry == nil && a.Status == models.AllocationCancelled {
		return nil
	}

	stageName, err := e.stageName(a)
	if err != nil {
		return err
	}
	bucket, err := r.buckets.GetOrCreateBucket(ctx, r.conn.ExternalPlanID, stageName)
	if err != nil {
		return err
	}

	title := taskTitle(a)
	assigneeID := e.resolveAssignee(ctx, r, a)
	percent := models.PercentForStatus(a.Status)
	start, due := a.PlannedStart, a.PlannedEnd
	if start != nil && due != nil && due.Before(*start) {
		r.logger.Warn("planned end precedes start, swapping", "allocation", a.ID,
			"start", start.Format("2006-01-02"), "end", due.Format("2006-01-02"))
		start, due = due, start
	}
	notes := e.taskNotes(a)
	now := e.now()

	if entry != nil {
		task, err := e.board.GetTask(ctx, entry.ExternalTaskID)
		if err != nil {
			return fmt.Errorf("failed to fetch task %s: %w", entry.ExternalTaskID, err)
		}
		if task == nil {
			// Inbound tombstones the entry later in this run.
			return nil
		}

		update := TaskUpdate{
			Title:           title,
			BucketID:        bucket.ID,
			PercentComplete: percent,
			StartDate:       start,
			DueDate:         due,
		}
		if assigneeID != "" {
			update.Assign = []string{assigneeID}
			for _, as := range task.Assignments {
				if as.IdentityID != assigneeID {
					update.Unassign = append(update.Unassign, as.IdentityID)
				}
			}
		}

		etag, err := e.board.UpdateTask(ctx, task.ID, task.Etag, update)
		if err != nil {
			return fmt.Errorf("failed to update task %s: %w", task.ID, err)
		}
		if etag == "" {
			etag = task.Etag
		}

		e.pushNotes(ctx, r, task.ID, notes)

		synced := models.LedgerSynced
		noError := ""
		if err := db.UpdateLedgerEntry(e.db, entry.ID, db.LedgerUpdate{
			BucketID:     &bucket.ID,
			BucketName:   &bucket.Name,
			Status:       &synced,
			LastEtag:     &etag,
			LastSyncedAt: &now,
			ErrorText:    &noError,
		}); err != nil {
			return err
		}
		if err := db.BumpAllocationVersion(e.db, a.ID); err != nil {
			return fmt.Errorf("failed to bump allocation version: %w", err)
		}

		r.summary.Updated++
		return nil
	}

	newTask := NewTask{
		BucketID:        bucket.ID,
		Title:           title,
		StartDate:       start,
		DueDate:         due,
		PercentComplete: percent,
	}
	if assigneeID != "" {
		newTask.AssigneeIDs = []string{assigneeID}
	}

	created, err := e.board.CreateTask(ctx, r.conn.ExternalPlanID, newTask)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	e.pushNotes(ctx, r, created.ID, notes)

	if err := db.CreateLedgerEntry(e.db, &models.LedgerEntry{
		ConnectionID:   r.conn.ID,
		AllocationID:   &a.ID,
		ExternalTaskID: created.ID,
		BucketID:       bucket.ID,
		BucketName:     bucket.Name,
		Status:         models.LedgerSynced,
		LastEtag:       created.Etag,
		LastSyncedAt:   &now,
	}); err != nil {
		return fmt.Errorf("created task %s but could not record it: %w", created.ID, err)
	}

	r.summary.Created++
	return nil
}

// pushNotes writes the task notes. Failures are recorded but never fail the task.
func (e *Engine) pushNotes(ctx context.Context, r *run, taskID, notes string) {
	details, err := e.board.GetTaskDetails(ctx, taskID)
	if err != nil {
		r.itemError("notes", taskID, err)
		return
	}
	if details.Description == notes {
		return
	}
	if err := e.board.UpdateTaskDetails(ctx, taskID, details.Etag, notes); err != nil {
		r.itemError("notes", taskID, err)
	}
}

func (e *Engine) stageName(a *models.Allocation) (string, error) {
	if a.StageID == nil {
		return "", nil
	}
	stage, err := db.GetStage(e.db, *a.StageID)
	if err != nil {
		return "", fmt.Errorf("failed to load stage: %w", err)
	}
	if stage == nil {
		return "", nil
	}
	return stage.Name, nil
}

// resolveAssignee returns the external identity for the allocation's person, or ""
// to leave the task unassigned. Lookup failures are recorded, never fatal to the item.
func (e *Engine) resolveAssignee(ctx context.Context, r *run, a *models.Allocation) string {
	if a.PersonID == nil {
		return ""
	}

	person, err := db.GetPerson(e.db, *a.PersonID)
	if err != nil {
		r.itemError("person", *a.PersonID, err)
		return ""
	}
	if person == nil {
		return ""
	}

	m, err := r.identities.ResolveExternalForPerson(ctx, person)
	if err != nil {
		r.itemError("person", person.ID, err)
		return ""
	}
	if m == nil {
		return ""
	}
	return m.ExternalID
}

// taskNotes builds the task description: deep link, hours, then free-text notes.
func (e *Engine) taskNotes(a *models.Allocation) string {
	var parts []string
	if base := strings.TrimRight(e.cfg.AppBaseURL, "/"); base != "" {
		parts = append(parts, fmt.Sprintf("%s/allocations/%s", base, a.ID))
	}
	parts = append(parts, "Hours: "+strconv.FormatFloat(a.Hours, 'f', -1, 64))
	if notes := strings.TrimSpace(a.Notes); notes != "" {
		parts = append(parts, notes)
	}
	return strings.Join(parts, "\n\n")
}

func taskTitle(a *models.Allocation) string {
	if line := firstLine(a.Description); line != "" {
		return truncateRunes(line, maxTitleLength)
	}

	week := weekNumber(a)
	if ws := strings.TrimSpace(a.Workstream); ws != "" {
		return truncateRunes(fmt.Sprintf("%s - Week %d", ws, week), maxTitleLength)
	}
	return fmt.Sprintf("Week %d Task", week)
}

func weekNumber(a *models.Allocation) int {
	if a.WeekNumber > 0 {
		return a.WeekNumber
	}
	if a.PlannedStart != nil {
		_, week := a.PlannedStart.ISOWeek()
		return week
	}
	return 1
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
