// ABOUTME: Typed views of task-board and directory payloads
// ABOUTME: Clients convert raw API shapes into these before engine code sees them
package models

import "time"

// AssignmentKind tags what an external assignment points at.
type AssignmentKind string

const (
	AssignmentUser AssignmentKind = "user"
)

type ExternalAssignment struct {
	IdentityID string         `json:"identity_id"`
	Kind       AssignmentKind `json:"kind"`
}

type ExternalTask struct {
	ID              string               `json:"id"`
	PlanID          string               `json:"plan_id"`
	Title           string               `json:"title"`
	BucketID        string               `json:"bucket_id,omitempty"`
	PercentComplete int                  `json:"percent_complete"`
	Assignments     []ExternalAssignment `json:"assignments,omitempty"`
	StartDate       *time.Time           `json:"start_date,omitempty"`
	DueDate         *time.Time           `json:"due_date,omitempty"`
	Etag            string               `json:"etag"`
}

// FirstAssignee returns the first user assignment, or "" when unassigned.
func (t *ExternalTask) FirstAssignee() string {
	for _, a := range t.Assignments {
		if a.Kind == AssignmentUser && a.IdentityID != "" {
			return a.IdentityID
		}
	}
	return ""
}

type TaskDetails struct {
	Etag        string `json:"etag"`
	Description string `json:"description"`
}

type Bucket struct {
	ID     string `json:"id"`
	PlanID string `json:"plan_id"`
	Name   string `json:"name"`
}

type ExternalIdentity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}
