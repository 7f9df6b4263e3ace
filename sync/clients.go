// ABOUTME: Collaborator interfaces for the external task board and identity directory
// ABOUTME: The engine only talks to these; Graph-backed implementations live alongside
package sync

import (
	"context"
	"time"

	"github.com/harperreed/plansync/models"
)

// NewTask is the payload for creating a task in a plan.
type NewTask struct {
	BucketID        string
	Title           string
	StartDate       *time.Time
	DueDate         *time.Time
	AssigneeIDs     []string
	PercentComplete int
}

// CreatedTask identifies a freshly created task.
type CreatedTask struct {
	ID   string
	Etag string
}

// TaskUpdate is a full outbound write of the fields the engine owns. Nil dates
// clear the corresponding date on the task.
type TaskUpdate struct {
	Title           string
	BucketID        string
	PercentComplete int
	StartDate       *time.Time
	DueDate         *time.Time
	Assign          []string
	Unassign        []string
}

// TaskBoard is the external collaborative task board.
type TaskBoard interface {
	CreateTask(ctx context.Context, planID string, task NewTask) (*CreatedTask, error)
	// GetTask returns nil, nil when the task no longer exists.
	GetTask(ctx context.Context, id string) (*models.ExternalTask, error)
	// UpdateTask returns the task's new etag, or "" when the board did not report one.
	UpdateTask(ctx context.Context, id, etag string, update TaskUpdate) (string, error)
	GetTaskDetails(ctx context.Context, id string) (*models.TaskDetails, error)
	UpdateTaskDetails(ctx context.Context, id, etag, description string) error
	ListTasks(ctx context.Context, planID string) ([]models.ExternalTask, error)
	ListBuckets(ctx context.Context, planID string) ([]models.Bucket, error)
	CreateBucket(ctx context.Context, planID, name string) (*models.Bucket, error)
}

// Directory is the external identity directory.
type Directory interface {
	// FindUserByEmail and FindUserByID return nil, nil when no identity matches.
	FindUserByEmail(ctx context.Context, email string) (*models.ExternalIdentity, error)
	FindUserByID(ctx context.Context, id string) (*models.ExternalIdentity, error)
	// AddUserToGroup succeeds when the user is already a member.
	AddUserToGroup(ctx context.Context, groupID, userID string) error
}
