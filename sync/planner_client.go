// ABOUTME: Microsoft Planner implementation of the TaskBoard interface
// ABOUTME: Converts Graph SDK task, bucket and assignment models into typed models at the boundary
package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/harperreed/plansync/models"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/planner"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
)

const (
	plannerAssignmentType = "#microsoft.graph.plannerAssignment"
	defaultOrderHint      = " !"
)

// PlannerClient talks to the Planner endpoints of Microsoft Graph.
type PlannerClient struct {
	graph *GraphService
}

// NewPlannerClient creates a Planner client over an authenticated Graph service
// (see NewGraphService).
func NewPlannerClient(graph *GraphService) *PlannerClient {
	return &PlannerClient{graph: graph}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// taskToModel converts the SDK's task into an ExternalTask. Assignment keys are
// identity ids; a null value marks a removed assignment.
func taskToModel(t graphmodels.PlannerTaskable) models.ExternalTask {
	task := models.ExternalTask{
		ID:              deref(t.GetId()),
		PlanID:          deref(t.GetPlanId()),
		Title:           deref(t.GetTitle()),
		BucketID:        deref(t.GetBucketId()),
		PercentComplete: int(deref(t.GetPercentComplete())),
		StartDate:       utcDate(t.GetStartDateTime()),
		DueDate:         utcDate(t.GetDueDateTime()),
		Etag:            etagOf(t.GetAdditionalData()),
	}

	if assignments := t.GetAssignments(); assignments != nil {
		var ids []string
		for id, a := range assignments.GetAdditionalData() {
			if a == nil {
				continue
			}
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			task.Assignments = append(task.Assignments, models.ExternalAssignment{IdentityID: id, Kind: models.AssignmentUser})
		}
	}

	return task
}

func utcDate(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func assignmentsPayload(assign, unassign []string) graphmodels.PlannerAssignmentsable {
	if len(assign) == 0 && len(unassign) == 0 {
		return nil
	}

	data := make(map[string]any, len(assign)+len(unassign))
	for _, id := range unassign {
		data[id] = nil
	}
	for _, id := range assign {
		data[id] = map[string]any{
			"@odata.type": plannerAssignmentType,
			"orderHint":   defaultOrderHint,
		}
	}

	assignments := graphmodels.NewPlannerAssignments()
	assignments.SetAdditionalData(data)
	return assignments
}

func int32Ptr(n int) *int32 {
	v := int32(n)
	return &v
}

func (c *PlannerClient) CreateTask(ctx context.Context, planID string, task NewTask) (*CreatedTask, error) {
	body := graphmodels.NewPlannerTask()
	body.SetPlanId(&planID)
	body.SetBucketId(&task.BucketID)
	body.SetTitle(&task.Title)
	body.SetPercentComplete(int32Ptr(task.PercentComplete))
	body.SetStartDateTime(utcDate(task.StartDate))
	body.SetDueDateTime(utcDate(task.DueDate))
	if assignments := assignmentsPayload(task.AssigneeIDs, nil); assignments != nil {
		body.SetAssignments(assignments)
	}

	created, err := c.graph.client.Planner().Tasks().Post(ctx, body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", asGraphError(err))
	}

	return &CreatedTask{ID: deref(created.GetId()), Etag: etagOf(created.GetAdditionalData())}, nil
}

func (c *PlannerClient) GetTask(ctx context.Context, id string) (*models.ExternalTask, error) {
	raw, err := c.graph.client.Planner().Tasks().ByPlannerTaskId(id).Get(ctx, nil)
	err = asGraphError(err)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	task := taskToModel(raw)
	return &task, nil
}

// UpdateTask writes every engine-owned field. Nil dates are sent as explicit
// nulls so Planner clears them.
func (c *PlannerClient) UpdateTask(ctx context.Context, id, etag string, update TaskUpdate) (string, error) {
	body := graphmodels.NewPlannerTask()
	body.SetTitle(&update.Title)
	body.SetBucketId(&update.BucketID)
	body.SetPercentComplete(int32Ptr(update.PercentComplete))

	cleared := map[string]any{}
	if d := utcDate(update.StartDate); d != nil {
		body.SetStartDateTime(d)
	} else {
		cleared["startDateTime"] = nil
	}
	if d := utcDate(update.DueDate); d != nil {
		body.SetDueDateTime(d)
	} else {
		cleared["dueDateTime"] = nil
	}
	body.SetAdditionalData(cleared)

	if assignments := assignmentsPayload(update.Assign, update.Unassign); assignments != nil {
		body.SetAssignments(assignments)
	}

	updated, err := c.graph.client.Planner().Tasks().ByPlannerTaskId(id).Patch(ctx, body,
		&planner.TasksPlannerTaskItemRequestBuilderPatchRequestConfiguration{Headers: ifMatchHeaders(etag, true)})
	if err != nil {
		return "", fmt.Errorf("failed to update task %s: %w", id, asGraphError(err))
	}
	if updated == nil {
		return "", nil
	}

	return etagOf(updated.GetAdditionalData()), nil
}

func (c *PlannerClient) GetTaskDetails(ctx context.Context, id string) (*models.TaskDetails, error) {
	raw, err := c.graph.client.Planner().Tasks().ByPlannerTaskId(id).Details().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get task details %s: %w", id, asGraphError(err))
	}

	return &models.TaskDetails{Etag: etagOf(raw.GetAdditionalData()), Description: deref(raw.GetDescription())}, nil
}

func (c *PlannerClient) UpdateTaskDetails(ctx context.Context, id, etag, description string) error {
	body := graphmodels.NewPlannerTaskDetails()
	body.SetDescription(&description)

	_, err := c.graph.client.Planner().Tasks().ByPlannerTaskId(id).Details().Patch(ctx, body,
		&planner.TasksItemDetailsRequestBuilderPatchRequestConfiguration{Headers: ifMatchHeaders(etag, false)})
	if err != nil {
		return fmt.Errorf("failed to update task details %s: %w", id, asGraphError(err))
	}
	return nil
}

func (c *PlannerClient) ListTasks(ctx context.Context, planID string) ([]models.ExternalTask, error) {
	page, err := c.graph.client.Planner().Plans().ByPlannerPlanId(planID).Tasks().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks for plan %s: %w", planID, asGraphError(err))
	}

	iterator, err := msgraphcore.NewPageIterator[graphmodels.PlannerTaskable](
		page, c.graph.adapter, graphmodels.CreatePlannerTaskCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, fmt.Errorf("failed to page tasks for plan %s: %w", planID, err)
	}

	var tasks []models.ExternalTask
	err = iterator.Iterate(ctx, func(t graphmodels.PlannerTaskable) bool {
		tasks = append(tasks, taskToModel(t))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks for plan %s: %w", planID, asGraphError(err))
	}

	return tasks, nil
}

// ListBuckets returns every bucket of the plan, following paging links.
func (c *PlannerClient) ListBuckets(ctx context.Context, planID string) ([]models.Bucket, error) {
	page, err := c.graph.client.Planner().Plans().ByPlannerPlanId(planID).Buckets().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets for plan %s: %w", planID, asGraphError(err))
	}

	iterator, err := msgraphcore.NewPageIterator[graphmodels.PlannerBucketable](
		page, c.graph.adapter, graphmodels.CreatePlannerBucketCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, fmt.Errorf("failed to page buckets for plan %s: %w", planID, err)
	}

	buckets := []models.Bucket{}
	err = iterator.Iterate(ctx, func(b graphmodels.PlannerBucketable) bool {
		buckets = append(buckets, models.Bucket{ID: deref(b.GetId()), PlanID: deref(b.GetPlanId()), Name: deref(b.GetName())})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets for plan %s: %w", planID, asGraphError(err))
	}

	return buckets, nil
}

func (c *PlannerClient) CreateBucket(ctx context.Context, planID, name string) (*models.Bucket, error) {
	body := graphmodels.NewPlannerBucket()
	orderHint := defaultOrderHint
	body.SetName(&name)
	body.SetPlanId(&planID)
	body.SetOrderHint(&orderHint)

	created, err := c.graph.client.Planner().Buckets().Post(ctx, body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %q: %w", name, asGraphError(err))
	}

	return &models.Bucket{ID: deref(created.GetId()), PlanID: planID, Name: deref(created.GetName())}, nil
}
