// ABOUTME: In-memory task board and directory fakes plus shared test fixtures
// ABOUTME: Fakes record calls and support per-operation failure injection
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

type fakeBoard struct {
	tasks   map[string]*models.ExternalTask
	details map[string]*models.TaskDetails
	buckets []models.Bucket
	seq     int

	creates        int
	updates        []TaskUpdate
	bucketCreates  int
	bucketLists    int
	failCreate     bool
	failUpdate     bool
	failDetails    bool
	failList       bool
	failBucketName string
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		tasks:   make(map[string]*models.ExternalTask),
		details: make(map[string]*models.TaskDetails),
	}
}

func (b *fakeBoard) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s-%d", prefix, b.seq)
}

func (b *fakeBoard) nextEtag() string {
	b.seq++
	return fmt.Sprintf("W/\"etag-%d\"", b.seq)
}

// addTask places a task on the board as if a collaborator created it.
func (b *fakeBoard) addTask(task models.ExternalTask) *models.ExternalTask {
	if task.ID == "" {
		task.ID = b.nextID("task")
	}
	if task.Etag == "" {
		task.Etag = b.nextEtag()
	}
	b.tasks[task.ID] = &task
	b.details[task.ID] = &models.TaskDetails{Etag: b.nextEtag()}
	return &task
}

func (b *fakeBoard) addBucket(planID, name string) models.Bucket {
	bucket := models.Bucket{ID: b.nextID("bucket"), PlanID: planID, Name: name}
	b.buckets = append(b.buckets, bucket)
	return bucket
}

func (b *fakeBoard) bucketByID(id string) *models.Bucket {
	for i := range b.buckets {
		if b.buckets[i].ID == id {
			return &b.buckets[i]
		}
	}
	return nil
}

func (b *fakeBoard) CreateTask(ctx context.Context, planID string, task NewTask) (*CreatedTask, error) {
	if b.failCreate {
		return nil, errInjected
	}
	b.creates++

	t := &models.ExternalTask{
		ID:              b.nextID("task"),
		PlanID:          planID,
		Title:           task.Title,
		BucketID:        task.BucketID,
		PercentComplete: task.PercentComplete,
		StartDate:       task.StartDate,
		DueDate:         task.DueDate,
		Etag:            b.nextEtag(),
	}
	for _, id := range task.AssigneeIDs {
		t.Assignments = append(t.Assignments, models.ExternalAssignment{IdentityID: id, Kind: models.AssignmentUser})
	}
	b.tasks[t.ID] = t
	b.details[t.ID] = &models.TaskDetails{Etag: b.nextEtag()}

	return &CreatedTask{ID: t.ID, Etag: t.Etag}, nil
}

func (b *fakeBoard) GetTask(ctx context.Context, id string) (*models.ExternalTask, error) {
	t, ok := b.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (b *fakeBoard) UpdateTask(ctx context.Context, id, etag string, update TaskUpdate) (string, error) {
	if b.failUpdate {
		return "", errInjected
	}
	t, ok := b.tasks[id]
	if !ok {
		return "", &GraphError{StatusCode: 404, Message: "task not found"}
	}
	if etag != t.Etag {
		return "", &GraphError{StatusCode: 412, Message: "etag mismatch"}
	}
	b.updates = append(b.updates, update)

	t.Title = update.Title
	t.BucketID = update.BucketID
	t.PercentComplete = update.PercentComplete
	t.StartDate = update.StartDate
	t.DueDate = update.DueDate

	assigned := make(map[string]bool)
	for _, a := range t.Assignments {
		assigned[a.IdentityID] = true
	}
	for _, id := range update.Unassign {
		delete(assigned, id)
	}
	for _, id := range update.Assign {
		assigned[id] = true
	}
	t.Assignments = nil
	for id := range assigned {
		t.Assignments = append(t.Assignments, models.ExternalAssignment{IdentityID: id, Kind: models.AssignmentUser})
	}
	sort.Slice(t.Assignments, func(i, j int) bool { return t.Assignments[i].IdentityID < t.Assignments[j].IdentityID })

	t.Etag = b.nextEtag()
	return t.Etag, nil
}

func (b *fakeBoard) GetTaskDetails(ctx context.Context, id string) (*models.TaskDetails, error) {
	d, ok := b.details[id]
	if !ok {
		return nil, &GraphError{StatusCode: 404, Message: "details not found"}
	}
	cp := *d
	return &cp, nil
}

func (b *fakeBoard) UpdateTaskDetails(ctx context.Context, id, etag, description string) error {
	if b.failDetails {
		return errInjected
	}
	d, ok := b.details[id]
	if !ok {
		return &GraphError{StatusCode: 404, Message: "details not found"}
	}
	d.Description = description
	d.Etag = b.nextEtag()
	return nil
}

func (b *fakeBoard) ListTasks(ctx context.Context, planID string) ([]models.ExternalTask, error) {
	if b.failList {
		return nil, errInjected
	}
	var tasks []models.ExternalTask
	for _, t := range b.tasks {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (b *fakeBoard) ListBuckets(ctx context.Context, planID string) ([]models.Bucket, error) {
	b.bucketLists++
	return append([]models.Bucket(nil), b.buckets...), nil
}

func (b *fakeBoard) CreateBucket(ctx context.Context, planID, name string) (*models.Bucket, error) {
	if b.failBucketName != "" && b.failBucketName == name {
		return nil, errInjected
	}
	b.bucketCreates++
	bucket := b.addBucket(planID, name)
	return &bucket, nil
}

type fakeDirectory struct {
	users      map[string]models.ExternalIdentity
	groupAdds  []string
	lookups    int
	failLookup bool
	failAdd    bool
}

func newFakeDirectory(users ...models.ExternalIdentity) *fakeDirectory {
	d := &fakeDirectory{users: make(map[string]models.ExternalIdentity)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) FindUserByEmail(ctx context.Context, email string) (*models.ExternalIdentity, error) {
	d.lookups++
	if d.failLookup {
		return nil, errInjected
	}
	for _, u := range d.users {
		if normalizeEmail(u.Email) == normalizeEmail(email) {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) FindUserByID(ctx context.Context, id string) (*models.ExternalIdentity, error) {
	d.lookups++
	if d.failLookup {
		return nil, errInjected
	}
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (d *fakeDirectory) AddUserToGroup(ctx context.Context, groupID, userID string) error {
	if d.failAdd {
		return errInjected
	}
	d.groupAdds = append(d.groupAdds, groupID+"/"+userID)
	return nil
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.InitSchema(database))
	return database
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// fixture is a project connected to a plan with an engine over fakes.
type fixture struct {
	db        *sql.DB
	board     *fakeBoard
	directory *fakeDirectory
	cfg       *Config
	engine    *Engine
	project   *models.Project
	conn      *models.Connection
	epic      *models.Epic
}

const testPlanID = "plan-1"

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database := setupTestDB(t)
	f := &fixture{
		db:        database,
		board:     newFakeBoard(),
		directory: newFakeDirectory(),
		cfg:       DefaultConfig(),
	}
	f.cfg.FallbackRole = "Consultant"
	f.cfg.AppBaseURL = "https://app.example.com"

	require.NoError(t, db.CreateRole(database, &models.Role{Name: "Consultant", DefaultRate: 150}))

	f.project = &models.Project{Name: "Website Rebuild", ExternalGroupID: "group-1"}
	require.NoError(t, db.CreateProject(database, f.project))

	f.epic = &models.Epic{ProjectID: f.project.ID, Name: "Phase 1"}
	require.NoError(t, db.CreateEpic(database, f.epic))

	f.conn = &models.Connection{
		ProjectID:      f.project.ID,
		ExternalPlanID: testPlanID,
		SyncEnabled:    true,
		SyncDirection:  models.DirectionBidirectional,
	}
	require.NoError(t, db.CreateConnection(database, f.conn))

	f.engine = NewEngine(database, f.board, f.directory, f.cfg, testLogger())
	return f
}

func (f *fixture) addStage(t *testing.T, name string) *models.Stage {
	t.Helper()
	stage := &models.Stage{EpicID: f.epic.ID, Name: name}
	require.NoError(t, db.CreateStage(f.db, stage))
	return stage
}

func (f *fixture) addAllocation(t *testing.T, a models.Allocation) *models.Allocation {
	t.Helper()
	a.ProjectID = f.project.ID
	require.NoError(t, db.CreateAllocation(f.db, &a))
	return &a
}

func (f *fixture) run(t *testing.T) *models.RunSummary {
	t.Helper()
	summary, err := f.engine.Run(context.Background(), f.conn.ID)
	require.NoError(t, err)
	return summary
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
