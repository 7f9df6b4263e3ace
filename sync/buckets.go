// ABOUTME: Bucket mapper translating internal stages to external plan buckets and back
// ABOUTME: Uses a run-scoped BucketCache so repeated names never create duplicate buckets
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
)

// DefaultBucketName is used for allocations without a stage.
const DefaultBucketName = "Unassigned"

// BucketMapper resolves buckets for one run against one plan.
type BucketMapper struct {
	db     *sql.DB
	board  TaskBoard
	cache  *BucketCache
	logger *log.Logger
}

func NewBucketMapper(database *sql.DB, board TaskBoard, cache *BucketCache, logger *log.Logger) *BucketMapper {
	return &BucketMapper{db: database, board: board, cache: cache, logger: logger}
}

// GetOrCreateBucket finds the plan's bucket for a stage name, creating it on a miss.
func (m *BucketMapper) GetOrCreateBucket(ctx context.Context, planID, stageName string) (*models.Bucket, error) {
	name := strings.TrimSpace(stageName)
	if name == "" {
		name = DefaultBucketName
	}

	if err := m.Load(ctx, planID); err != nil {
		return nil, err
	}

	if b, ok := m.cache.FindByName(name); ok {
		return b, nil
	}

	b, err := m.board.CreateBucket(ctx, planID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %q: %w", name, err)
	}
	m.cache.Add(b)
	m.logger.Debug("created bucket", "plan", planID, "bucket", name)

	return b, nil
}

// BucketName returns the cached name of a bucket id, or "" if unknown.
func (m *BucketMapper) BucketName(bucketID string) string {
	if b, ok := m.cache.FindByID(bucketID); ok {
		return b.Name
	}
	return ""
}

// MapBucketToStage finds or creates the project stage matching a bucket.
func (m *BucketMapper) MapBucketToStage(projectID uuid.UUID, bucketID, bucketName string) (*models.Stage, error) {
	name := strings.TrimSpace(bucketName)
	if name == "" {
		name = m.BucketName(bucketID)
	}
	if name == "" {
		name = DefaultBucketName
	}

	stage, err := db.FindStageByName(m.db, projectID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up stage: %w", err)
	}
	if stage != nil {
		return stage, nil
	}

	epic, err := db.GetOrCreateDefaultEpic(m.db, projectID)
	if err != nil {
		return nil, err
	}

	stage = &models.Stage{EpicID: epic.ID, Name: name}
	if err := db.CreateStage(m.db, stage); err != nil {
		return nil, fmt.Errorf("failed to create stage %q: %w", name, err)
	}
	m.logger.Debug("created stage from bucket", "project", projectID, "stage", name)

	return stage, nil
}

// PrecreateBuckets ensures every stage has a bucket so empty stages are visible
// on the board. Failures are logged and skipped; the count of skipped stages is returned.
func (m *BucketMapper) PrecreateBuckets(ctx context.Context, planID string, stages []models.Stage) int {
	skipped := 0

	for _, s := range stages {
		if _, err := m.GetOrCreateBucket(ctx, planID, s.Name); err != nil {
			m.logger.Warn("could not pre-create bucket", "stage", s.Name, "err", err)
			skipped++
		}
	}

	return skipped
}

// Load populates the run cache from the plan's buckets if it is still empty.
func (m *BucketMapper) Load(ctx context.Context, planID string) error {
	if m.cache.Loaded() {
		return nil
	}
	buckets, err := m.board.ListBuckets(ctx, planID)
	if err != nil {
		return fmt.Errorf("failed to list buckets: %w", err)
	}
	m.cache.Load(buckets)
	return nil
}
