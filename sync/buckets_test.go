// ABOUTME: Tests for the bucket mapper and run-scoped bucket cache
// ABOUTME: Covers case-insensitive reuse, stage creation from buckets and pre-creation
package sync

import (
	"context"
	"testing"

	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketCache(t *testing.T) {
	cache := NewBucketCache()
	assert.False(t, cache.Loaded())

	cache.Load([]models.Bucket{
		{ID: "b1", Name: "Design"},
		{ID: "b2", Name: "design "},
	})
	assert.True(t, cache.Loaded())

	b, ok := cache.FindByName("  DESIGN")
	require.True(t, ok)
	assert.Equal(t, "b1", b.ID, "first bucket wins on case-only duplicates")

	b, ok = cache.FindByID("b2")
	require.True(t, ok)
	assert.Equal(t, "design ", b.Name)

	cache.Add(&models.Bucket{ID: "b3", Name: "Build"})
	_, ok = cache.FindByName("build")
	assert.True(t, ok)

	_, ok = cache.FindByName("Launch")
	assert.False(t, ok)
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Design", "design"},
		{"  Build  ", "build"},
		{"QA & Launch", "qa & launch"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeName(tt.input))
	}
}

func TestGetOrCreateBucket(t *testing.T) {
	board := newFakeBoard()
	existing := board.addBucket(testPlanID, "Design")
	mapper := NewBucketMapper(setupTestDB(t), board, NewBucketCache(), testLogger())
	ctx := context.Background()

	b, err := mapper.GetOrCreateBucket(ctx, testPlanID, "design")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, b.ID)

	created, err := mapper.GetOrCreateBucket(ctx, testPlanID, "Build")
	require.NoError(t, err)
	again, err := mapper.GetOrCreateBucket(ctx, testPlanID, "BUILD")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	unassigned, err := mapper.GetOrCreateBucket(ctx, testPlanID, "   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultBucketName, unassigned.Name)

	assert.Equal(t, 2, board.bucketCreates)
	assert.Equal(t, 1, board.bucketLists)
	assert.Equal(t, "Build", mapper.BucketName(created.ID))
	assert.Empty(t, mapper.BucketName("nope"))
}

func TestMapBucketToStage(t *testing.T) {
	f := newFixture(t)
	existing := f.addStage(t, "Design")
	mapper := NewBucketMapper(f.db, f.board, NewBucketCache(), testLogger())

	stage, err := mapper.MapBucketToStage(f.project.ID, "b1", "  design")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, stage.ID)

	stage, err = mapper.MapBucketToStage(f.project.ID, "b2", "QA")
	require.NoError(t, err)
	assert.Equal(t, "QA", stage.Name)

	epic, err := db.GetOrCreateDefaultEpic(f.db, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, epic.ID, stage.EpicID)
	assert.Equal(t, db.DefaultEpicName, epic.Name)

	again, err := mapper.MapBucketToStage(f.project.ID, "b2", "qa")
	require.NoError(t, err)
	assert.Equal(t, stage.ID, again.ID)

	stages, err := db.ListStagesByProject(f.db, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, stages, 2)
}

func TestPrecreateBuckets(t *testing.T) {
	board := newFakeBoard()
	board.failBucketName = "Broken"
	mapper := NewBucketMapper(setupTestDB(t), board, NewBucketCache(), testLogger())

	skipped := mapper.PrecreateBuckets(context.Background(), testPlanID, []models.Stage{
		{Name: "Design"}, {Name: "Broken"}, {Name: "DESIGN"}, {Name: "Build"},
	})

	assert.Equal(t, 1, skipped)
	assert.Equal(t, 2, board.bucketCreates)
}
