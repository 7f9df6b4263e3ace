// ABOUTME: Run-scoped bucket cache with case-insensitive name matching
// ABOUTME: Prevents duplicate bucket creation within a single sync run
package sync

import (
	"strings"

	"github.com/harperreed/plansync/models"
)

// BucketCache maps normalized bucket names and ids to buckets for one run.
// It must not outlive the run: buckets can change externally between runs.
type BucketCache struct {
	byName map[string]*models.Bucket
	byID   map[string]*models.Bucket
	loaded bool
}

func NewBucketCache() *BucketCache {
	return &BucketCache{
		byName: make(map[string]*models.Bucket),
		byID:   make(map[string]*models.Bucket),
	}
}

// Load seeds the cache from a full bucket listing. The first bucket wins
// when the plan already holds names differing only by case.
func (c *BucketCache) Load(buckets []models.Bucket) {
	for i := range buckets {
		b := &buckets[i]
		c.byID[b.ID] = b
		key := normalizeName(b.Name)
		if _, exists := c.byName[key]; !exists && key != "" {
			c.byName[key] = b
		}
	}
	c.loaded = true
}

func (c *BucketCache) Loaded() bool {
	return c.loaded
}

// FindByName looks up a bucket case-insensitively.
func (c *BucketCache) FindByName(name string) (*models.Bucket, bool) {
	b, ok := c.byName[normalizeName(name)]
	return b, ok
}

func (c *BucketCache) FindByID(id string) (*models.Bucket, bool) {
	b, ok := c.byID[id]
	return b, ok
}

// Add records a newly created bucket.
func (c *BucketCache) Add(b *models.Bucket) {
	c.byID[b.ID] = b
	if key := normalizeName(b.Name); key != "" {
		c.byName[key] = b
	}
}

// normalizeName lowercases and trims names for comparison.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// normalizeEmail converts email to lowercase for comparison.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
