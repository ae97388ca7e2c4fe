// Package coursecache is the on-device store for downloaded course bundles
// and the pending-operation queue recorded while offline.
package coursecache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/learnchain/course-mesh/internal/models"
)

var (
	bucketCourses    = []byte("courses")
	bucketPendingOps = []byte("pending_ops")
)

type Cache struct {
	db *bolt.DB
}

// Open opens (or creates) the cache file and its buckets.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCourses, bucketPendingOps} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveCourse upserts a bundle keyed by id, refreshing its cached-at stamp.
// A later write with the same id fully replaces the earlier one.
func (c *Cache) SaveCourse(bundle models.CourseBundle) error {
	bundle.CachedAt = time.Now()
	data, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCourses).Put([]byte(bundle.ID), data)
	})
}

// GetCourse returns a cached bundle, or (nil, nil) when absent.
func (c *Cache) GetCourse(courseID string) (*models.CourseBundle, error) {
	var bundle *models.CourseBundle
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCourses).Get([]byte(courseID))
		if data == nil {
			return nil
		}
		bundle = &models.CourseBundle{}
		return json.Unmarshal(data, bundle)
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

// AllCourses returns every cached bundle.
func (c *Cache) AllCourses() ([]models.CourseBundle, error) {
	var courses []models.CourseBundle
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCourses).ForEach(func(_, data []byte) error {
			var bundle models.CourseBundle
			if err := json.Unmarshal(data, &bundle); err != nil {
				return err
			}
			courses = append(courses, bundle)
			return nil
		})
	})
	return courses, err
}

// AllCourseIDs lists the ids of every cached bundle, for building presence
// and courses announcements.
func (c *Cache) AllCourseIDs() ([]string, error) {
	var ids []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCourses).ForEach(func(key, _ []byte) error {
			ids = append(ids, string(key))
			return nil
		})
	})
	return ids, err
}

func (c *Cache) RemoveCourse(courseID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCourses).Delete([]byte(courseID))
	})
}

// EnqueuePendingOp records an operation to flush later. An empty id gets a
// generated one.
func (c *Cache) EnqueuePendingOp(op models.PendingOp) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPendingOps).Put([]byte(op.ID), data)
	})
}

func (c *Cache) PendingOps() ([]models.PendingOp, error) {
	var ops []models.PendingOp
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPendingOps).ForEach(func(_, data []byte) error {
			var op models.PendingOp
			if err := json.Unmarshal(data, &op); err != nil {
				return err
			}
			ops = append(ops, op)
			return nil
		})
	})
	return ops, err
}

func (c *Cache) RemovePendingOp(opID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPendingOps).Delete([]byte(opID))
	})
}

// Counts reports how many courses and pending operations are stored.
func (c *Cache) Counts() (courses, pending int, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		courses = tx.Bucket(bucketCourses).Stats().KeyN
		pending = tx.Bucket(bucketPendingOps).Stats().KeyN
		return nil
	})
	return courses, pending, err
}

// ClearAll wipes every bucket.
func (c *Cache) ClearAll() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCourses, bucketPendingOps} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}
