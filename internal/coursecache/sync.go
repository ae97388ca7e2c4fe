package coursecache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/learnchain/course-mesh/internal/models"
)

// RecordStore is the slice of the hosted store the syncer needs.
type RecordStore interface {
	RecordOfflineOp(ctx context.Context, op models.PendingOp) error
	GetCourse(ctx context.Context, courseID string) (*models.CourseBundle, error)
}

// Syncer flushes the pending-operation queue to the record store and pulls
// course bundles down for offline use.
type Syncer struct {
	cache *Cache
	store RecordStore

	mu   sync.Mutex
	stop chan struct{}
}

func NewSyncer(cache *Cache, store RecordStore) *Syncer {
	return &Syncer{cache: cache, store: store}
}

// SyncPending flushes every queued operation, removing each entry only after
// a successful flush. A failed entry stays queued for the next pass.
func (s *Syncer) SyncPending(ctx context.Context) error {
	ops, err := s.cache.PendingOps()
	if err != nil {
		return err
	}
	if len(ops) > 0 {
		log.Printf("sync: flushing %d pending operations", len(ops))
	}
	for _, op := range ops {
		if err := s.store.RecordOfflineOp(ctx, op); err != nil {
			log.Printf("sync: failed to flush op %s: %v", op.ID, err)
			continue
		}
		if err := s.cache.RemovePendingOp(op.ID); err != nil {
			return err
		}
	}
	return nil
}

// DownloadCourse fetches a course with its chapters from the record store
// and saves the assembled bundle locally. Returns false when the course does
// not exist; that is an expected outcome, not an error.
func (s *Syncer) DownloadCourse(ctx context.Context, courseID string) (bool, error) {
	bundle, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, nil
	}
	if err := s.cache.SaveCourse(*bundle); err != nil {
		return false, err
	}
	log.Printf("sync: downloaded course %s for offline use", courseID)
	return true, nil
}

// Start flushes the queue on an interval until Stop or ctx cancellation.
func (s *Syncer) Start(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.SyncPending(ctx); err != nil {
					log.Printf("sync: pass failed: %v", err)
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}
