// Package frontier holds the queue of URLs to crawl. Ordering is
// breadth-first: all depth-N tasks are popped before any depth-N+1
// task, FIFO within a depth. Deduplication is by normalized URL and is
// atomic with enqueue.
package frontier

import (
	"container/list"
	"context"
	"sync"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// Frontier is a depth-ordered, deduplicating URL queue
type Frontier struct {
	mu       sync.Mutex
	buckets  map[int]*list.List  // depth -> FIFO of *models.URLTask
	admitted map[string]struct{} // normalized URLs ever admitted, monotonic
	queued   int
	maxDepth int // -1 = unlimited
	maxPages int // 0 = unlimited; bounds total admissions
	signal   chan struct{}

	totalAdmitted int
	duplicates    int
}

// Stats reports frontier counters for heartbeat events
type Stats struct {
	Queued        int
	TotalAdmitted int
	Duplicates    int
}

// New creates a frontier. maxDepth of -1 means unlimited depth;
// maxPages of 0 means unlimited admissions.
func New(maxDepth, maxPages int) *Frontier {
	return &Frontier{
		buckets:  make(map[int]*list.List),
		admitted: make(map[string]struct{}),
		maxDepth: maxDepth,
		maxPages: maxPages,
		signal:   make(chan struct{}, 1),
	}
}

// Push admits a task unless it is a duplicate or exceeds the depth or
// page budget. Returns whether the task was newly added.
func (f *Frontier) Push(task *models.URLTask) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxDepth >= 0 && task.Depth > f.maxDepth {
		return false
	}
	if f.maxPages > 0 && f.totalAdmitted >= f.maxPages {
		return false
	}
	if _, seen := f.admitted[task.NormalizedURL]; seen {
		f.duplicates++
		return false
	}

	bucket, ok := f.buckets[task.Depth]
	if !ok {
		bucket = list.New()
		f.buckets[task.Depth] = bucket
	}
	bucket.PushBack(task)

	f.admitted[task.NormalizedURL] = struct{}{}
	f.totalAdmitted++
	f.queued++

	select {
	case f.signal <- struct{}{}:
	default:
	}
	return true
}

// Pop yields the next task in BFS order, suspending until a task is
// available or the context is cancelled.
func (f *Frontier) Pop(ctx context.Context) (*models.URLTask, error) {
	for {
		if task := f.tryPop(); task != nil {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.signal:
		}
	}
}

// TryPop returns the next task without blocking, or nil when empty
func (f *Frontier) TryPop() *models.URLTask {
	return f.tryPop()
}

func (f *Frontier) tryPop() *models.URLTask {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queued == 0 {
		return nil
	}

	// Lowest non-empty depth first
	minDepth := -1
	for depth, bucket := range f.buckets {
		if bucket.Len() == 0 {
			continue
		}
		if minDepth < 0 || depth < minDepth {
			minDepth = depth
		}
	}
	if minDepth < 0 {
		return nil
	}

	bucket := f.buckets[minDepth]
	task := bucket.Remove(bucket.Front()).(*models.URLTask)
	f.queued--

	// Wake another waiter if work remains
	if f.queued > 0 {
		select {
		case f.signal <- struct{}{}:
		default:
		}
	}
	return task
}

// Size returns the current queued count
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued
}

// Seen reports whether a normalized URL was ever admitted
func (f *Frontier) Seen(normalizedURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.admitted[normalizedURL]
	return ok
}

// MarkSeen records a normalized URL as admitted without queueing it.
// Used on resume so completed URLs are never re-crawled.
func (f *Frontier) MarkSeen(normalizedURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.admitted[normalizedURL]; !ok {
		f.admitted[normalizedURL] = struct{}{}
		f.totalAdmitted++
	}
}

// GetStats returns frontier counters
func (f *Frontier) GetStats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Queued:        f.queued,
		TotalAdmitted: f.totalAdmitted,
		Duplicates:    f.duplicates,
	}
}

// Snapshot returns the pending tasks in pop order, for checkpointing
func (f *Frontier) Snapshot() []models.URLTask {
	f.mu.Lock()
	defer f.mu.Unlock()

	depths := make([]int, 0, len(f.buckets))
	for depth, bucket := range f.buckets {
		if bucket.Len() > 0 {
			depths = append(depths, depth)
		}
	}
	// Small slice; insertion sort keeps this dependency-free
	for i := 1; i < len(depths); i++ {
		for j := i; j > 0 && depths[j] < depths[j-1]; j-- {
			depths[j], depths[j-1] = depths[j-1], depths[j]
		}
	}

	pending := make([]models.URLTask, 0, f.queued)
	for _, depth := range depths {
		for e := f.buckets[depth].Front(); e != nil; e = e.Next() {
			pending = append(pending, *e.Value.(*models.URLTask))
		}
	}
	return pending
}

// Restore re-queues a snapshot's pending tasks, skipping any whose
// normalized URL is in the completed set
func (f *Frontier) Restore(pending []models.URLTask, completed map[string]struct{}) {
	for i := range pending {
		task := pending[i]
		if _, done := completed[task.NormalizedURL]; done {
			f.MarkSeen(task.NormalizedURL)
			continue
		}
		f.Push(&task)
	}
}
