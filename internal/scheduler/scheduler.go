// Package scheduler orchestrates a crawl: it owns the frontier, the
// policy gate, the rate limiter, the render workers, and the archive
// writer, and drives the whole pipeline from seeds to a finalized
// .atls file. Cancellation, budget exhaustion, and fatal errors all
// converge on the same finalize path, so a partial archive is still a
// valid archive.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/atlas"
	"github.com/scottfultz/cartographer-sub007/internal/checkpoint"
	"github.com/scottfultz/cartographer-sub007/internal/common"
	"github.com/scottfultz/cartographer-sub007/internal/events"
	"github.com/scottfultz/cartographer-sub007/internal/extract"
	"github.com/scottfultz/cartographer-sub007/internal/fetch"
	"github.com/scottfultz/cartographer-sub007/internal/frontier"
	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
	"github.com/scottfultz/cartographer-sub007/internal/policy"
	"github.com/scottfultz/cartographer-sub007/internal/ratelimit"
	"github.com/scottfultz/cartographer-sub007/internal/urlnorm"
)

const heartbeatInterval = 5 * time.Second

// Options configures a Scheduler beyond the crawl configuration itself
type Options struct {
	Config *common.Config

	// Renderer overrides the renderer selected by render.mode. Tests
	// inject the raw HTTP fetcher here.
	Renderer interfaces.Renderer

	// Sink overrides the default in-process event bus
	Sink interfaces.EventSink

	Logger arbor.ILogger

	// AllowPrivate permits loopback and private addresses, for crawling
	// test fixtures
	AllowPrivate bool
}

// Scheduler runs one crawl from seeds to a finalized archive
type Scheduler struct {
	config     *common.Config
	logger     arbor.ILogger
	normalizer *urlnorm.Normalizer
	frontier   *frontier.Frontier
	gate       *policy.Gate
	limiter    *ratelimit.Limiter
	renderer   interfaces.Renderer
	ownsRender bool
	extractors []interfaces.Extractor
	writer     *atlas.Writer
	blobs      *atlas.BlobStore
	checkpoint *checkpoint.Checkpointer
	sink       interfaces.EventSink
	ownsSink   bool

	crawlID    string
	mode       interfaces.RenderMode
	privacy    models.PrivacyPolicy
	stagingDir string
	seeds      []string
	resumed    bool
	startedAt  time.Time

	completed   atomic.Int64
	errorCount  atomic.Int64
	bytes       atomic.Int64
	inFlight    atomic.Int64
	outstanding atomic.Int64
	eventSeq    atomic.Int64
	sinceCkpt   atomic.Int64

	stateMu  sync.Mutex
	state    State
	resumeCh chan struct{} // closed while running, open while paused
	cancel   context.CancelFunc

	outcomeMu sync.Mutex
	fatal     *CrawlError
	budgetHit bool
	cancelled bool
	natural   bool

	completedMu   sync.Mutex
	completedURLs []string
	completedSet  map[string]struct{}

	notesMu       sync.Mutex
	notes         []string
	noteSet       map[string]struct{}
	overridesUsed bool

	done   chan struct{}
	runErr error
}

// New wires a scheduler from the configuration. When resume.staging_dir
// is set, the checkpoint there is loaded and the crawl continues where
// it left off.
func New(opts Options) (*Scheduler, error) {
	config := opts.Config
	if config == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = common.GetLogger()
	}

	mode := interfaces.RenderMode(config.Render.Mode)
	if _, err := fetch.ParseWaitCondition(config.Render.WaitCondition); err != nil {
		return nil, err
	}

	normalizer := urlnorm.New(
		config.Discovery.BlockList,
		urlnorm.ParamPolicy(config.Discovery.ParamPolicy),
		config.Discovery.SortQuery,
	)

	seeds := make([]string, 0, len(config.Crawl.Seeds))
	seedOrigins := make([]string, 0, len(config.Crawl.Seeds))
	for _, raw := range config.Crawl.Seeds {
		normalized, err := normalizer.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %s: %w", raw, err)
		}
		seeds = append(seeds, normalized)
		seedOrigins = append(seedOrigins, urlnorm.Origin(normalized))
	}

	s := &Scheduler{
		config:       config,
		logger:       logger,
		normalizer:   normalizer,
		frontier:     frontier.New(config.Crawl.MaxDepth, config.Crawl.MaxPages),
		limiter:      ratelimit.New(config.HTTP.RPS, config.HTTP.PerHostRPS),
		mode:         mode,
		seeds:        seeds,
		state:        StateIdle,
		resumeCh:     closedChan(),
		completedSet: make(map[string]struct{}),
		noteSet:      make(map[string]struct{}),
		done:         make(chan struct{}),
		privacy: models.PrivacyPolicy{
			StripCookies:      config.StripCookies(),
			StripAuthHeaders:  config.StripAuthHeaders(),
			RedactInputValues: config.RedactInputValues(),
			RedactForms:       config.RedactForms(),
		},
	}

	robots := policy.NewRobotsCache(
		nil,
		config.HTTP.UserAgent,
		config.RobotsCacheTTL(),
		policy.RobotsFailPolicy(config.Robots.FailPolicy),
		logger,
	)
	s.gate = policy.NewGate(policy.GateConfig{
		AllowPatterns:  config.Discovery.AllowURLs,
		DenyPatterns:   config.Discovery.DenyURLs,
		AllowPrivate:   opts.AllowPrivate,
		RobotsRespect:  config.RobotsRespect(),
		RobotsOverride: config.Robots.OverrideUsed,
		MaxPages:       config.Crawl.MaxPages,
		FollowExternal: config.Discovery.FollowExternal,
	}, robots, seedOrigins, logger)

	s.extractors = extract.DefaultRegistry(mode).Enabled(nil)

	if err := s.initStorage(); err != nil {
		return nil, err
	}

	if opts.Sink != nil {
		s.sink = opts.Sink
	} else {
		s.sink = events.NewBus(0, logger)
		s.ownsSink = true
	}

	if opts.Renderer != nil {
		s.renderer = opts.Renderer
	} else {
		renderer, err := s.buildRenderer()
		if err != nil {
			return nil, err
		}
		s.renderer = renderer
		s.ownsRender = true
	}

	return s, nil
}

// initStorage sets up the staging directory, the writer, the blob
// store, and the checkpointer, restoring all of them when resuming
func (s *Scheduler) initStorage() error {
	config := s.config

	if config.Resume.StagingDir != "" {
		s.stagingDir = config.Resume.StagingDir
		snapshot, err := checkpoint.Load(s.stagingDir)
		if err != nil {
			return fmt.Errorf("cannot resume from %s: %w", s.stagingDir, err)
		}

		writer, err := atlas.ResumeWriter(atlas.WriterOptions{
			StagingDir: s.stagingDir,
			Logger:     s.logger,
		}, snapshot.Datasets)
		if err != nil {
			return err
		}
		s.writer = writer

		s.crawlID = snapshot.CrawlID
		s.startedAt = snapshot.StartedAt
		s.eventSeq.Store(snapshot.EventSeq)
		s.completed.Store(int64(len(snapshot.Completed)))
		s.completedURLs = append(s.completedURLs, snapshot.Completed...)
		s.completedSet = checkpoint.CompletedSet(snapshot)
		s.frontier.Restore(snapshot.Pending, s.completedSet)
		s.resumed = true

		s.logger.Info().
			Str("crawl_id", s.crawlID).
			Int("pending", len(snapshot.Pending)).
			Int("completed", len(snapshot.Completed)).
			Msg("Resuming crawl from checkpoint")
	} else {
		s.stagingDir = config.Crawl.OutAtls + ".staging"
		// A fresh crawl replaces any stale staging from an earlier run
		if err := os.RemoveAll(s.stagingDir); err != nil {
			return fmt.Errorf("failed to clear staging directory: %w", err)
		}
		writer, err := atlas.NewWriter(atlas.WriterOptions{
			StagingDir: s.stagingDir,
			Logger:     s.logger,
		})
		if err != nil {
			return err
		}
		s.writer = writer
		s.crawlID = common.NewCrawlID()
	}

	if config.Replay.Blobs {
		blobs, err := atlas.NewBlobStore(s.stagingDir)
		if err != nil {
			return err
		}
		s.blobs = blobs
	}

	s.checkpoint = checkpoint.New(s.stagingDir, s.logger)
	return nil
}

// buildRenderer selects the renderer for the configured render mode
func (s *Scheduler) buildRenderer() (interfaces.Renderer, error) {
	if s.mode == interfaces.ModeRaw {
		return fetch.NewHTTPFetcher(nil, s.logger), nil
	}

	poolConfig := fetch.BrowserPoolConfig{
		MaxInstances: s.config.Render.Concurrency,
		UserAgent:    s.config.HTTP.UserAgent,
		Headless:     true,
		NoSandbox:    true,
	}
	pool := fetch.NewBrowserPool(poolConfig, s.logger)
	if err := pool.Init(poolConfig); err != nil {
		return nil, &CrawlError{Class: FatalRenderer, Err: err}
	}
	return fetch.NewChromeRenderer(pool, s.logger), nil
}

// CrawlID returns the crawl's identity
func (s *Scheduler) CrawlID() string { return s.crawlID }

// StagingDir returns the staging directory holding intermediate output
func (s *Scheduler) StagingDir() string { return s.stagingDir }

// Subscribe registers an event handler on the crawl's sink
func (s *Scheduler) Subscribe(code models.EventCode, handler interfaces.EventHandler) func() {
	return s.sink.Subscribe(code, handler)
}

// Status reports the scheduler's current state and progress
func (s *Scheduler) Status() Status {
	s.stateMu.Lock()
	state := s.state
	s.stateMu.Unlock()

	completed := s.completed.Load()
	pps := 0.0
	if !s.startedAt.IsZero() {
		if elapsed := time.Since(s.startedAt).Seconds(); elapsed > 0 {
			pps = float64(completed) / elapsed
		}
	}
	stats := s.frontier.GetStats()

	return Status{
		CrawlID:   s.crawlID,
		State:     state,
		StartedAt: s.startedAt,
		Progress: Progress{
			Queued:         stats.Queued,
			InFlight:       s.inFlight.Load(),
			Completed:      completed,
			Errors:         s.errorCount.Load(),
			Duplicates:     stats.Duplicates,
			BytesFetched:   s.bytes.Load(),
			PagesPerSecond: pps,
		},
	}
}

// Pause stops workers from taking new tasks; in-flight pages complete.
// Pausing anything but a running crawl is a no-op.
func (s *Scheduler) Pause(ctx context.Context) {
	s.stateMu.Lock()
	if s.state != StateRunning {
		s.stateMu.Unlock()
		return
	}
	s.state = StatePaused
	s.resumeCh = make(chan struct{})
	s.stateMu.Unlock()

	s.emit(ctx, "info", models.EventCrawlPaused, "", nil)
}

// Resume releases paused workers. A no-op unless paused.
func (s *Scheduler) Resume(ctx context.Context) {
	s.stateMu.Lock()
	if s.state != StatePaused {
		s.stateMu.Unlock()
		return
	}
	s.state = StateRunning
	close(s.resumeCh)
	s.stateMu.Unlock()

	s.emit(ctx, "info", models.EventCrawlResumed, "", nil)
}

// Cancel stops the crawl. In-flight pages are abandoned, then the
// archive is finalized with what was captured. Idempotent.
func (s *Scheduler) Cancel(ctx context.Context) {
	s.outcomeMu.Lock()
	already := s.cancelled
	s.cancelled = true
	s.outcomeMu.Unlock()
	if already {
		return
	}

	s.stateMu.Lock()
	if s.state == StateRunning || s.state == StatePaused {
		s.state = StateCancelling
		// Release paused workers so they can observe the cancellation
		select {
		case <-s.resumeCh:
		default:
			close(s.resumeCh)
		}
	}
	cancel := s.cancel
	s.stateMu.Unlock()

	s.emit(ctx, "warn", models.EventCrawlCancelled, "", nil)
	if cancel != nil {
		cancel()
	}
}

// Done is closed when Run has returned
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Start launches the crawl on its own goroutine and returns the crawl
// ID. The result is available from Wait.
func (s *Scheduler) Start(ctx context.Context) string {
	go s.Run(ctx)
	return s.crawlID
}

// Wait blocks until the crawl has finished and returns its result
func (s *Scheduler) Wait() error {
	<-s.done
	return s.runErr
}

// Run executes the crawl to completion and finalizes the archive. The
// returned error maps to a process exit code via ExitCode.
func (s *Scheduler) Run(ctx context.Context) error {
	err := s.run(ctx)
	s.runErr = err
	close(s.done)
	return err
}

func (s *Scheduler) run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.stateMu.Lock()
	s.cancel = cancel
	s.state = StateRunning
	s.stateMu.Unlock()

	if s.startedAt.IsZero() {
		s.startedAt = time.Now().UTC()
	}
	s.emit(runCtx, "info", models.EventCrawlStarted, "", map[string]interface{}{
		"seeds":   s.seeds,
		"mode":    string(s.mode),
		"resumed": s.resumed,
	})

	if s.resumed {
		s.outstanding.Store(int64(s.frontier.Size()))
	} else {
		for _, seed := range s.seeds {
			s.pushTask(&models.URLTask{
				URL:           seed,
				NormalizedURL: seed,
				Depth:         0,
				Source:        models.SourceSeed,
			})
		}
	}

	if s.outstanding.Load() == 0 {
		// Nothing to do: every seed was a duplicate of completed work
		s.setNatural()
		cancel()
	}

	var workers sync.WaitGroup
	for i := 0; i < s.config.Render.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.worker(runCtx)
		}()
	}
	go s.heartbeatLoop(runCtx)
	go s.checkpointLoop(runCtx)

	workers.Wait()

	// Parent cancellation counts as a user cancel
	if ctx.Err() != nil {
		s.outcomeMu.Lock()
		s.cancelled = true
		s.outcomeMu.Unlock()
	}

	if s.ownsRender {
		if err := s.renderer.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Renderer shutdown failed")
		}
	}

	err := s.finalize(context.Background())

	s.stateMu.Lock()
	s.state = StateFinished
	s.stateMu.Unlock()

	if s.ownsSink {
		s.sink.Close()
	}
	return err
}

// pushTask admits a task to the frontier and tracks it for completion
// detection
func (s *Scheduler) pushTask(task *models.URLTask) bool {
	if !s.frontier.Push(task) {
		return false
	}
	s.outstanding.Add(1)
	return true
}

// taskFinished balances pushTask. The worker that retires the last
// outstanding task ends the crawl.
func (s *Scheduler) taskFinished() {
	if s.outstanding.Add(-1) == 0 {
		s.setNatural()
		s.stateMu.Lock()
		cancel := s.cancel
		s.stateMu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}

func (s *Scheduler) setNatural() {
	s.outcomeMu.Lock()
	s.natural = true
	s.outcomeMu.Unlock()
}

// fail records a fatal error and stops the crawl. The first fatal wins.
func (s *Scheduler) fail(class FatalClass, err error) {
	s.outcomeMu.Lock()
	if s.fatal == nil {
		s.fatal = &CrawlError{Class: class, Err: err}
	}
	s.outcomeMu.Unlock()

	s.logger.Error().Err(err).Str("class", string(class)).Msg("Fatal crawl error")

	s.stateMu.Lock()
	if s.state == StateRunning || s.state == StatePaused {
		s.state = StateCancelling
	}
	cancel := s.cancel
	s.stateMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// recordError writes an error record and spends the error budget.
// Budget exhaustion cancels the crawl.
func (s *Scheduler) recordError(ctx context.Context, rec models.ErrorRecord) {
	if err := s.writer.Write(interfaces.Record{Dataset: models.DatasetErrors, Value: &rec}); err != nil {
		s.logger.Warn().Err(err).Str("url", rec.URL).Msg("Failed to write error record")
	}

	if !rec.Kind.CountsAgainstBudget() {
		return
	}
	count := s.errorCount.Add(1)
	maxErrors := s.config.Crawl.MaxErrors
	if maxErrors < 0 {
		return
	}
	if (maxErrors == 0 && count >= 1) || (maxErrors > 0 && count >= int64(maxErrors)) {
		s.outcomeMu.Lock()
		first := !s.budgetHit
		s.budgetHit = true
		s.outcomeMu.Unlock()
		if first {
			s.logger.Warn().
				Int64("errors", count).
				Int("max_errors", maxErrors).
				Msg("Error budget exhausted, cancelling crawl")
			s.addNote("error budget exhausted")
			s.stateMu.Lock()
			if s.state == StateRunning || s.state == StatePaused {
				s.state = StateCancelling
			}
			cancel := s.cancel
			s.stateMu.Unlock()
			if cancel != nil {
				cancel()
			}
		}
	}
}

// emit publishes a crawl event to the sink and appends it to the events
// dataset. Event write failures are logged, never fatal.
func (s *Scheduler) emit(ctx context.Context, level string, code models.EventCode, pageID string, fields map[string]interface{}) {
	event := models.EventRecord{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Code:      code,
		CrawlID:   s.crawlID,
		PageID:    pageID,
		Seq:       s.eventSeq.Add(1),
		Fields:    fields,
	}
	if err := s.sink.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("code", string(code)).Msg("Event publish failed")
	}
	if err := s.writer.Write(interfaces.Record{Dataset: models.DatasetEvents, Value: &event}); err != nil {
		s.logger.Warn().Err(err).Str("code", string(code)).Msg("Failed to write event record")
	}
}

// addNote appends a deduplicated note destined for the manifest
func (s *Scheduler) addNote(note string) {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	if _, ok := s.noteSet[note]; ok {
		return
	}
	s.noteSet[note] = struct{}{}
	s.notes = append(s.notes, note)
}

func (s *Scheduler) markOverrideUsed() {
	s.notesMu.Lock()
	s.overridesUsed = true
	s.notesMu.Unlock()
}

// waitWhilePaused blocks while the crawl is paused
func (s *Scheduler) waitWhilePaused(ctx context.Context) error {
	s.stateMu.Lock()
	ch := s.resumeCh
	s.stateMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// heartbeatLoop emits periodic progress events and collects idle
// per-origin rate limiter buckets
func (s *Scheduler) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.frontier.GetStats()
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			s.emit(ctx, "info", models.EventHeartbeat, "", map[string]interface{}{
				"queued":           stats.Queued,
				"in_flight":        s.inFlight.Load(),
				"completed":        s.completed.Load(),
				"errors":           s.errorCount.Load(),
				"duplicates":       stats.Duplicates,
				"bytes":            s.bytes.Load(),
				"pages_per_second": s.Status().Progress.PagesPerSecond,
				"heap_bytes":       mem.HeapAlloc,
			})
			s.limiter.GCOrigins(5 * time.Minute)
		}
	}
}

// checkpointLoop saves snapshots on the configured time cadence. The
// per-page cadence is handled by the workers.
func (s *Scheduler) checkpointLoop(ctx context.Context) {
	if !s.config.CheckpointEnabled() || s.config.Checkpoint.EverySeconds <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(s.config.Checkpoint.EverySeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.saveCheckpoint(ctx)
		}
	}
}

// saveCheckpoint snapshots the writer, the frontier, and the completed
// set into the staging directory
func (s *Scheduler) saveCheckpoint(ctx context.Context) {
	datasets, err := s.writer.Snapshot()
	if err != nil {
		s.checkpointFailed(ctx, err)
		return
	}

	s.completedMu.Lock()
	completedURLs := append([]string(nil), s.completedURLs...)
	s.completedMu.Unlock()

	snapshot := &models.CheckpointSnapshot{
		CrawlID:   s.crawlID,
		StartedAt: s.startedAt,
		Pending:   s.frontier.Snapshot(),
		Completed: completedURLs,
		Datasets:  datasets,
		EventSeq:  s.eventSeq.Load(),
	}
	if err := s.checkpoint.Save(snapshot); err != nil {
		s.checkpointFailed(ctx, err)
		return
	}

	s.sinceCkpt.Store(0)
	s.emit(ctx, "info", models.EventCheckpointSaved, "", map[string]interface{}{
		"pending":   len(snapshot.Pending),
		"completed": len(snapshot.Completed),
	})
}

func (s *Scheduler) checkpointFailed(ctx context.Context, err error) {
	s.logger.Warn().Err(err).Msg("Checkpoint save failed")
	s.recordError(ctx, models.ErrorRecord{
		Timestamp: time.Now().UTC(),
		Phase:     models.PhaseWrite,
		Kind:      models.ErrCheckpointIO,
		Message:   err.Error(),
	})
	s.emit(ctx, "warn", models.EventCheckpointError, "", map[string]interface{}{
		"error": err.Error(),
	})
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
