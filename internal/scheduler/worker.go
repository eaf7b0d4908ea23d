package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/scottfultz/cartographer-sub007/internal/atlas"
	"github.com/scottfultz/cartographer-sub007/internal/common"
	"github.com/scottfultz/cartographer-sub007/internal/fetch"
	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
	"github.com/scottfultz/cartographer-sub007/internal/policy"
	"github.com/scottfultz/cartographer-sub007/internal/urlnorm"
)

// worker pops tasks until the run context ends. Each task runs the full
// pipeline: policy gate, rate limit, render, extract, write, discover.
func (s *Scheduler) worker(ctx context.Context) {
	for {
		if err := s.waitWhilePaused(ctx); err != nil {
			return
		}
		task, err := s.frontier.Pop(ctx)
		if err != nil {
			return
		}

		s.inFlight.Add(1)
		s.processTask(ctx, task)
		s.inFlight.Add(-1)
		s.taskFinished()
	}
}

func (s *Scheduler) processTask(ctx context.Context, task *models.URLTask) {
	verdict := s.gate.Evaluate(ctx, task, policy.Budget{
		PagesCompleted: s.completed.Load(),
		BytesFetched:   s.bytes.Load(),
	})
	s.noteWarnings(task, verdict.Warnings)

	if !verdict.Allow {
		s.handleDenial(ctx, task, verdict)
		return
	}
	if verdict.Robots == models.RobotsOverride {
		s.markOverrideUsed()
		s.addNote("robots override used")
		s.emit(ctx, "warn", models.EventRobotsOverride, "", map[string]interface{}{
			"url": task.NormalizedURL,
		})
	}

	origin := urlnorm.Origin(task.NormalizedURL)
	if err := s.limiter.Acquire(ctx, origin); err != nil {
		return
	}

	pageID := common.NewPageID()
	res, err := s.renderer.Render(ctx, &interfaces.RenderRequest{
		Task:          *task,
		Mode:          s.mode,
		WaitCondition: s.config.Render.WaitCondition,
		Timeout:       s.config.RenderTimeout(),
		MaxBytes:      int64(s.config.Render.MaxBytesPerPage),
		UserAgent:     s.config.HTTP.UserAgent,
		Privacy:       s.privacy,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, fetch.ErrPoolUnavailable) {
			s.fail(FatalRenderer, err)
			return
		}
		s.pageFailed(ctx, task, pageID, err)
		return
	}

	page := s.buildPageRecord(task, pageID, res, verdict.Robots)

	if res.Partial {
		s.emit(ctx, "warn", models.EventDegradedRender, pageID, map[string]interface{}{
			"url":        task.NormalizedURL,
			"end_reason": string(res.EndReason),
		})
	}
	// 4xx/5xx responses are recorded as status on the page record, not
	// as errors; only transport failures consume the error budget.
	if !s.extractAndWrite(ctx, task, page, res) {
		return
	}

	s.completedMu.Lock()
	s.completedURLs = append(s.completedURLs, task.NormalizedURL)
	s.completedSet[task.NormalizedURL] = struct{}{}
	s.completedMu.Unlock()

	completed := s.completed.Add(1)
	s.bytes.Add(int64(len(res.Body)))
	s.emit(ctx, "info", models.EventPageCompleted, pageID, map[string]interface{}{
		"url":    task.NormalizedURL,
		"status": res.Status,
		"depth":  task.Depth,
	})
	s.logger.Debug().
		Str("url", task.NormalizedURL).
		Int("status", res.Status).
		Int64("completed", completed).
		Msg("Page completed")

	if s.config.CheckpointEnabled() && s.config.Checkpoint.Interval > 0 {
		if s.sinceCkpt.Add(1) >= int64(s.config.Checkpoint.Interval) {
			s.saveCheckpoint(ctx)
		}
	}
}

// handleDenial records a gate denial. Denials are policy, not errors:
// budget denials are events only, everything else also lands in the
// errors dataset without consuming the error budget.
func (s *Scheduler) handleDenial(ctx context.Context, task *models.URLTask, verdict policy.Result) {
	switch verdict.Reason {
	case policy.DenyPageBudget, policy.DenyByteBudget:
		s.emit(ctx, "info", models.EventPolicyDenied, "", map[string]interface{}{
			"url":    task.NormalizedURL,
			"reason": verdict.Reason,
		})
		return
	case policy.DenyRobots:
		s.emit(ctx, "info", models.EventRobotsDecision, "", map[string]interface{}{
			"url":      task.NormalizedURL,
			"decision": string(models.RobotsDisallow),
		})
	default:
		s.emit(ctx, "info", models.EventPolicyDenied, "", map[string]interface{}{
			"url":    task.NormalizedURL,
			"reason": verdict.Reason,
		})
	}

	s.recordError(ctx, models.ErrorRecord{
		URL:       task.NormalizedURL,
		Timestamp: time.Now().UTC(),
		Phase:     models.PhaseFetch,
		Kind:      models.ErrPolicyDenied,
		Message:   verdict.Reason,
	})
}

func (s *Scheduler) noteWarnings(task *models.URLTask, warnings []string) {
	for _, warning := range warnings {
		switch warning {
		case "mixed_script_host":
			s.addNote("homograph warning: " + urlnorm.Origin(task.NormalizedURL))
		case "robots_soft_fail":
			s.addNote("robots.txt unreachable: " + urlnorm.Origin(task.NormalizedURL))
		}
	}
}

// pageFailed classifies a render failure into an error record and
// spends the error budget
func (s *Scheduler) pageFailed(ctx context.Context, task *models.URLTask, pageID string, err error) {
	phase := models.PhaseRender
	if s.mode == interfaces.ModeRaw {
		phase = models.PhaseFetch
	}
	kind := fetch.ClassifyError(err, phase)

	s.recordError(ctx, models.ErrorRecord{
		URL:       task.NormalizedURL,
		Timestamp: time.Now().UTC(),
		Phase:     phase,
		Kind:      kind,
		Message:   err.Error(),
	})
	s.emit(ctx, "warn", models.EventPageError, pageID, map[string]interface{}{
		"url":  task.NormalizedURL,
		"kind": string(kind),
	})
}

// buildPageRecord assembles the page record from the render result.
// The page ID was minted before fetch, so retries reuse it.
func (s *Scheduler) buildPageRecord(task *models.URLTask, pageID string, res *interfaces.RenderResult, robots models.RobotsDecision) *models.PageRecord {
	page := &models.PageRecord{
		PageID:         pageID,
		URL:            task.URL,
		NormalizedURL:  task.NormalizedURL,
		FinalURL:       res.FinalURL,
		Status:         res.Status,
		ContentType:    mediaTypeOf(res.Headers),
		ResponseSize:   int64(len(res.Body)),
		ResponseTimeMs: res.Timing.LoadEventEnd,
		Depth:          task.Depth,
		Source:         task.Source,
		Referrer:       task.Referrer,
		RobotsDecision: robots,
		CapturedAt:     time.Now().UTC(),
	}
	if page.ResponseTimeMs < 0 {
		page.ResponseTimeMs = 0
	}

	if len(res.Body) > 0 {
		sum := sha256.Sum256(res.Body)
		page.BodySHA256 = hex.EncodeToString(sum[:])
	}
	if res.DOM != "" {
		sum := sha256.Sum256([]byte(res.DOM))
		page.DOMSHA256 = hex.EncodeToString(sum[:])
	}
	if s.mode != interfaces.ModeRaw {
		page.WaitCondition = s.config.Render.WaitCondition
	}
	timing := res.Timing
	page.Timing = &timing

	if s.blobs != nil && len(res.Body) > 0 {
		ref, err := s.blobs.Put(res.Body)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", task.NormalizedURL).Msg("Failed to store body blob")
		} else {
			page.BodyBlobRef = ref
		}
	}
	return page
}

// extractAndWrite runs every enabled extractor over the page and routes
// the records to the writer. Returns false only on a fatal writer error.
func (s *Scheduler) extractAndWrite(ctx context.Context, task *models.URLTask, page *models.PageRecord, res *interfaces.RenderResult) bool {
	for _, extractor := range s.extractors {
		records, err := extractor.Extract(page, res)
		if err != nil {
			s.recordError(ctx, models.ErrorRecord{
				URL:       task.NormalizedURL,
				Timestamp: time.Now().UTC(),
				Phase:     models.PhaseExtract,
				Kind:      models.ErrExtractValidation,
				Message:   fmt.Sprintf("%s: %v", extractor.Name(), err),
			})
			continue
		}

		for _, record := range records {
			s.attachTreeBlob(task, record, res)

			if err := s.writer.Write(record); err != nil {
				var violation *atlas.SchemaViolationError
				if errors.As(err, &violation) {
					s.recordError(ctx, models.ErrorRecord{
						URL:       task.NormalizedURL,
						Timestamp: time.Now().UTC(),
						Phase:     models.PhaseWrite,
						Kind:      models.ErrSchemaViolation,
						Message:   violation.Error(),
					})
					continue
				}
				s.fail(FatalWriter, err)
				return false
			}

			if edge, ok := record.Value.(*models.EdgeRecord); ok {
				s.discover(task, edge)
			}
		}
	}
	return true
}

// attachTreeBlob stores the captured accessibility tree in the blob
// store and links it from the accessibility record
func (s *Scheduler) attachTreeBlob(task *models.URLTask, record interfaces.Record, res *interfaces.RenderResult) {
	a11y, ok := record.Value.(*models.AccessibilityRecord)
	if !ok || s.blobs == nil || len(res.A11yTree) == 0 {
		return
	}
	ref, err := s.blobs.Put(res.A11yTree)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", task.NormalizedURL).Msg("Failed to store accessibility tree blob")
		return
	}
	a11y.TreeBlobRef = ref
}

// discover admits an internal edge target into the frontier
func (s *Scheduler) discover(task *models.URLTask, edge *models.EdgeRecord) {
	if !edge.Internal {
		return
	}
	normalized, err := s.normalizer.Normalize(edge.TargetURL)
	if err != nil {
		return
	}
	s.pushTask(&models.URLTask{
		URL:           edge.TargetURL,
		NormalizedURL: normalized,
		Depth:         task.Depth + 1,
		Source:        models.SourceLink,
		Referrer:      task.NormalizedURL,
	})
}

// mediaTypeOf returns the response media type without parameters
func mediaTypeOf(headers http.Header) string {
	raw := headers.Get("Content-Type")
	if raw == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
		return mediaType
	}
	return raw
}
