package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/scottfultz/cartographer-sub007/internal/atlas"
	"github.com/scottfultz/cartographer-sub007/internal/extract"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// outcome resolves how the crawl ended. Fatal beats budget beats
// cancellation; a natural drain with none of those is a success.
func (s *Scheduler) outcome() (incomplete bool, fatalClass string, err error) {
	s.outcomeMu.Lock()
	defer s.outcomeMu.Unlock()

	switch {
	case s.fatal != nil:
		return true, string(s.fatal.Class), s.fatal
	case s.budgetHit:
		return true, "", ErrBudgetExceeded
	case s.cancelled:
		return true, "", ErrCancelled
	case s.natural:
		return false, "", nil
	default:
		return true, string(FatalUnknown), &CrawlError{
			Class: FatalUnknown,
			Err:   fmt.Errorf("workers stopped with work outstanding"),
		}
	}
}

// finalize turns the staging directory into a verified .atls archive.
// It runs on every termination path; a cancelled or failed crawl still
// produces a valid archive marked incomplete.
func (s *Scheduler) finalize(ctx context.Context) error {
	s.stateMu.Lock()
	s.state = StateFinalizing
	s.stateMu.Unlock()

	incomplete, fatalClass, runErr := s.outcome()
	finishedAt := time.Now().UTC()

	s.emit(ctx, "info", models.EventCrawlFinished, "", map[string]interface{}{
		"completed":  s.completed.Load(),
		"errors":     s.errorCount.Load(),
		"incomplete": incomplete,
	})

	// Incomplete crawls keep their checkpoint for a later resume
	if incomplete && s.config.CheckpointEnabled() {
		s.saveCheckpoint(ctx)
	}

	datasets, err := s.writer.Finalize()
	if err != nil {
		if runErr == nil {
			runErr = &CrawlError{Class: FatalWriter, Err: err}
		}
		s.logger.Error().Err(err).Msg("Archive finalize failed")
		return runErr
	}

	configHash, err := atlas.ConfigHash(s.config)
	if err != nil {
		configHash = ""
	}

	var blobStats *models.BlobStats
	if s.blobs != nil {
		blobStats = s.blobs.Stats()
	}

	capabilities := extract.DeriveCapabilities(s.extractors, s.mode, s.config.Replay.Tier, s.config.Replay.Blobs)
	capabilities = atlas.FilterCapabilities(capabilities, datasets)

	builder := atlas.NewBuilder(s.stagingDir, s.logger)
	_, err = builder.Finalize(atlas.BuildInfo{
		CrawlID:       s.crawlID,
		Seeds:         s.seeds,
		ConfigHash:    configHash,
		Normalization: s.normalizer.Rules(),
		Privacy:       s.privacy,
		Robots: models.RobotsPolicy{
			Respect:       s.config.RobotsRespect(),
			OverridesUsed: s.robotsOverridesUsed(),
		},
		Capabilities: capabilities,
		StartedAt:    s.startedAt,
		FinishedAt:   finishedAt,
		Incomplete:   incomplete,
		FatalClass:   fatalClass,
		Notes:        s.currentNotes(),
	}, datasets, blobStats)
	if err != nil {
		if runErr == nil {
			runErr = &CrawlError{Class: FatalWriter, Err: err}
		}
		s.logger.Error().Err(err).Msg("Manifest assembly failed")
		return runErr
	}

	outPath := s.config.Crawl.OutAtls
	if err := atlas.Pack(s.stagingDir, outPath); err != nil {
		if runErr == nil {
			runErr = &CrawlError{Class: FatalWriter, Err: err}
		}
		s.logger.Error().Err(err).Msg("Container pack failed")
		return runErr
	}

	report, err := atlas.Verify(outPath)
	if err != nil {
		if runErr == nil {
			runErr = &CrawlError{Class: FatalValidation, Err: err}
		}
		return runErr
	}
	if !report.OK() {
		s.logger.Error().
			Str("path", outPath).
			Str("problems", strings.Join(report.Problems, "; ")).
			Msg("Archive failed verification")
		if runErr == nil {
			runErr = &CrawlError{
				Class: FatalValidation,
				Err:   fmt.Errorf("archive verification failed: %s", report.Problems[0]),
			}
		}
		return runErr
	}

	s.logger.Info().
		Str("path", outPath).
		Int64("pages", s.completed.Load()).
		Bool("incomplete", incomplete).
		Msg("Archive written and verified")

	// A complete, verified archive no longer needs its staging directory
	if !incomplete {
		if err := os.RemoveAll(s.stagingDir); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to remove staging directory")
		}
	}

	return runErr
}

func (s *Scheduler) robotsOverridesUsed() bool {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	return s.overridesUsed
}

func (s *Scheduler) currentNotes() []string {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	return append([]string(nil), s.notes...)
}
