package scheduler

import (
	"errors"
	"fmt"
)

// FatalClass categorizes a crawl-terminating failure for the manifest
// and the process exit code
type FatalClass string

const (
	FatalRenderer   FatalClass = "renderer"
	FatalWriter     FatalClass = "writer"
	FatalValidation FatalClass = "validation"
	FatalUnknown    FatalClass = "unknown"
)

// CrawlError is a fatal crawl failure. The archive is still finalized,
// marked incomplete, with the class recorded in the manifest.
type CrawlError struct {
	Class FatalClass
	Err   error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("fatal %s error: %v", e.Class, e.Err)
}

func (e *CrawlError) Unwrap() error { return e.Err }

// ErrBudgetExceeded is returned when the error budget runs out. The
// crawl cancels cleanly and the archive is finalized incomplete.
var ErrBudgetExceeded = errors.New("error budget exceeded")

// ErrCancelled is returned when the crawl was cancelled, by the caller
// or by signal, before the frontier drained
var ErrCancelled = errors.New("crawl cancelled")

// Process exit codes
const (
	ExitOK         = 0
	ExitCancelled  = 2 // budget exhausted or cancelled; partial archive written
	ExitRenderer   = 3
	ExitWriter     = 4
	ExitValidation = 5 // archive failed post-finalize verification
	ExitUnknown    = 10
)

// ExitCode maps a Run error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, ErrBudgetExceeded) || errors.Is(err, ErrCancelled) {
		return ExitCancelled
	}
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		switch crawlErr.Class {
		case FatalRenderer:
			return ExitRenderer
		case FatalWriter:
			return ExitWriter
		case FatalValidation:
			return ExitValidation
		}
	}
	return ExitUnknown
}
