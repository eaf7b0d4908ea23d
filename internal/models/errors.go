package models

import "time"

// Phase identifies the pipeline stage that produced an error
type Phase string

const (
	PhaseFetch   Phase = "fetch"
	PhaseRender  Phase = "render"
	PhaseExtract Phase = "extract"
	PhaseWrite   Phase = "write"
)

// ErrorKind classifies an error record
type ErrorKind string

const (
	ErrFetchTimeout      ErrorKind = "fetch_timeout"
	ErrFetchNetwork      ErrorKind = "fetch_network"
	ErrFetchHTTP         ErrorKind = "fetch_http_error"
	ErrRenderTimeout     ErrorKind = "render_timeout"
	ErrRenderCrash       ErrorKind = "render_crash"
	ErrExtractValidation ErrorKind = "extract_validation"
	ErrWriteIO           ErrorKind = "write_io"
	ErrRobotsFetch       ErrorKind = "robots_fetch"
	ErrPolicyDenied      ErrorKind = "policy_denied"
	ErrSchemaViolation   ErrorKind = "schema_violation"
	ErrCheckpointIO      ErrorKind = "checkpoint_io"
	ErrFatalUnknown      ErrorKind = "fatal_unknown"
)

// ErrorRecord is a crawl error. Errors are a dataset, not exceptions;
// they are always written, even when fatal.
type ErrorRecord struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Phase     Phase     `json:"phase" validate:"required,oneof=fetch render extract write"`
	Kind      ErrorKind `json:"kind" validate:"required"`
	Message   string    `json:"message" validate:"required"`
	Stack     string    `json:"stack,omitempty"`
}

// CountsAgainstBudget reports whether this error kind consumes the
// crawl's error budget. Policy denials and robots disallows are
// informational.
func (k ErrorKind) CountsAgainstBudget() bool {
	switch k {
	case ErrPolicyDenied, ErrRobotsFetch, ErrCheckpointIO:
		return false
	}
	return true
}
