package fetch

import (
	"context"
	"errors"
	"net"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// ClassifyError maps a transport-level error to an error-record kind
// for the given pipeline phase
func ClassifyError(err error, phase models.Phase) models.ErrorKind {
	if err == nil {
		return ""
	}

	timeout := false
	if errors.Is(err, context.DeadlineExceeded) {
		timeout = true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}

	switch phase {
	case models.PhaseFetch:
		if timeout {
			return models.ErrFetchTimeout
		}
		return models.ErrFetchNetwork
	case models.PhaseRender:
		if timeout {
			return models.ErrRenderTimeout
		}
		return models.ErrRenderCrash
	case models.PhaseWrite:
		return models.ErrWriteIO
	default:
		return models.ErrFatalUnknown
	}
}
