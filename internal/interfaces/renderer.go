package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// RenderMode selects how a page is retrieved
type RenderMode string

const (
	ModeRaw       RenderMode = "raw"       // HTTP only
	ModePrerender RenderMode = "prerender" // headless browser to a wait condition
	ModeFull      RenderMode = "full"      // prerender plus screenshot, DOM, a11y tree, console
)

// EndReason is the reason code for navigation end
type EndReason string

const (
	EndLoad        EndReason = "load"
	EndNetworkIdle EndReason = "networkidle"
	EndTimeout     EndReason = "timeout"
	EndError       EndReason = "error"
	EndFetch       EndReason = "fetch" // raw HTTP, no navigation
)

// RenderRequest carries one URL task plus its effective budgets and
// privacy policy into the renderer
type RenderRequest struct {
	Task          models.URLTask
	Mode          RenderMode
	WaitCondition string
	Timeout       time.Duration
	MaxBytes      int64
	UserAgent     string
	Privacy       models.PrivacyPolicy
	SessionKey    string // optional persistent session, keyed by origin
}

// ConsoleMessage is one captured browser console entry
type ConsoleMessage struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// RenderResult is everything the renderer captured for one page.
// When a timeout still produced a usable DOM, Partial is true and the
// result is surfaced rather than discarded.
type RenderResult struct {
	FinalURL   string
	Status     int
	Headers    http.Header
	Body       []byte
	Encoding   string
	DOM        string // serialized post-render DOM, empty in raw mode
	Timing     models.NavTiming
	EndReason  EndReason
	Partial    bool
	Screenshot []byte
	Console    []ConsoleMessage
	A11yTree   json.RawMessage
}

// Renderer retrieves a page in one of the render modes. Implementations
// must honor context cancellation and the per-page byte and time budgets.
type Renderer interface {
	Render(ctx context.Context, req *RenderRequest) (*RenderResult, error)
	Close() error
}
