package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/interfaces"
	"github.com/scottfultz/cartographer-sub007/internal/models"
)

const (
	networkIdleWindow = 500 * time.Millisecond
	captureGrace      = 2 * time.Second
)

// redactScript blanks user-entered values before the DOM is serialized
const redactScript = `(() => {
	document.querySelectorAll('input, textarea').forEach(el => {
		const t = (el.type || '').toLowerCase();
		if (t === 'submit' || t === 'button' || t === 'image') return;
		el.value = '';
		el.removeAttribute('value');
	});
	document.querySelectorAll('select').forEach(el => { el.selectedIndex = -1; });
})()`

// redactFormsScript removes form contents entirely
const redactFormsScript = `(() => {
	document.querySelectorAll('form').forEach(el => { el.innerHTML = ''; });
})()`

// ChromeRenderer drives a headless browser from the shared pool for the
// prerender and full render modes
type ChromeRenderer struct {
	pool   *BrowserPool
	logger arbor.ILogger
}

// NewChromeRenderer wraps an initialized browser pool
func NewChromeRenderer(pool *BrowserPool, logger arbor.ILogger) *ChromeRenderer {
	return &ChromeRenderer{pool: pool, logger: logger}
}

// pageCapture accumulates CDP events for one navigation. All fields are
// guarded by mu because ListenTarget callbacks run on the CDP goroutine.
type pageCapture struct {
	mu            sync.Mutex
	mainRequestID network.RequestID
	status        int
	headers       http.Header
	encoding      string
	inflight      map[network.RequestID]struct{}
	lastActivity  time.Time
	navStart      time.Time
	dclMs         int64
	loadMs        int64
	console       []interfaces.ConsoleMessage
}

func newPageCapture(navStart time.Time) *pageCapture {
	return &pageCapture{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: navStart,
		navStart:     navStart,
		headers:      make(http.Header),
	}
}

func (c *pageCapture) listen(ev interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		c.inflight[e.RequestID] = struct{}{}
		c.lastActivity = time.Now()
	case *network.EventLoadingFinished:
		delete(c.inflight, e.RequestID)
		c.lastActivity = time.Now()
	case *network.EventLoadingFailed:
		delete(c.inflight, e.RequestID)
		c.lastActivity = time.Now()
	case *network.EventResponseReceived:
		// First document response on the tab is the main document.
		if e.Type == network.ResourceTypeDocument && c.mainRequestID == "" {
			c.mainRequestID = e.RequestID
			c.status = int(e.Response.Status)
			for key, val := range e.Response.Headers {
				c.headers.Set(key, fmt.Sprint(val))
			}
			c.encoding = e.Response.Charset
		}
	case *page.EventDomContentEventFired:
		if c.dclMs == 0 {
			c.dclMs = time.Since(c.navStart).Milliseconds()
		}
	case *page.EventLoadEventFired:
		if c.loadMs == 0 {
			c.loadMs = time.Since(c.navStart).Milliseconds()
		}
	case *runtime.EventConsoleAPICalled:
		if len(c.console) >= 200 {
			return
		}
		var parts []string
		for _, arg := range e.Args {
			if len(arg.Value) > 0 {
				parts = append(parts, string(arg.Value))
			} else if arg.Description != "" {
				parts = append(parts, arg.Description)
			}
		}
		c.console = append(c.console, interfaces.ConsoleMessage{
			Level: string(e.Type),
			Text:  strings.Join(parts, " "),
		})
	}
}

func (c *pageCapture) idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight) == 0 && time.Since(c.lastActivity) >= networkIdleWindow
}

// Render navigates to the task URL in a fresh tab and captures the
// rendered page. When the wait condition times out but the tab has a
// usable document, the partial result is returned instead of an error.
func (r *ChromeRenderer) Render(ctx context.Context, req *interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	wait, err := ParseWaitCondition(req.WaitCondition)
	if err != nil {
		return nil, err
	}

	browserCtx, err := r.pool.Get()
	if err != nil {
		return nil, err
	}

	// The tab context carries no deadline of its own so that a capture
	// pass can still run after the navigation deadline fires.
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()

	// Propagate caller cancellation to the tab.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	navStart := time.Now()
	capture := newPageCapture(navStart)
	chromedp.ListenTarget(tabCtx, capture.listen)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(tabCtx, timeout)
	defer navCancel()

	navErr := chromedp.Run(navCtx,
		network.Enable(),
		chromedp.Navigate(req.Task.URL),
		r.waitAction(wait, capture),
	)

	endReason := endReasonFor(wait)
	partial := false
	if navErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(navErr, context.DeadlineExceeded) {
			return nil, navErr
		}
		// Deadline hit mid-navigation. Try to salvage whatever document
		// the tab holds within a short grace window.
		endReason = interfaces.EndTimeout
		partial = true
	}

	captureCtx, captureCancel := context.WithTimeout(tabCtx, captureGrace)
	defer captureCancel()

	result, err := r.capturePage(captureCtx, req, capture)
	if err != nil {
		if navErr != nil {
			return nil, navErr
		}
		return nil, err
	}
	result.EndReason = endReason
	result.Partial = partial
	if partial && result.DOM == "" {
		return nil, navErr
	}
	return result, nil
}

func endReasonFor(wait WaitCondition) interfaces.EndReason {
	if wait.Kind == WaitNetworkIdle {
		return interfaces.EndNetworkIdle
	}
	return interfaces.EndLoad
}

// waitAction returns the chromedp action that satisfies the parsed wait
// condition
func (r *ChromeRenderer) waitAction(wait WaitCondition, capture *pageCapture) chromedp.Action {
	switch wait.Kind {
	case WaitSelector:
		return chromedp.WaitVisible(wait.Selector, chromedp.ByQuery)
	case WaitTimeout:
		return chromedp.Sleep(wait.Duration)
	case WaitNetworkIdle:
		return chromedp.ActionFunc(func(ctx context.Context) error {
			if err := chromedp.WaitReady("body", chromedp.ByQuery).Do(ctx); err != nil {
				return err
			}
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if capture.idle() {
						capture.mu.Lock()
						capture.lastActivity = time.Now()
						capture.mu.Unlock()
						return nil
					}
				}
			}
		})
	default:
		return chromedp.WaitReady("body", chromedp.ByQuery)
	}
}

func (r *ChromeRenderer) capturePage(ctx context.Context, req *interfaces.RenderRequest, capture *pageCapture) (*interfaces.RenderResult, error) {
	if req.Privacy.RedactForms {
		if err := chromedp.Run(ctx, chromedp.Evaluate(redactFormsScript, nil)); err != nil {
			r.logger.Debug().Err(err).Msg("Form redaction script failed")
		}
	}
	if req.Privacy.RedactInputValues {
		if err := chromedp.Run(ctx, chromedp.Evaluate(redactScript, nil)); err != nil {
			r.logger.Debug().Err(err).Msg("Input redaction script failed")
		}
	}

	var domHTML, finalURL string
	err := chromedp.Run(ctx,
		chromedp.Location(&finalURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			root, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			domHTML, err = dom.GetOuterHTML().WithNodeID(root.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture rendered document: %w", err)
	}

	capture.mu.Lock()
	mainID := capture.mainRequestID
	status := capture.status
	headers := capture.headers
	encoding := capture.encoding
	timing := models.NavTiming{
		NavStart:         capture.navStart,
		DOMContentLoaded: capture.dclMs,
		LoadEventEnd:     capture.loadMs,
	}
	if time.Since(capture.lastActivity) >= networkIdleWindow {
		timing.NetworkIdle = capture.lastActivity.Sub(capture.navStart).Milliseconds()
	}
	console := capture.console
	capture.mu.Unlock()

	result := &interfaces.RenderResult{
		FinalURL: finalURL,
		Status:   status,
		Headers:  sanitizeHeaders(headers, req.Privacy),
		DOM:      domHTML,
		Encoding: encoding,
		Timing:   timing,
	}

	// Original response body, pre-render. Bodies are evicted from the
	// browser cache under pressure, so a miss here is not fatal.
	if mainID != "" {
		var body []byte
		bodyErr := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(mainID).Do(ctx)
			return err
		}))
		if bodyErr != nil {
			r.logger.Debug().Err(bodyErr).Str("url", req.Task.URL).Msg("Main document body unavailable")
		} else {
			if req.MaxBytes > 0 && int64(len(body)) > req.MaxBytes {
				body = body[:req.MaxBytes]
			}
			result.Body = body
		}
	}

	if req.Mode == interfaces.ModeFull {
		r.captureFullExtras(ctx, result, console)
	}
	return result, nil
}

// captureFullExtras adds the screenshot, console log, and accessibility
// tree for full mode. Each is best-effort; a failed extra degrades the
// result rather than failing the page.
func (r *ChromeRenderer) captureFullExtras(ctx context.Context, result *interfaces.RenderResult, console []interfaces.ConsoleMessage) {
	result.Console = console

	var shot []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&shot, 80)); err != nil {
		r.logger.Debug().Err(err).Msg("Screenshot capture failed")
	} else {
		result.Screenshot = shot
	}

	var nodes []*accessibility.Node
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		nodes, err = accessibility.GetFullAXTree().Do(ctx)
		return err
	}))
	if err != nil {
		r.logger.Debug().Err(err).Msg("Accessibility tree capture failed")
		return
	}
	if raw, err := json.Marshal(nodes); err == nil {
		result.A11yTree = raw
	}
}

// Close shuts down the underlying browser pool
func (r *ChromeRenderer) Close() error {
	return r.pool.Shutdown()
}
