package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// ErrPoolUnavailable marks the browser pool as unusable. The scheduler
// treats it as a fatal renderer condition rather than a page error.
var ErrPoolUnavailable = errors.New("browser pool unavailable")

// BrowserPool manages a pool of chromedp browser contexts for page
// rendering, with round-robin allocation
type BrowserPool struct {
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	mu               sync.Mutex
	maxInstances     int
	currentIndex     int
	logger           arbor.ILogger
	userAgent        string
	initialized      bool
}

// BrowserPoolConfig holds configuration for the browser pool
type BrowserPoolConfig struct {
	MaxInstances int
	UserAgent    string
	Headless     bool
	NoSandbox    bool
	StartupProbe time.Duration
}

// NewBrowserPool creates an uninitialized browser pool
func NewBrowserPool(config BrowserPoolConfig, logger arbor.ILogger) *BrowserPool {
	return &BrowserPool{
		maxInstances: config.MaxInstances,
		userAgent:    config.UserAgent,
		logger:       logger,
	}
}

// Init starts the browser instances. Instances that fail their startup
// probe are skipped; Init fails only when none could be created.
func (p *BrowserPool) Init(config BrowserPoolConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("browser pool already initialized")
	}
	if config.MaxInstances <= 0 {
		return fmt.Errorf("max instances must be greater than 0, got %d", config.MaxInstances)
	}
	if config.UserAgent == "" {
		config.UserAgent = "Cartographer/1.0"
	}

	p.maxInstances = config.MaxInstances
	p.userAgent = config.UserAgent
	p.browsers = make([]context.Context, 0, p.maxInstances)
	p.browserCancels = make([]context.CancelFunc, 0, p.maxInstances)
	p.allocatorCancels = make([]context.CancelFunc, 0, p.maxInstances)
	p.currentIndex = 0

	p.logger.Info().
		Int("pool_size", p.maxInstances).
		Bool("headless", config.Headless).
		Msg("Initializing browser pool")

	successCount := 0
	var lastErr error
	for i := 0; i < p.maxInstances; i++ {
		if err := p.createInstance(i, config); err != nil {
			lastErr = err
			p.logger.Warn().
				Err(err).
				Int("browser_index", i).
				Msg("Failed to create browser instance")
			continue
		}
		successCount++
	}

	if successCount == 0 {
		p.cleanupInstances()
		return fmt.Errorf("failed to create any browser instances, last error: %w", lastErr)
	}
	if successCount < p.maxInstances {
		p.logger.Warn().
			Int("requested", p.maxInstances).
			Int("created", successCount).
			Msg("Created fewer browser instances than requested")
		p.maxInstances = successCount
	}

	p.initialized = true
	return nil
}

func (p *BrowserPool) createInstance(index int, config BrowserPoolConfig) error {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	probe := config.StartupProbe
	if probe <= 0 {
		probe = 30 * time.Second
	}
	probeCtx, probeCancel := context.WithTimeout(browserCtx, probe)
	defer probeCancel()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser instance failed startup probe: %w", err)
	}

	p.browsers = append(p.browsers, browserCtx)
	p.browserCancels = append(p.browserCancels, browserCancel)
	p.allocatorCancels = append(p.allocatorCancels, allocatorCancel)

	p.logger.Debug().
		Int("browser_index", index).
		Msg("Browser instance created")
	return nil
}

// Get returns a browser context from the pool using round-robin
// allocation
func (p *BrowserPool) Get() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, fmt.Errorf("%w: not initialized", ErrPoolUnavailable)
	}
	if len(p.browsers) == 0 {
		return nil, fmt.Errorf("%w: no instances", ErrPoolUnavailable)
	}

	index := p.currentIndex % len(p.browsers)
	p.currentIndex = (p.currentIndex + 1) % len(p.browsers)
	return p.browsers[index], nil
}

// Shutdown cleans up all browser instances in the pool
func (p *BrowserPool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.cleanupInstances()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().Msg("Browser pool shutdown timed out")
	}

	p.initialized = false
	return nil
}

// cleanupInstances must be called with the mutex held
func (p *BrowserPool) cleanupInstances() {
	for _, cancel := range p.browserCancels {
		if cancel != nil {
			cancel()
		}
	}
	for _, cancel := range p.allocatorCancels {
		if cancel != nil {
			cancel()
		}
	}
	p.browsers = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
	p.currentIndex = 0
}
