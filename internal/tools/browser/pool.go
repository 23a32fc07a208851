package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// BrowserInstance represents a single browser tab managed by chromedp.
// Cancel tears down the tab's execution context; the allocator (and the
// underlying Chrome process) is owned by the Pool, not the instance.
type BrowserInstance struct {
	Ctx    context.Context
	Cancel context.CancelFunc
	ID     string
}

// Pool manages a pool of browser tabs for efficient reuse.
// It handles instance creation, acquisition, release, and cleanup with
// configurable pool size and user agent rotation.
type Pool struct {
	config      PoolConfig
	instances   chan *BrowserInstance
	mu          sync.Mutex
	closed      bool
	allocCtx    context.Context
	allocCancel context.CancelFunc
	userAgent   int // Counter for user agent rotation
	created     int // Number of live instances
}

// PoolConfig configures the browser pool behavior and resource limits.
type PoolConfig struct {
	MaxInstances   int           // Maximum number of browser tabs
	Timeout        time.Duration // Default timeout for operations
	Headless       bool          // Run Chrome in headless mode
	ViewportWidth  int           // Viewport width (default: 1920)
	ViewportHeight int           // Viewport height (default: 1080)
	RemoteURL      string        // Optional remote debugging URL (ws:// or http(s)://)
}

// NewPool creates a new browser tab pool with the given configuration.
// It starts a chromedp allocator (local headless Chrome, or a remote
// debugging target when RemoteURL is set) immediately; tabs are created
// lazily on Acquire.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.MaxInstances == 0 {
		config.MaxInstances = 5
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ViewportWidth == 0 {
		config.ViewportWidth = 1920
	}
	if config.ViewportHeight == 0 {
		config.ViewportHeight = 1080
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if remoteURL := normalizeRemoteURL(config.RemoteURL); remoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), remoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", config.Headless),
			chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight),
			chromedp.Flag("ignore-certificate-errors", true),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	pool := &Pool{
		config:      config,
		instances:   make(chan *BrowserInstance, config.MaxInstances),
		closed:      false,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}

	return pool, nil
}

// Acquire gets a browser tab from the pool or creates a new one.
// It blocks if the pool is at capacity until a tab is available or context is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*BrowserInstance, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("pool is closed")
		}
		select {
		case instance := <-p.instances:
			p.mu.Unlock()
			return instance, nil
		default:
		}
		if p.created < p.config.MaxInstances {
			p.created++
			p.mu.Unlock()
			instance, err := p.createInstance()
			if err != nil {
				p.mu.Lock()
				p.created--
				p.mu.Unlock()
				return nil, err
			}
			return instance, nil
		}
		p.mu.Unlock()

		select {
		case instance := <-p.instances:
			return instance, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns a browser tab to the pool for reuse.
// If the pool is full or closed, the tab is torn down immediately.
func (p *Pool) Release(instance *BrowserInstance) {
	if instance == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		instance.cleanup()
		p.created--
		return
	}

	select {
	case p.instances <- instance:
	default:
		instance.cleanup()
		p.created--
	}
}

// Close tears down all browser tabs and the underlying Chrome allocator.
// After Close is called, the pool cannot be used.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	close(p.instances)
	for instance := range p.instances {
		instance.cleanup()
	}
	p.created = 0

	if p.allocCancel != nil {
		p.allocCancel()
	}

	return nil
}

// createInstance opens a new tab against the pool's allocator.
func (p *Pool) createInstance() (*BrowserInstance, error) {
	if p.allocCtx == nil {
		return nil, fmt.Errorf("browser allocator not initialized")
	}

	tabCtx, tabCancel := chromedp.NewContext(p.allocCtx)
	userAgent := p.getNextUserAgent()
	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(p.config.ViewportWidth), int64(p.config.ViewportHeight)),
		emulation.SetUserAgentOverride(userAgent).WithAcceptLanguage("en-US,en"),
	); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open browser tab: %w", err)
	}

	instance := &BrowserInstance{
		Ctx:    tabCtx,
		Cancel: tabCancel,
		ID:     fmt.Sprintf("browser-%d", time.Now().UnixNano()),
	}

	return instance, nil
}

func normalizeRemoteURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") {
		return "ws://" + strings.TrimPrefix(value, "http://")
	}
	if strings.HasPrefix(value, "https://") {
		return "wss://" + strings.TrimPrefix(value, "https://")
	}
	return value
}

// getNextUserAgent returns the next user agent in rotation.
func (p *Pool) getNextUserAgent() string {
	userAgents := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2.1 Safari/605.1.15",
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ua := userAgents[p.userAgent%len(userAgents)]
	p.userAgent++
	return ua
}

// cleanup tears down the tab's execution context.
func (instance *BrowserInstance) cleanup() {
	if instance.Cancel != nil {
		instance.Cancel()
	}
}

// GetStats returns current pool statistics including capacity and availability.
func (p *Pool) GetStats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		MaxInstances:       p.config.MaxInstances,
		AvailableInstances: len(p.instances),
		IsClosed:           p.closed,
	}
}

// PoolStats contains pool statistics for monitoring and debugging.
type PoolStats struct {
	MaxInstances       int
	AvailableInstances int
	IsClosed           bool
}
