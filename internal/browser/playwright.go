package browser

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/spverify/internal/obs"
)

// stateProbeTimeoutMS bounds per-element state probes inside Query so a
// detaching element cannot stall a poll iteration.
const stateProbeTimeoutMS = 250

// Options configures the launched browser.
type Options struct {
	Engine         string // chromium, firefox or webkit
	Headless       bool
	SlowMo         time.Duration
	Width, Height  int
	DefaultTimeout time.Duration
	// Install downloads the driver and browser before launching.
	Install bool
}

// Launcher owns the Playwright driver process and one browser.
type Launcher struct {
	mu      sync.Mutex
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
}

// Launch starts Playwright and the configured browser engine.
func Launch(opts Options) (*Launcher, error) {
	if opts.Engine == "" {
		opts.Engine = "chromium"
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Second
	}
	log := obs.Pkg("browser")

	if opts.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{opts.Engine}}); err != nil {
			return nil, fmt.Errorf("install playwright %s: %w", opts.Engine, err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	var bt playwright.BrowserType
	switch opts.Engine {
	case "chromium":
		bt = pw.Chromium
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, fmt.Errorf("unknown browser engine %q", opts.Engine)
	}

	b, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(float64(opts.SlowMo.Milliseconds())),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch %s: %w", opts.Engine, err)
	}

	log.Info("browser_launched", "engine", opts.Engine, "headless", opts.Headless, "version", b.Version())
	return &Launcher{opts: opts, pw: pw, browser: b}, nil
}

// NewContext opens an isolated browser context with default timeouts applied.
func (l *Launcher) NewContext() (Context, error) {
	l.mu.Lock()
	b := l.browser
	l.mu.Unlock()
	if b == nil {
		return nil, errors.New("browser is closed")
	}

	var opts playwright.BrowserNewContextOptions
	if l.opts.Width > 0 && l.opts.Height > 0 {
		opts.Viewport = &playwright.Size{Width: l.opts.Width, Height: l.opts.Height}
	}
	bctx, err := b.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	ms := float64(l.opts.DefaultTimeout.Milliseconds())
	bctx.SetDefaultTimeout(ms)
	bctx.SetDefaultNavigationTimeout(ms)
	return &pwContext{ctx: bctx}, nil
}

// WithContext acquires a fresh Context, runs fn, and closes the Context on
// every exit path, including panics.
func (l *Launcher) WithContext(fn func(Context) error) (err error) {
	c, err := l.NewContext()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close browser context: %w", cerr)
		}
	}()
	return fn(c)
}

// Close shuts down the browser and the driver process.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.browser != nil {
		if err := l.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		l.browser = nil
	}
	if l.pw != nil {
		if err := l.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
		l.pw = nil
	}
	return errors.Join(errs...)
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &pwPage{page: p}, nil
}

func (c *pwContext) AddInitScript(script string) error {
	return c.ctx.AddInitScript(playwright.Script{Content: playwright.String(script)})
}

func (c *pwContext) Intercept(fn InterceptFunc) error {
	return c.ctx.Route("**/*", func(route playwright.Route) {
		req := route.Request()
		f, ok := fn(Request{Method: req.Method(), URL: req.URL()})
		if !ok {
			_ = route.Continue()
			return
		}
		_ = route.Fulfill(playwright.RouteFulfillOptions{
			Status:      playwright.Int(f.Status),
			ContentType: playwright.String(f.ContentType),
			Headers:     f.Headers,
			Body:        f.Body,
		})
	})
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwPage struct {
	page playwright.Page
}

func msOf(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   msOf(timeout),
	})
	return err
}

func (p *pwPage) Query(loc Locator) ([]ElementState, error) {
	l := p.resolve(loc)
	n, err := l.Count()
	if err != nil {
		return nil, err
	}
	probe := playwright.Float(stateProbeTimeoutMS)
	states := make([]ElementState, 0, n)
	for i := 0; i < n; i++ {
		el := l.Nth(i)
		var s ElementState
		// Elements may detach between Count and the probes; a failed probe
		// leaves the zero value, which reads as not visible.
		s.Visible, _ = el.IsVisible()
		s.Enabled, _ = el.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: probe})
		s.Editable, _ = el.IsEditable(playwright.LocatorIsEditableOptions{Timeout: probe})
		text, _ := el.TextContent(playwright.LocatorTextContentOptions{Timeout: probe})
		s.Text = strings.TrimSpace(text)
		states = append(states, s)
	}
	return states, nil
}

func (p *pwPage) Fill(loc Locator, value string, timeout time.Duration) error {
	return p.resolve(loc).Fill(value, playwright.LocatorFillOptions{Timeout: msOf(timeout)})
}

func (p *pwPage) Click(loc Locator, timeout time.Duration) error {
	return p.resolve(loc).Click(playwright.LocatorClickOptions{Timeout: msOf(timeout)})
}

func (p *pwPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
}

func (p *pwPage) Snapshot() (Snapshot, error) {
	title, err := p.page.Title()
	if err != nil {
		return Snapshot{URL: p.page.URL()}, err
	}
	content, err := p.page.Content()
	if err != nil {
		return Snapshot{URL: p.page.URL(), Title: title}, err
	}
	return Snapshot{URL: p.page.URL(), Title: title, Content: content}, nil
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

func (p *pwPage) resolve(loc Locator) playwright.Locator {
	var l playwright.Locator
	if loc.Within != nil {
		l = resolveIn(p.resolve(*loc.Within), loc)
	} else {
		l = resolveOnPage(p.page, loc)
	}
	if loc.HasText != "" {
		l = l.Filter(playwright.LocatorFilterOptions{HasText: loc.HasText})
	}
	return l
}

func resolveOnPage(page playwright.Page, loc Locator) playwright.Locator {
	exact := playwright.Bool(loc.Exact)
	switch {
	case loc.Role != "":
		opts := playwright.PageGetByRoleOptions{Exact: exact}
		if loc.Name != "" {
			opts.Name = loc.Name
		}
		return page.GetByRole(playwright.AriaRole(loc.Role), opts)
	case loc.Label != "":
		return page.GetByLabel(loc.Label, playwright.PageGetByLabelOptions{Exact: exact})
	case loc.Text != "":
		return page.GetByText(loc.Text, playwright.PageGetByTextOptions{Exact: exact})
	default:
		return page.Locator(loc.CSS)
	}
}

func resolveIn(parent playwright.Locator, loc Locator) playwright.Locator {
	exact := playwright.Bool(loc.Exact)
	switch {
	case loc.Role != "":
		opts := playwright.LocatorGetByRoleOptions{Exact: exact}
		if loc.Name != "" {
			opts.Name = loc.Name
		}
		return parent.GetByRole(playwright.AriaRole(loc.Role), opts)
	case loc.Label != "":
		return parent.GetByLabel(loc.Label, playwright.LocatorGetByLabelOptions{Exact: exact})
	case loc.Text != "":
		return parent.GetByText(loc.Text, playwright.LocatorGetByTextOptions{Exact: exact})
	default:
		return parent.Locator(loc.CSS)
	}
}
