// Package browsertest provides a scripted in-memory browser for tests that
// exercise the runner without launching a real engine.
package browsertest

import (
	"errors"
	"sync"
	"time"

	"github.com/kuitang/spverify/internal/browser"
)

// PNG is the payload returned by FakePage.Screenshot.
var PNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Shown is a visible, enabled, read-only element with text.
func Shown(text string) browser.ElementState {
	return browser.ElementState{Visible: true, Enabled: true, Text: text}
}

// Input is a visible, enabled, editable element.
func Input() browser.ElementState {
	return browser.ElementState{Visible: true, Enabled: true, Editable: true}
}

// Hidden is an attached element that is not visible.
func Hidden(text string) browser.ElementState {
	return browser.ElementState{Enabled: true, Text: text}
}

// Disabled is a visible element that cannot receive input.
func Disabled(text string) browser.ElementState {
	return browser.ElementState{Visible: true, Text: text}
}

// FakeContext records init scripts and routes requests through its interceptor.
type FakeContext struct {
	mu          sync.Mutex
	Page        *FakePage
	InitScripts []string
	interceptor browser.InterceptFunc
	// NetworkRequests counts requests that no interceptor fulfilled.
	NetworkRequests []browser.Request
	Closed          bool
	NewPageErr      error
	InterceptErr    error
}

// NewContext returns a context whose NewPage hands out page.
func NewContext(page *FakePage) *FakeContext {
	if page == nil {
		page = NewPage()
	}
	return &FakeContext{Page: page}
}

func (c *FakeContext) NewPage() (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.NewPageErr != nil {
		return nil, c.NewPageErr
	}
	c.Page.mu.Lock()
	c.Page.ctx = c
	c.Page.mu.Unlock()
	return c.Page, nil
}

func (c *FakeContext) AddInitScript(script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InitScripts = append(c.InitScripts, script)
	return nil
}

func (c *FakeContext) Intercept(fn browser.InterceptFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.InterceptErr != nil {
		return c.InterceptErr
	}
	c.interceptor = fn
	return nil
}

func (c *FakeContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Fetch simulates a page-initiated request. It reports whether an
// interceptor fulfilled it; otherwise the request is recorded as reaching
// the network.
func (c *FakeContext) Fetch(method, url string) (browser.Fulfillment, bool) {
	c.mu.Lock()
	fn := c.interceptor
	c.mu.Unlock()

	req := browser.Request{Method: method, URL: url}
	if fn != nil {
		if f, ok := fn(req); ok {
			return f, true
		}
	}
	c.mu.Lock()
	c.NetworkRequests = append(c.NetworkRequests, req)
	c.mu.Unlock()
	return browser.Fulfillment{}, false
}

type timedStates struct {
	after  time.Time
	states []browser.ElementState
}

// FakePage is a page whose DOM is a table of locator → element states.
type FakePage struct {
	mu       sync.Mutex
	ctx      *FakeContext
	url      string
	title    string
	content  string
	elements map[string][]timedStates

	// Hooks let tests model application behavior.
	OnGoto  func(p *FakePage, url string) error
	OnClick func(p *FakePage, loc browser.Locator) error
	OnFill  func(p *FakePage, loc browser.Locator, value string) error

	ScreenshotErr error
	SnapshotErr   error
	QueryErr      error

	Visited     []string
	Clicked     []string
	Filled      map[string]string
	Queries     int
	Screenshots int
	Closed      bool
}

// NewPage returns an empty fake page.
func NewPage() *FakePage {
	return &FakePage{
		elements: make(map[string][]timedStates),
		Filled:   make(map[string]string),
	}
}

// Context returns the context that opened this page, if any.
func (p *FakePage) Context() *FakeContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctx
}

// Set replaces the elements matching loc.
func (p *FakePage) Set(loc browser.Locator, states ...browser.ElementState) {
	p.SetAfter(loc, 0, states...)
}

// SetAfter makes loc match states once d has elapsed. Earlier entries stay
// in effect until then.
func (p *FakePage) SetAfter(loc browser.Locator, d time.Duration, states ...browser.ElementState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := loc.String()
	entry := timedStates{after: time.Now().Add(d), states: states}
	if d == 0 {
		p.elements[key] = []timedStates{entry}
		return
	}
	p.elements[key] = append(p.elements[key], entry)
}

// SetPage sets the page-level snapshot fields.
func (p *FakePage) SetPage(url, title, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url, p.title, p.content = url, title, content
}

func (p *FakePage) Goto(url string, _ time.Duration) error {
	p.mu.Lock()
	p.Visited = append(p.Visited, url)
	p.url = url
	hook := p.OnGoto
	p.mu.Unlock()
	if hook != nil {
		return hook(p, url)
	}
	return nil
}

func (p *FakePage) Query(loc browser.Locator) ([]browser.ElementState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Queries++
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}
	now := time.Now()
	var current []browser.ElementState
	for _, e := range p.elements[loc.String()] {
		if !now.Before(e.after) {
			current = e.states
		}
	}
	out := make([]browser.ElementState, len(current))
	copy(out, current)
	return out, nil
}

func (p *FakePage) Fill(loc browser.Locator, value string, _ time.Duration) error {
	p.mu.Lock()
	p.Filled[loc.String()] = value
	hook := p.OnFill
	p.mu.Unlock()
	if hook != nil {
		return hook(p, loc, value)
	}
	return nil
}

func (p *FakePage) Click(loc browser.Locator, _ time.Duration) error {
	p.mu.Lock()
	p.Clicked = append(p.Clicked, loc.String())
	hook := p.OnClick
	p.mu.Unlock()
	if hook != nil {
		return hook(p, loc)
	}
	return nil
}

func (p *FakePage) Screenshot() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	p.Screenshots++
	out := make([]byte, len(PNG))
	copy(out, PNG)
	return out, nil
}

func (p *FakePage) Snapshot() (browser.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SnapshotErr != nil {
		return browser.Snapshot{URL: p.url}, p.SnapshotErr
	}
	return browser.Snapshot{URL: p.url, Title: p.title, Content: p.content}, nil
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return errors.New("page already closed")
	}
	p.Closed = true
	return nil
}

var (
	_ browser.Context = (*FakeContext)(nil)
	_ browser.Page    = (*FakePage)(nil)
)
