// Package browser is the narrow surface spverify needs from a browser
// automation engine, with a Playwright-backed implementation.
//
// A Launcher owns the process-wide driver and browser. Each scenario gets its
// own Context (cookies, storage, interceptors) and closes it when done.
package browser

import (
	"encoding/json"
	"fmt"
	"time"
)

// ElementState is what one matched element looked like when queried.
type ElementState struct {
	Visible  bool
	Enabled  bool
	Editable bool
	Text     string
}

func (s ElementState) String() string {
	return fmt.Sprintf("visible=%t enabled=%t editable=%t text=%q", s.Visible, s.Enabled, s.Editable, s.Text)
}

// Snapshot is the page-level state captured for diagnostics.
type Snapshot struct {
	URL     string
	Title   string
	Content string
}

// Request is an outgoing request seen by an interceptor.
type Request struct {
	Method string
	URL    string
}

// Fulfillment is a canned response returned instead of contacting the network.
type Fulfillment struct {
	Status      int
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// InterceptFunc decides whether to fulfill a request. Returning false lets the
// request continue to the network.
type InterceptFunc func(Request) (Fulfillment, bool)

// Page is a single tab inside a Context.
type Page interface {
	Goto(url string, timeout time.Duration) error
	// Query returns the state of every element currently matching loc.
	Query(loc Locator) ([]ElementState, error)
	Fill(loc Locator, value string, timeout time.Duration) error
	Click(loc Locator, timeout time.Duration) error
	Screenshot() ([]byte, error)
	Snapshot() (Snapshot, error)
	Close() error
}

// Context is an isolated browser session owned by one scenario.
type Context interface {
	NewPage() (Page, error)
	// AddInitScript runs script in every document before page scripts.
	AddInitScript(script string) error
	// Intercept installs fn for every request made by pages of this context.
	Intercept(fn InterceptFunc) error
	Close() error
}

// LocalStorageScript returns an init script that seeds localStorage with
// entries before the application boots. Keys are written in sorted order.
func LocalStorageScript(entries map[string]string) (string, error) {
	payload, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode localStorage entries: %w", err)
	}
	return fmt.Sprintf(`(() => {
  const entries = %s;
  try {
    for (const key of Object.keys(entries).sort()) {
      window.localStorage.setItem(key, entries[key]);
    }
  } catch (e) {
    // about:blank and opaque origins have no storage.
  }
})();`, payload), nil
}
