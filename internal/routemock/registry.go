// Package routemock substitutes canned responses for outgoing browser requests.
//
// A Registry is an ordered interceptor table of pattern → response. It is
// installed once per browser context, before the first navigation. The first
// registered mock that matches a request wins; unmatched requests continue to
// the real network so omissions surface as real failures.
package routemock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/spverify/internal/browser"
	"github.com/kuitang/spverify/internal/errs"
	"github.com/kuitang/spverify/internal/logutil"
	"github.com/kuitang/spverify/internal/obs"
)

const defaultContentType = "application/json"

// Mock is one (URL pattern, fixed response) rule.
type Mock struct {
	Pattern     string            `yaml:"pattern" json:"pattern"`
	Method      string            `yaml:"method,omitempty" json:"method,omitempty"`
	Status      int               `yaml:"status,omitempty" json:"status,omitempty"`
	ContentType string            `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body        string            `yaml:"body,omitempty" json:"body,omitempty"`
	// BodyJSON is encoded into Body when set. Scenario files use it to keep
	// payloads readable.
	BodyJSON any `yaml:"body_json,omitempty" json:"-"`
}

// JSON builds a mock whose body is v encoded as JSON.
func JSON(method, pattern string, status int, v any) (Mock, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Mock{}, fmt.Errorf("encode mock body for %s: %w", pattern, err)
	}
	return Mock{
		Pattern:     pattern,
		Method:      method,
		Status:      status,
		ContentType: defaultContentType,
		Body:        string(body),
	}, nil
}

// Normalize fills defaults and encodes BodyJSON.
func (m Mock) Normalize() (Mock, error) {
	m.Pattern = strings.TrimSpace(m.Pattern)
	m.Method = strings.ToUpper(strings.TrimSpace(m.Method))
	if m.Status == 0 {
		m.Status = http.StatusOK
	}
	if m.ContentType == "" {
		m.ContentType = defaultContentType
	}
	if m.BodyJSON != nil {
		if m.Body != "" {
			return m, fmt.Errorf("mock %s sets both body and body_json", m.Pattern)
		}
		body, err := json.Marshal(m.BodyJSON)
		if err != nil {
			return m, fmt.Errorf("encode body_json for %s: %w", m.Pattern, err)
		}
		m.Body = string(body)
		m.BodyJSON = nil
	}
	return m, nil
}

// Validate checks the mock can be registered.
func (m Mock) Validate() error {
	if strings.TrimSpace(m.Pattern) == "" {
		return fmt.Errorf("mock pattern is required")
	}
	if m.Status != 0 && (m.Status < 100 || m.Status > 599) {
		return fmt.Errorf("mock %s has invalid status %d", m.Pattern, m.Status)
	}
	if _, err := compileGlob(m.Pattern); err != nil {
		return fmt.Errorf("mock %s has invalid pattern: %w", m.Pattern, err)
	}
	return nil
}

func (m Mock) String() string {
	method := m.Method
	if method == "" {
		method = "*"
	}
	return fmt.Sprintf("%s %s -> %d", method, m.Pattern, m.Status)
}

// Hit records a request that was fulfilled by a mock.
type Hit struct {
	Pattern string    `json:"pattern"`
	Method  string    `json:"method"`
	URL     string    `json:"url"`
	Status  int       `json:"status"`
	At      time.Time `json:"at"`
}

type entry struct {
	mock Mock
	re   *regexp.Regexp
}

// Registry is the ordered interceptor table for one browser context.
// Interceptors run on the driver's goroutine, so access is guarded.
type Registry struct {
	mu        sync.Mutex
	entries   []entry
	installed bool
	hits      []Hit
	passed    int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register appends m to the table. Registration after Install is rejected:
// mocks must exist before the navigation that triggers them.
func (r *Registry) Register(m Mock) error {
	if err := m.Validate(); err != nil {
		return errs.Wrap(errs.InvalidArgument, "register route mock", err)
	}
	m, err := m.Normalize()
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "register route mock", err)
	}
	re, err := compileGlob(m.Pattern)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "register route mock", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.installed {
		return errs.Newf(errs.FailedPrecondition, "route mock %s registered after install", m.Pattern)
	}
	r.entries = append(r.entries, entry{mock: m, re: re})
	return nil
}

// Match returns the first registered mock matching method and url.
func (r *Registry) Match(method, url string) (Mock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchLocked(method, url)
}

func (r *Registry) matchLocked(method, url string) (Mock, bool) {
	method = strings.ToUpper(method)
	for _, e := range r.entries {
		if e.mock.Method != "" && e.mock.Method != method {
			continue
		}
		if e.re.MatchString(url) {
			return e.mock, true
		}
	}
	return Mock{}, false
}

// Intercept is the browser.InterceptFunc backed by this registry.
func (r *Registry) Intercept(req browser.Request) (browser.Fulfillment, bool) {
	r.mu.Lock()
	m, ok := r.matchLocked(req.Method, req.URL)
	if !ok {
		r.passed++
		r.mu.Unlock()
		return browser.Fulfillment{}, false
	}
	r.hits = append(r.hits, Hit{
		Pattern: m.Pattern,
		Method:  strings.ToUpper(req.Method),
		URL:     logutil.RedactURL(req.URL),
		Status:  m.Status,
		At:      time.Now(),
	})
	r.mu.Unlock()

	obs.Pkg("routemock").Debug("route_fulfilled", "pattern", m.Pattern, "method", req.Method, "url", logutil.RedactURL(req.URL), "status", m.Status)

	headers := make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		headers[k] = v
	}
	return browser.Fulfillment{
		Status:      m.Status,
		ContentType: m.ContentType,
		Headers:     headers,
		Body:        []byte(m.Body),
	}, true
}

// Install attaches the table to c. It may be called once.
func (r *Registry) Install(c browser.Context) error {
	r.mu.Lock()
	if r.installed {
		r.mu.Unlock()
		return errs.New(errs.FailedPrecondition, "route mocks already installed")
	}
	r.installed = true
	empty := len(r.entries) == 0
	r.mu.Unlock()

	if empty {
		return nil
	}
	if err := c.Intercept(r.Intercept); err != nil {
		return errs.Wrap(errs.Internal, "install route mocks", err)
	}
	return nil
}

// Hits returns a copy of every fulfilled request, in order.
func (r *Registry) Hits() []Hit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Hit, len(r.hits))
	copy(out, r.hits)
	return out
}

// PassedThrough returns how many requests no mock matched.
func (r *Registry) PassedThrough() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passed
}

// Mocks returns the registered mocks in order.
func (r *Registry) Mocks() []Mock {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Mock, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.mock
	}
	return out
}
