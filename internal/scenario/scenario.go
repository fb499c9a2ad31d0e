// Package scenario defines verification scenarios: an ordered list of steps
// run against one browser context, plus the route mocks and init scripts that
// must be in place before the first navigation.
package scenario

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kuitang/spverify/internal/browser"
	"github.com/kuitang/spverify/internal/routemock"
)

// Kind is a step type.
type Kind string

const (
	Navigate      Kind = "navigate"
	Fill          Kind = "fill"
	Click         Kind = "click"
	AssertVisible Kind = "assert-visible"
	AssertText    Kind = "assert-text"
	Screenshot    Kind = "screenshot"
)

// Kinds lists every step kind in a stable order.
var Kinds = []Kind{Navigate, Fill, Click, AssertVisible, AssertText, Screenshot}

// Known reports whether k is a recognized step kind.
func (k Kind) Known() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsAssertion reports whether the step polls for a condition.
func (k Kind) IsAssertion() bool {
	return k == AssertVisible || k == AssertText
}

// Step is one action or assertion. Which fields apply depends on Kind.
type Step struct {
	Kind    Kind            `yaml:"kind" json:"kind"`
	URL     string          `yaml:"url,omitempty" json:"url,omitempty"`
	Target  browser.Locator `yaml:"target,omitempty" json:"target,omitempty"`
	Value   string          `yaml:"value,omitempty" json:"value,omitempty"`
	Text    string          `yaml:"text,omitempty" json:"text,omitempty"`
	Path    string          `yaml:"path,omitempty" json:"path,omitempty"`
	Timeout time.Duration   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func NavigateTo(url string) Step { return Step{Kind: Navigate, URL: url} }

func FillIn(target browser.Locator, value string) Step {
	return Step{Kind: Fill, Target: target, Value: value}
}

func ClickOn(target browser.Locator) Step { return Step{Kind: Click, Target: target} }

func ExpectVisible(target browser.Locator) Step {
	return Step{Kind: AssertVisible, Target: target}
}

// ExpectText waits until an element matching target contains text.
func ExpectText(target browser.Locator, text string) Step {
	return Step{Kind: AssertText, Target: target, Text: text}
}

func Capture(path string) Step { return Step{Kind: Screenshot, Path: path} }

// WithTimeout overrides the runner's default timeout for this step.
func (s Step) WithTimeout(d time.Duration) Step {
	s.Timeout = d
	return s
}

// Describe renders the step for logs and reports. Fill values are left to
// the caller so they can be redacted.
func (s Step) Describe() string {
	switch s.Kind {
	case Navigate:
		return fmt.Sprintf("navigate %s", s.URL)
	case Fill:
		return fmt.Sprintf("fill %s", s.Target)
	case Click:
		return fmt.Sprintf("click %s", s.Target)
	case AssertVisible:
		return fmt.Sprintf("expect visible %s", s.Target)
	case AssertText:
		return fmt.Sprintf("expect %s to contain %q", s.Target, s.Text)
	case Screenshot:
		return fmt.Sprintf("screenshot %s", s.Path)
	default:
		return string(s.Kind)
	}
}

func (s Step) validate() error {
	if !s.Kind.Known() {
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("negative timeout %s", s.Timeout)
	}
	switch s.Kind {
	case Navigate:
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("navigate requires url")
		}
	case Fill, Click, AssertVisible, AssertText:
		if err := s.Target.Validate(); err != nil {
			return fmt.Errorf("%s target: %w", s.Kind, err)
		}
		if s.Kind == AssertText && s.Text == "" {
			return fmt.Errorf("assert-text requires text")
		}
	case Screenshot:
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("screenshot requires path")
		}
	}
	return nil
}

// Scenario is a named, ordered sequence of steps.
type Scenario struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// BaseURL resolves relative navigate URLs.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	// InitScripts run in every document before page scripts.
	InitScripts []string `yaml:"init_scripts,omitempty" json:"init_scripts,omitempty"`
	// LocalStorage is seeded before the application boots.
	LocalStorage map[string]string `yaml:"local_storage,omitempty" json:"local_storage,omitempty"`
	Mocks        []routemock.Mock  `yaml:"mocks,omitempty" json:"mocks,omitempty"`
	Steps        []Step            `yaml:"steps" json:"steps"`
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidationError aggregates every problem found in a scenario.
type ValidationError struct {
	Scenario string
	Errors   []string
}

func (e *ValidationError) Error() string {
	name := e.Scenario
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("scenario %s is invalid:\n  - %s", name, strings.Join(e.Errors, "\n  - "))
}

// Validate reports every structural problem at once.
func (sc Scenario) Validate() error {
	var problems []string
	switch {
	case strings.TrimSpace(sc.Name) == "":
		problems = append(problems, "name is required")
	case !namePattern.MatchString(sc.Name):
		problems = append(problems, fmt.Sprintf("name %q may only contain letters, digits, '.', '_' and '-'", sc.Name))
	}
	if len(sc.Steps) == 0 {
		problems = append(problems, "at least one step is required")
	}
	for i, step := range sc.Steps {
		if err := step.validate(); err != nil {
			problems = append(problems, fmt.Sprintf("step %d: %v", i+1, err))
		}
	}
	for i, m := range sc.Mocks {
		if err := m.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("mock %d: %v", i+1, err))
		}
	}
	for key := range sc.LocalStorage {
		if key == "" {
			problems = append(problems, "local_storage has an empty key")
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Scenario: sc.Name, Errors: problems}
	}
	return nil
}

// HasTag reports whether the scenario carries tag.
func (sc Scenario) HasTag(tag string) bool {
	for _, t := range sc.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
