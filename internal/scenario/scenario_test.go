package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/spverify/internal/browser"
)

func validScenario() Scenario {
	return Scenario{
		Name:    "inbox",
		BaseURL: "http://localhost:5173",
		Steps: []Step{
			NavigateTo("/sp/login"),
			FillIn(browser.CSS("input[name='email']"), "test@sp.com"),
			ClickOn(browser.CSS("button[type='submit']")),
			ExpectVisible(browser.Text("SP Admin")),
			ExpectText(browser.CSS("h1"), "Inbox"),
			Capture("inbox.png"),
		},
	}
}

func TestValidate_AcceptsWellFormedScenario(t *testing.T) {
	t.Parallel()
	require.NoError(t, validScenario().Validate())
}

func TestValidate_AggregatesProblems(t *testing.T) {
	t.Parallel()
	sc := Scenario{
		Steps: []Step{
			{Kind: "hover"},
			NavigateTo("/relative"),
			ClickOn(browser.Locator{}),
			ExpectText(browser.CSS("h1"), ""),
			Capture("x.png").WithTimeout(-time.Second),
		},
	}
	err := sc.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	joined := verr.Error()
	assert.Contains(t, joined, "<unnamed>")
	assert.Contains(t, joined, "name is required")
	assert.Contains(t, joined, `unknown kind "hover"`)
	assert.NotContains(t, joined, "needs base_url", "relative urls resolve against the runner base at run time")
	assert.Contains(t, joined, "no strategy")
	assert.Contains(t, joined, "assert-text requires text")
	assert.Contains(t, joined, "negative timeout")
}

func TestValidate_RejectsEmptySteps(t *testing.T) {
	t.Parallel()
	err := Scenario{Name: "empty"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one step")
}

func testValidate_NamePattern(t *rapid.T) {
	name := rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9_.-]{0,20}`).Draw(t, "name")
	sc := validScenario()
	sc.Name = name
	if err := sc.Validate(); err != nil {
		t.Fatalf("name %q rejected: %v", name, err)
	}
	sc.Name = name + " with space"
	if err := sc.Validate(); err == nil {
		t.Fatalf("name %q accepted", sc.Name)
	}
}

func TestValidate_NamePattern(t *testing.T) {
	rapid.Check(t, testValidate_NamePattern)
}

func TestStep_Describe(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "navigate /admin", NavigateTo("/admin").Describe())
	assert.Equal(t, `fill label "Bid Amount ($)"`, FillIn(browser.Label("Bid Amount ($)"), "150").Describe())
	assert.Equal(t, `expect css "h1" to contain "Inbox"`, ExpectText(browser.CSS("h1"), "Inbox").Describe())
	assert.Equal(t, "screenshot a.png", Capture("a.png").Describe())
}

const singleYAML = `
name: quote-form
description: open and submit a quote
tags: [admin]
base_url: http://localhost:3000
local_storage:
  token: fake-jwt-token
mocks:
  - pattern: "**/api/auth/sp/me"
    body_json:
      id: sp-1
      name: Plumber Joe
  - pattern: "**/api/quotes/submit"
    method: post
    status: 201
    body: '{"message":"ok"}'
steps:
  - kind: navigate
    url: /admin
  - kind: assert-visible
    target:
      css: h1
      has_text: Job Requests
  - kind: click
    target:
      role: button
      name: Submit Quote
      within:
        css: form
    timeout: 2s
  - kind: screenshot
    path: quote_form_open.png
`

func TestParse_SingleScenario(t *testing.T) {
	t.Parallel()
	scenarios, err := Parse([]byte(singleYAML))
	require.NoError(t, err)
	require.Len(t, scenarios, 1)

	sc := scenarios[0]
	assert.Equal(t, "quote-form", sc.Name)
	assert.True(t, sc.HasTag("admin"))
	assert.Equal(t, "fake-jwt-token", sc.LocalStorage["token"])

	require.Len(t, sc.Mocks, 2)
	assert.JSONEq(t, `{"id":"sp-1","name":"Plumber Joe"}`, sc.Mocks[0].Body)
	assert.Equal(t, 200, sc.Mocks[0].Status)
	assert.Equal(t, "POST", sc.Mocks[1].Method)
	assert.Equal(t, 201, sc.Mocks[1].Status)

	require.Len(t, sc.Steps, 4)
	assert.Equal(t, AssertVisible, sc.Steps[1].Kind)
	assert.Equal(t, "Job Requests", sc.Steps[1].Target.HasText)
	click := sc.Steps[2]
	assert.Equal(t, 2*time.Second, click.Timeout)
	require.NotNil(t, click.Target.Within)
	assert.Equal(t, "form", click.Target.Within.CSS)
}

func TestParse_ScenarioList(t *testing.T) {
	t.Parallel()
	data := []byte(`
scenarios:
  - name: one
    steps:
      - {kind: navigate, url: "http://a.test/"}
  - name: two
    steps:
      - {kind: navigate, url: "http://b.test/"}
`)
	scenarios, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "one", scenarios[0].Name)
	assert.Equal(t, "two", scenarios[1].Name)
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"empty":         "",
		"unknown field": "name: x\nstepz: []\n",
		"duplicate":     "scenarios:\n  - {name: a, steps: [{kind: navigate, url: 'http://x/'}]}\n  - {name: a, steps: [{kind: navigate, url: 'http://x/'}]}\n",
		"mixed":         "name: a\nsteps: [{kind: navigate, url: 'http://x/'}]\nscenarios:\n  - {name: b, steps: [{kind: navigate, url: 'http://x/'}]}\n",
		"invalid":       "name: a\nsteps: [{kind: click}]\n",
		"both bodies":   "name: a\nmocks: [{pattern: '**/x', body: '{}', body_json: {a: 1}}]\nsteps: [{kind: navigate, url: 'http://x/'}]\n",
	}
	for name, data := range cases {
		_, err := Parse([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestLoadDir_SortedAndUnique(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("b.yaml", "name: second\nsteps: [{kind: navigate, url: 'http://x/'}]\n")
	write("a.yml", "name: first\nsteps: [{kind: navigate, url: 'http://x/'}]\n")
	write("notes.txt", "ignored")

	scenarios, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "first", scenarios[0].Name)
	assert.Equal(t, "second", scenarios[1].Name)

	write("c.yaml", "name: first\nsteps: [{kind: navigate, url: 'http://x/'}]\n")
	_, err = LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined in both")
}

func TestLoadFile_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
