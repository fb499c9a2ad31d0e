package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/spverify/internal/errs"
	"github.com/kuitang/spverify/internal/evidence"
	"github.com/kuitang/spverify/internal/routemock"
	"github.com/kuitang/spverify/internal/runner"
	"github.com/kuitang/spverify/internal/scenario"
	"github.com/kuitang/spverify/internal/suite"
)

func mixedReport() suite.Report {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	timeout := errs.WithDiagnostics(
		errs.New(errs.AssertionTimeout, `timed out after 5s waiting for text "SP Admin" to be visible`),
		errs.Diagnostics{
			Locator: `text "SP Admin"`,
			URL:     "http://localhost:5173/sp/login",
			Title:   "Login",
		},
	)
	return suite.Report{
		RunID:    "run-golden",
		Started:  started,
		Duration: 1234567891 * time.Nanosecond,
		Results: []runner.Result{
			{
				Scenario:   "quote-submission",
				RunID:      "run-golden",
				Status:     runner.Passed,
				TotalSteps: 2,
				Steps: []runner.StepResult{
					{Index: 1, Kind: scenario.Navigate, Description: "navigate http://localhost:3000/admin", Status: runner.Passed, Duration: 12345678 * time.Nanosecond},
					{Index: 2, Kind: scenario.Screenshot, Description: "screenshot quote_form_open.png", Status: runner.Passed, Duration: 3 * time.Millisecond},
				},
				Evidence: []evidence.Artifact{{
					Scenario: "quote-submission",
					Name:     "quote_form_open.png",
					Path:     "verification/quote_form_open.png",
					Mirrored: "s3://evidence/run-golden/quote-submission/quote_form_open.png",
				}},
				MockHits: []routemock.Hit{
					{Pattern: "**/api/auth/sp/me", Method: "GET", URL: "http://localhost:3000/api/auth/sp/me", Status: 200, At: started},
					{Pattern: "**/api/sp/available-projects", Method: "GET", URL: "http://localhost:3000/api/sp/available-projects", Status: 200, At: started},
				},
				PassedThrough: 1,
				Started:       started,
				Duration:      800 * time.Millisecond,
			},
			{
				Scenario:   "sp-inbox",
				RunID:      "run-golden",
				Status:     runner.Failed,
				TotalSteps: 3,
				Steps: []runner.StepResult{
					{Index: 1, Kind: scenario.Navigate, Description: "navigate http://localhost:5173/sp/login", Status: runner.Passed, Duration: 20 * time.Millisecond},
					{Index: 2, Kind: scenario.AssertVisible, Description: `expect visible text "SP Admin"`, Status: runner.Failed, Duration: 5 * time.Second, Err: timeout},
				},
				Err: timeout,
				Evidence: []evidence.Artifact{{
					Scenario: "sp-inbox",
					Name:     "sp-inbox-failure.png",
					Path:     "verification/sp-inbox-failure.png",
				}},
				Started:  started,
				Duration: 5020 * time.Millisecond,
			},
		},
	}
}

func TestMarkdown_Golden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "mixed_report", Markdown(mixedReport()))
}

func TestMarkdown_Empty(t *testing.T) {
	t.Parallel()
	md := string(Markdown(suite.Report{RunID: "r"}))
	assert.Contains(t, md, "**Result: PASS** (0 passed, 0 failed)")
	assert.Contains(t, md, "No scenarios were run.")
}

func TestMarkdown_FencedContentCannotEscape(t *testing.T) {
	t.Parallel()
	r := mixedReport()
	r.Results[1].Err = errs.WithDiagnostics(r.Results[1].Err, errs.Diagnostics{Content: "```\n# injected"})
	md := string(Markdown(r))
	assert.NotContains(t, md, "```\n# injected")
}

func TestHTML_SanitizesPageText(t *testing.T) {
	t.Parallel()
	r := mixedReport()
	r.Results[0].Steps[0].Description = `navigate <img src=x onerror=alert(1)>`
	r.Results[1].Err = errs.New(errs.AssertionTimeout, "<script>alert(1)</script>")

	out, err := HTML(r)
	require.NoError(t, err)
	page := string(out)
	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "spverify run-golden: FAIL")
	assert.NotContains(t, page, "onerror")
	assert.NotContains(t, page, "<script>")
}

func TestJSON_CarriesErrorsAndDiagnostics(t *testing.T) {
	t.Parallel()
	data, err := JSON(mixedReport())
	require.NoError(t, err)

	var decoded struct {
		RunID   string `json:"run_id"`
		Passed  bool   `json:"passed"`
		Results []struct {
			Scenario    string `json:"scenario"`
			Status      string `json:"status"`
			Code        string `json:"code"`
			Error       string `json:"error"`
			Diagnostics *struct {
				URL string `json:"URL"`
			} `json:"diagnostics"`
			Steps []struct {
				Index int    `json:"index"`
				Error string `json:"error"`
			} `json:"steps"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-golden", decoded.RunID)
	assert.False(t, decoded.Passed)
	require.Len(t, decoded.Results, 2)
	assert.Empty(t, decoded.Results[0].Error)
	assert.Equal(t, "failed", decoded.Results[1].Status)
	assert.Equal(t, "assertion_timeout", decoded.Results[1].Code)
	require.NotNil(t, decoded.Results[1].Diagnostics)
	assert.Equal(t, "http://localhost:5173/sp/login", decoded.Results[1].Diagnostics.URL)
	require.Len(t, decoded.Results[1].Steps, 2)
	assert.Contains(t, decoded.Results[1].Steps[1].Error, "SP Admin")
}

func TestWriteFiles(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteFiles(dir, mixedReport())
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, name := range []string{MarkdownFile, HTMLFile, JSONFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}
