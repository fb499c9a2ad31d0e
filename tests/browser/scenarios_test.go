package browser

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/spverify/internal/authseed"
	"github.com/kuitang/spverify/internal/errs"
	"github.com/kuitang/spverify/internal/routemock"
	"github.com/kuitang/spverify/internal/scenario"
	"github.com/kuitang/spverify/internal/scenarios"
	"github.com/kuitang/spverify/internal/testapp"
)

func TestMain(m *testing.M) {
	code := m.Run()
	closeSharedLauncher()
	os.Exit(code)
}

func TestQuoteSubmission_AgainstMockedAPI(t *testing.T) {
	env := SetupBrowserTestEnv(t, testapp.Options{})

	sc, err := scenarios.QuoteSubmission(env.Config())
	require.NoError(t, err)
	res := env.Run(t, sc)

	require.NoError(t, res.Err, errs.Format(res.Err))
	assert.Len(t, res.Steps, len(sc.Steps))
	assert.Empty(t, env.App.Calls(), "every API call is served by a route mock")
	assert.Zero(t, env.App.QuoteCount())

	patterns := map[string]bool{}
	for _, h := range res.MockHits {
		patterns[h.Pattern] = true
	}
	assert.True(t, patterns["**/api/auth/sp/me"])
	assert.True(t, patterns["**/api/sp/available-projects"])
	assert.True(t, patterns["**/api/quotes/submit"])

	for _, name := range []string{scenarios.QuoteFormOpenShot, scenarios.QuoteSubmittedShot} {
		info, err := os.Stat(filepath.Join(env.EvidenceDir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size())
	}
}

func TestSPInbox_AgainstFixtureBackend(t *testing.T) {
	env := SetupBrowserTestEnv(t, testapp.Options{})

	sc, err := scenarios.SPInbox(env.Config())
	require.NoError(t, err)
	res := env.Run(t, sc)

	require.NoError(t, res.Err, errs.Format(res.Err))
	assert.Contains(t, env.App.Calls(), testapp.Call{Method: http.MethodPost, Path: "/api/auth/sp/login"})
	assert.Empty(t, res.MockHits)
}

func TestSPInbox_WrongPasswordTimesOut(t *testing.T) {
	env := SetupBrowserTestEnv(t, testapp.Options{SPPassword: "something-else"})
	env.Runner.StepTimeout = failFastTimeout

	sc, err := scenarios.SPInbox(env.Config())
	require.NoError(t, err)
	res := env.Run(t, sc)

	require.Error(t, res.Err)
	assert.Equal(t, errs.AssertionTimeout, errs.CodeOf(res.Err))
	step, ok := res.FailedStep()
	require.True(t, ok)
	assert.Equal(t, 5, step.Index)

	diag, ok := errs.DiagnosticsOf(res.Err)
	require.True(t, ok)
	assert.Contains(t, diag.URL, "/sp/login")
	assert.Contains(t, diag.Content, "Invalid credentials")
}

func TestQuoteButtonMissing_FailsWithElementNotFound(t *testing.T) {
	env := SetupBrowserTestEnv(t, testapp.Options{})

	me, err := routemock.JSON(http.MethodGet, "**/api/auth/sp/me", http.StatusOK,
		map[string]string{"id": "sp-1", "name": "Plumber Joe"})
	require.NoError(t, err)
	empty, err := routemock.JSON(http.MethodGet, "**/api/sp/available-projects", http.StatusOK,
		map[string]any{"newRequests": []any{}, "sentQuotes": []any{}, "acceptedJobs": []any{}})
	require.NoError(t, err)

	sc := scenario.Scenario{
		Name:         "no-pending-requests",
		BaseURL:      env.BaseURL,
		LocalStorage: map[string]string{"token": authseed.PlaceholderToken},
		Mocks:        []routemock.Mock{me, empty},
		Steps: []scenario.Step{
			scenario.NavigateTo("/admin"),
			scenario.ExpectVisible(scenarios.JobRequestsHeading),
			scenario.ClickOn(scenarios.OpenQuoteButton).WithTimeout(failFastTimeout),
			scenario.ExpectVisible(scenarios.QuoteFormHeading),
		},
	}

	start := time.Now()
	res := env.Run(t, sc)

	require.Error(t, res.Err)
	assert.Equal(t, errs.ElementNotFound, errs.CodeOf(res.Err))
	assert.Less(t, time.Since(start), browserMaxTimeout, "a missing element never hangs past its step timeout")
	assert.Len(t, res.Steps, 3)

	diag, ok := errs.DiagnosticsOf(res.Err)
	require.True(t, ok)
	assert.Zero(t, diag.MatchCount)
	assert.FileExists(t, filepath.Join(env.EvidenceDir, "no-pending-requests-failure.png"))
}

func TestQuoteSubmission_IdempotentAcrossContexts(t *testing.T) {
	env := SetupBrowserTestEnv(t, testapp.Options{})
	sc, err := scenarios.QuoteSubmission(env.Config())
	require.NoError(t, err)

	first := env.Run(t, sc)
	second := env.Run(t, sc)
	assert.Equal(t, first.Status, second.Status)
	assert.True(t, second.Passed(), errs.Format(second.Err))
}
