// Package browser runs the built-in scenarios in a real browser against the
// in-process fixture app. All tests use BrowserTestEnv via SetupBrowserTestEnv(t).
package browser

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	spbrowser "github.com/kuitang/spverify/internal/browser"
	"github.com/kuitang/spverify/internal/config"
	"github.com/kuitang/spverify/internal/evidence"
	"github.com/kuitang/spverify/internal/runner"
	"github.com/kuitang/spverify/internal/scenario"
	"github.com/kuitang/spverify/internal/testapp"
)

const (
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeout = 5 * time.Second

	// failFastTimeout bounds steps that are expected to fail.
	failFastTimeout = time.Second
)

var (
	launcherMu     sync.Mutex
	sharedLauncher *spbrowser.Launcher
	launchErr      error
)

// BrowserTestEnv is one fixture app plus a runner writing evidence to a temp dir.
type BrowserTestEnv struct {
	App         *testapp.App
	Server      *httptest.Server
	BaseURL     string
	EvidenceDir string
	Runner      *runner.Runner
}

// SetupBrowserTestEnv starts a fixture app and skips the test when no browser
// can be launched.
func SetupBrowserTestEnv(t *testing.T, opts testapp.Options) *BrowserTestEnv {
	t.Helper()
	initBrowser(t)

	app := testapp.New(opts)
	server := httptest.NewServer(app.Handler())
	t.Cleanup(server.Close)

	dir := t.TempDir()
	return &BrowserTestEnv{
		App:         app,
		Server:      server,
		BaseURL:     server.URL,
		EvidenceDir: dir,
		Runner: &runner.Runner{
			StepTimeout:  browserMaxTimeout,
			PollInterval: 50 * time.Millisecond,
			BaseURL:      server.URL,
			Evidence:     evidence.NewStore(dir, "browser-test", nil),
			RunID:        "browser-test",
		},
	}
}

// Config points both the dashboard and the portal at the fixture app.
func (env *BrowserTestEnv) Config() *config.Config {
	return &config.Config{
		BaseURL:    env.BaseURL,
		LoginURL:   env.BaseURL,
		SPEmail:    "test@sp.com",
		SPPassword: "password",
	}
}

// Run executes sc in a fresh browser context.
func (env *BrowserTestEnv) Run(t *testing.T, sc scenario.Scenario) runner.Result {
	t.Helper()
	var res runner.Result
	err := sharedLauncher.WithContext(func(bctx spbrowser.Context) error {
		res = env.Runner.Run(context.Background(), bctx, sc)
		return nil
	})
	if err != nil {
		t.Fatalf("browser context: %v", err)
	}
	return res
}

// initBrowser launches Chromium once per package. Skips the test if not available.
func initBrowser(t *testing.T) {
	t.Helper()

	launcherMu.Lock()
	defer launcherMu.Unlock()

	if sharedLauncher == nil && launchErr == nil {
		sharedLauncher, launchErr = spbrowser.Launch(spbrowser.Options{
			Engine:         "chromium",
			Headless:       true,
			Width:          1280,
			Height:         800,
			DefaultTimeout: browserMaxTimeout,
		})
	}
	if launchErr != nil {
		t.Skip("Playwright not available:", launchErr)
	}
}

func closeSharedLauncher() {
	launcherMu.Lock()
	defer launcherMu.Unlock()
	if sharedLauncher != nil {
		_ = sharedLauncher.Close()
		sharedLauncher = nil
	}
}
