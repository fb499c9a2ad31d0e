// Package scenarios holds the built-in verification flows for the SP admin
// dashboard and portal.
package scenarios

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/kuitang/spverify/internal/authseed"
	"github.com/kuitang/spverify/internal/browser"
	"github.com/kuitang/spverify/internal/config"
	"github.com/kuitang/spverify/internal/routemock"
	"github.com/kuitang/spverify/internal/scenario"
)

const (
	QuoteSubmissionName = "quote-submission"
	SPInboxName         = "sp-inbox"

	// Evidence file names written by the quote flow.
	QuoteFormOpenShot  = "quote_form_open.png"
	QuoteSubmittedShot = "quote_submitted.png"

	BidAmount    = "150"
	QuoteDetails = "I will fix the faucet with premium parts."
)

// Locators shared with tests that drive the same DOM.
var (
	JobRequestsHeading = browser.CSS("h1").Filter("Job Requests")
	PendingRequest     = browser.Text("Fix leaking faucet")
	OpenQuoteButton    = browser.Role("button", "Submit Quote")
	QuoteFormHeading   = browser.CSS("h2").Filter("Submit Quote")
	RequestDetails     = browser.Text("Request Details")
	BidAmountField     = browser.Label("Bid Amount ($)")
	QuoteDetailsField  = browser.Label("Quote Details")

	// The form's own button; the job card button shares its name.
	SubmitQuoteButton = browser.Role("button", "Submit Quote").In(browser.CSS("form"))
	SuccessToast      = browser.Text("Quote Submitted Successfully!")

	EmailField    = browser.CSS("input[name='email']")
	PasswordField = browser.CSS("input[name='password']")
	LoginButton   = browser.CSS("button[type='submit']")
	AdminBanner   = browser.Text("SP Admin")
	InboxTab      = browser.CSS("button").Filter("Inbox")
	InboxHeading  = browser.CSS("h1").Filter("Inbox")
)

// QuoteMocks are the endpoints the dashboard calls during the quote flow.
func QuoteMocks() ([]routemock.Mock, error) {
	specs := []struct {
		method, pattern string
		status          int
		body            any
	}{
		{http.MethodGet, "**/api/auth/sp/me", http.StatusOK, joe},
		{http.MethodGet, "**/api/sp/available-projects", http.StatusOK, pendingProjects(leakingFaucet)},
		{http.MethodPost, "**/api/quotes/submit", http.StatusCreated, quoteAccepted},
	}
	mocks := make([]routemock.Mock, 0, len(specs))
	for _, s := range specs {
		m, err := routemock.JSON(s.method, s.pattern, s.status, s.body)
		if err != nil {
			return nil, err
		}
		mocks = append(mocks, m)
	}
	return mocks, nil
}

// QuoteSubmission opens the pending job request from the dashboard, submits a
// quote for it, and waits for the confirmation toast. All API calls are mocked
// and the session token is seeded before the app boots.
func QuoteSubmission(cfg *config.Config) (scenario.Scenario, error) {
	mocks, err := QuoteMocks()
	if err != nil {
		return scenario.Scenario{}, err
	}
	token, err := authseed.Resolve(cfg.Token, cfg.TokenSecret,
		authseed.ServiceProvider(joe.ID, joe.Email, joe.Name, time.Now()))
	if err != nil {
		return scenario.Scenario{}, fmt.Errorf("seed session token: %w", err)
	}

	return scenario.Scenario{
		Name:         QuoteSubmissionName,
		Description:  "Open the quote form for a pending request and submit a bid",
		Tags:         []string{"admin", "mocked"},
		BaseURL:      cfg.BaseURL,
		LocalStorage: map[string]string{"token": token},
		Mocks:        mocks,
		Steps: []scenario.Step{
			scenario.NavigateTo("/admin"),
			scenario.ExpectVisible(JobRequestsHeading),
			scenario.ExpectVisible(PendingRequest),
			scenario.ClickOn(OpenQuoteButton),
			scenario.ExpectVisible(QuoteFormHeading),
			scenario.ExpectVisible(RequestDetails),
			scenario.Capture(QuoteFormOpenShot),
			scenario.FillIn(BidAmountField, BidAmount),
			scenario.FillIn(QuoteDetailsField, QuoteDetails),
			scenario.ClickOn(SubmitQuoteButton),
			scenario.ExpectVisible(SuccessToast),
			scenario.Capture(QuoteSubmittedShot),
		},
	}, nil
}

// SPInbox signs in through the portal and opens the inbox tab. It talks to
// the real backend.
func SPInbox(cfg *config.Config) (scenario.Scenario, error) {
	return scenario.Scenario{
		Name:        SPInboxName,
		Description: "Sign in to the SP portal and open the inbox",
		Tags:        []string{"portal", "live"},
		BaseURL:     cfg.LoginURL,
		Steps: []scenario.Step{
			scenario.NavigateTo("/sp/login"),
			scenario.FillIn(EmailField, cfg.SPEmail),
			scenario.FillIn(PasswordField, cfg.SPPassword),
			scenario.ClickOn(LoginButton),
			scenario.ExpectVisible(AdminBanner),
			scenario.ClickOn(InboxTab),
			scenario.ExpectVisible(InboxHeading),
		},
	}, nil
}

// Builder constructs a built-in scenario from configuration.
type Builder func(cfg *config.Config) (scenario.Scenario, error)

// Entry describes a registered built-in.
type Entry struct {
	Name        string
	Description string
	Build       Builder
}

var registry = map[string]Entry{
	QuoteSubmissionName: {
		Name:        QuoteSubmissionName,
		Description: "Dashboard quote submission against mocked API responses",
		Build:       QuoteSubmission,
	},
	SPInboxName: {
		Name:        SPInboxName,
		Description: "Portal login and inbox navigation against the live backend",
		Build:       SPInbox,
	},
}

// Names returns the registered built-in names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns every registered built-in in name order.
func Entries() []Entry {
	out := make([]Entry, 0, len(registry))
	for _, name := range Names() {
		out = append(out, registry[name])
	}
	return out
}

// Build constructs the named built-in.
func Build(name string, cfg *config.Config) (scenario.Scenario, error) {
	e, ok := registry[name]
	if !ok {
		return scenario.Scenario{}, fmt.Errorf("unknown scenario %q (available: %v)", name, Names())
	}
	return e.Build(cfg)
}

// All builds every registered built-in in name order.
func All(cfg *config.Config) ([]scenario.Scenario, error) {
	var out []scenario.Scenario
	for _, name := range Names() {
		sc, err := Build(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		out = append(out, sc)
	}
	return out, nil
}
