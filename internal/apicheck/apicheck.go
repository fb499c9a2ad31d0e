// Package apicheck drives the full-stack quote flow over the HTTP API:
// a service provider signs in and onboards, a homeowner submits a project,
// and the provider's quote must show up on both sides.
package apicheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/kuitang/spverify/internal/errs"
	"github.com/kuitang/spverify/internal/logutil"
	"github.com/kuitang/spverify/internal/obs"
	"github.com/kuitang/spverify/internal/urlutil"
)

const (
	maxLoggedBody   = 200
	maxResponseBody = 1 << 20
)

// Stage names one step of the flow.
type Stage string

const (
	StageLogin         Stage = "sp-login"
	StageOnboarding    Stage = "sp-onboarding"
	StageSubmitProject Stage = "submit-project"
	StageProfile       Stage = "sp-profile"
	StageInbox         Stage = "sp-inbox"
	StageQuote         Stage = "submit-quote"
	StageProjectView   Stage = "project-view"
	StageSentQuotes    Stage = "sp-sent-quotes"
)

// Options configures a check run. Zero values take defaults.
type Options struct {
	APIURL     string
	Password   string
	RPS        float64
	HTTPClient *http.Client
	Trade      string
	Latitude   float64
	Longitude  float64
}

func (o Options) withDefaults() Options {
	if o.Password == "" {
		o.Password = "password123"
	}
	if o.RPS <= 0 {
		o.RPS = 5
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Trade == "" {
		o.Trade = "Carpenter"
	}
	if o.Latitude == 0 && o.Longitude == 0 {
		o.Latitude, o.Longitude = -26.2041, 28.0473
	}
	return o
}

// StageResult records one completed or failed stage.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail,omitempty"`
}

// Result is the outcome of one run.
type Result struct {
	SPEmail     string        `json:"sp_email"`
	UserEmail   string        `json:"user_email"`
	SPID        string        `json:"sp_id,omitempty"`
	ProjectID   string        `json:"project_id,omitempty"`
	QuoteStatus string        `json:"quote_status,omitempty"`
	Stages      []StageResult `json:"stages"`
	Err         error         `json:"-"`
}

// Passed reports whether every stage passed.
func (r Result) Passed() bool { return r.Err == nil }

type checker struct {
	opts    Options
	base    string
	limiter *rate.Limiter
	token   string
	res     *Result
}

// Run executes the flow, stopping at the first failing stage.
func Run(ctx context.Context, opts Options) Result {
	opts = opts.withDefaults()
	res := Result{
		SPEmail:   fmt.Sprintf("integration-test-sp-%s@example.com", uuid.NewString()),
		UserEmail: fmt.Sprintf("integration-test-user-%s@example.com", uuid.NewString()),
	}
	if !urlutil.ValidateBaseURL(opts.APIURL) {
		res.Err = errs.Newf(errs.InvalidArgument, "api url %q must be an absolute http(s) URL", opts.APIURL)
		return res
	}
	c := &checker{
		opts:    opts,
		base:    urlutil.NormalizeBaseURL(opts.APIURL),
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), 1),
		res:     &res,
	}

	stages := []struct {
		stage Stage
		fn    func(context.Context) (string, error)
	}{
		{StageLogin, c.login},
		{StageOnboarding, c.onboard},
		{StageSubmitProject, c.submitProject},
		{StageProfile, c.profile},
		{StageInbox, c.findInInbox},
		{StageQuote, c.submitQuote},
		{StageProjectView, c.quoteOnProject},
		{StageSentQuotes, c.quoteInSentList},
	}
	log := obs.From(ctx)
	for _, s := range stages {
		start := time.Now()
		detail, err := s.fn(ctx)
		sr := StageResult{Stage: s.stage, Passed: err == nil, Duration: time.Since(start), Detail: detail}
		if err != nil {
			sr.Detail = errs.MessageOf(err)
		}
		res.Stages = append(res.Stages, sr)
		if err != nil {
			res.Err = err
			log.Error("apicheck_stage_failed", "stage", s.stage, "code", errs.CodeOf(err), "error", err)
			return res
		}
		log.Info("apicheck_stage_passed", "stage", s.stage, "detail", detail, "duration_ms", sr.Duration.Milliseconds())
	}
	return res
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID string `json:"id"`
	} `json:"user"`
}

func (c *checker) login(ctx context.Context) (string, error) {
	var out loginResponse
	err := c.call(ctx, StageLogin, http.MethodPost, "/auth/sp/login", false, map[string]any{
		"email":     c.res.SPEmail,
		"password":  c.opts.Password,
		"latitude":  c.opts.Latitude,
		"longitude": c.opts.Longitude,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Token == "" || out.User.ID == "" {
		return "", errs.Newf(errs.FailedPrecondition, "%s: response is missing token or user id", StageLogin)
	}
	c.token = out.Token
	c.res.SPID = out.User.ID
	return "registered " + c.res.SPEmail, nil
}

func (c *checker) onboard(ctx context.Context) (string, error) {
	err := c.call(ctx, StageOnboarding, http.MethodPatch, "/sp/profile", true, map[string]any{
		"businessName": "Integrated Testing Co.",
		"bio":          "Test bio for integration testing",
		"services":     []string{c.opts.Trade},
		"latitude":     c.opts.Latitude,
		"longitude":    c.opts.Longitude,
	}, nil)
	if err != nil {
		return "", err
	}
	return "trade " + c.opts.Trade, nil
}

type projectResponse struct {
	ProjectID       string   `json:"projectId"`
	ExtractedTrades []string `json:"extractedTrades"`
}

func (c *checker) submitProject(ctx context.Context) (string, error) {
	var out projectResponse
	err := c.call(ctx, StageSubmitProject, http.MethodPost, "/submit-project", false, map[string]any{
		"userEmail":   c.res.UserEmail,
		"userName":    "Test User",
		"userPhone":   "0123456789",
		"latitude":    c.opts.Latitude,
		"longitude":   c.opts.Longitude,
		"description": "I need a custom wooden bookshelf. It should be made of oak. #Carpentry",
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ProjectID == "" {
		return "", errs.Newf(errs.FailedPrecondition, "%s: response is missing projectId", StageSubmitProject)
	}
	c.res.ProjectID = out.ProjectID
	return fmt.Sprintf("project %s trades %v", out.ProjectID, out.ExtractedTrades), nil
}

type profileResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Trades []string `json:"trades"`
}

func (c *checker) profile(ctx context.Context) (string, error) {
	var out profileResponse
	if err := c.call(ctx, StageProfile, http.MethodGet, "/auth/sp/me", true, nil, &out); err != nil {
		return "", err
	}
	return fmt.Sprintf("status %s trades %v", out.Status, out.Trades), nil
}

type projectRef struct {
	ID string `json:"id"`
}

type sentQuote struct {
	RequestID   string `json:"requestId"`
	StatusBadge string `json:"statusBadge"`
}

type availableProjects struct {
	NewRequests []projectRef `json:"newRequests"`
	SentQuotes  []sentQuote  `json:"sentQuotes"`
}

func (c *checker) findInInbox(ctx context.Context) (string, error) {
	var out availableProjects
	if err := c.call(ctx, StageInbox, http.MethodGet, "/sp/available-projects", true, nil, &out); err != nil {
		return "", err
	}
	for _, p := range out.NewRequests {
		if p.ID == c.res.ProjectID {
			return fmt.Sprintf("found among %d new requests", len(out.NewRequests)), nil
		}
	}
	return "", errs.Newf(errs.FailedPrecondition,
		"%s: project %s not found among %d new requests; trade matching may have failed",
		StageInbox, c.res.ProjectID, len(out.NewRequests))
}

func (c *checker) submitQuote(ctx context.Context) (string, error) {
	err := c.call(ctx, StageQuote, http.MethodPost, "/sp/quotes", true, map[string]any{
		"requestId": c.res.ProjectID,
		"amount":    1500,
		"proposal":  "I can build this oak bookshelf in 3 days.",
		"trade":     c.opts.Trade,
	}, nil)
	if err != nil {
		return "", err
	}
	return "quoted 1500", nil
}

type projectView struct {
	Quotes []struct {
		ServiceProviderID string `json:"serviceProviderId"`
	} `json:"quotes"`
}

func (c *checker) quoteOnProject(ctx context.Context) (string, error) {
	var out projectView
	if err := c.call(ctx, StageProjectView, http.MethodGet, "/projects/"+c.res.ProjectID, false, nil, &out); err != nil {
		return "", err
	}
	for _, q := range out.Quotes {
		if q.ServiceProviderID == c.res.SPID {
			return fmt.Sprintf("%d quote(s) on project", len(out.Quotes)), nil
		}
	}
	return "", errs.Newf(errs.FailedPrecondition, "%s: no quote from %s on project %s", StageProjectView, c.res.SPID, c.res.ProjectID)
}

func (c *checker) quoteInSentList(ctx context.Context) (string, error) {
	var out availableProjects
	if err := c.call(ctx, StageSentQuotes, http.MethodGet, "/sp/available-projects", true, nil, &out); err != nil {
		return "", err
	}
	for _, q := range out.SentQuotes {
		if q.RequestID == c.res.ProjectID {
			c.res.QuoteStatus = q.StatusBadge
			return "status " + q.StatusBadge, nil
		}
	}
	return "", errs.Newf(errs.FailedPrecondition, "%s: quote for %s not found in sent quotes", StageSentQuotes, c.res.ProjectID)
}

// call sends one paced JSON request. Authenticated calls carry the SP bearer
// token. Non-2xx responses and undecodable bodies are stage failures.
func (c *checker) call(ctx context.Context, stage Stage, method, path string, auth bool, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("%s: wait for rate limiter", stage), err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errs.Wrap(errs.Internal, fmt.Sprintf("%s: encode request", stage), err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return errs.Wrap(errs.Internal, fmt.Sprintf("%s: build request", stage), err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	client := c.opts.HTTPClient
	if auth {
		base := context.WithValue(ctx, oauth2.HTTPClient, c.opts.HTTPClient)
		client = oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"}))
	}

	obs.From(ctx).Debug("apicheck_request", "stage", stage, "method", method, "path", path, "headers", logutil.FormatHeadersForLog(req.Header))
	resp, err := client.Do(req)
	if err != nil {
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("%s: %s %s", stage, method, path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("%s: read response", stage), err)
	}
	if len(respBody) > maxResponseBody {
		return errs.Newf(errs.FailedPrecondition, "%s: %s %s response exceeds %d bytes", stage, method, path, maxResponseBody)
	}
	contentType := resp.Header.Get("Content-Type")
	excerpt := logutil.FormatBodyForLog(contentType, respBody, maxLoggedBody)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errs.Newf(errs.FailedPrecondition, "%s: %s %s returned %d: %s", stage, method, path, resp.StatusCode, excerpt)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		if !strings.Contains(contentType, "json") {
			return errs.Newf(errs.FailedPrecondition, "%s: non-JSON response from %s (status %d): %s", stage, path, resp.StatusCode, excerpt)
		}
		return errs.Wrap(errs.FailedPrecondition, fmt.Sprintf("%s: decode response", stage), err)
	}
	return nil
}
