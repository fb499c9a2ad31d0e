package testapp

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startApp(t *testing.T, opts Options) (*App, *httptest.Server) {
	t.Helper()
	app := New(opts)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return app, srv
}

func do(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestPages_ExposeDOMContract(t *testing.T) {
	t.Parallel()
	_, srv := startApp(t, Options{})

	cases := map[string][]string{
		"/admin": {
			"<h1>Job Requests</h1>",
			`<h2 id="modal-title">Submit Quote</h2>`,
			"Request Details",
			`<label for="bid">Bid Amount ($)</label>`,
			`<label for="details">Quote Details</label>`,
			"Quote Submitted Successfully!",
		},
		"/sp/login": {
			`name="email"`,
			`name="password"`,
			`<button type="submit">`,
		},
		"/sp/dashboard": {
			"SP Admin",
			`data-tab="inbox">Inbox</button>`,
			"<h1>Inbox</h1>",
		},
	}
	for path, wants := range cases {
		resp, body := do(t, http.MethodGet, srv.URL+path, "", "")
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		for _, want := range wants {
			assert.Contains(t, string(body), want, path)
		}
	}
}

func TestLogin_IssuesUsableToken(t *testing.T) {
	t.Parallel()
	app, srv := startApp(t, Options{SPEmail: "sp@example.com", SPPassword: "hunter22"})

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/auth/sp/login", "", `{"email":"sp@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/auth/sp/login", "", `{"email":"sp@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &login))
	require.NotEmpty(t, login.Token)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/auth/sp/me", login.Token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ACTIVE"`)

	assert.Equal(t, []Call{
		{Method: http.MethodPost, Path: "/api/auth/sp/login"},
		{Method: http.MethodPost, Path: "/api/auth/sp/login"},
		{Method: http.MethodGet, Path: "/api/auth/sp/me"},
	}, app.Calls())
}

func TestAPI_RejectsMissingToken(t *testing.T) {
	t.Parallel()
	_, srv := startApp(t, Options{})
	for _, path := range []string{"/api/auth/sp/me", "/api/sp/available-projects"} {
		resp, _ := do(t, http.MethodGet, srv.URL+path, "fake-jwt-token", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestAvailableProjects_AndQuoteSubmission(t *testing.T) {
	t.Parallel()
	app, srv := startApp(t, Options{Pending: []Job{{ID: "req-9", Description: "Paint fence", Requester: "Ann"}}})
	token := app.IssueToken()

	resp, body := do(t, http.MethodGet, srv.URL+"/api/sp/available-projects", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t,
		`{"newRequests":[{"id":"req-9","description":"Paint fence","user":{"name":"Ann"}}],"sentQuotes":[],"acceptedJobs":[]}`,
		string(body))

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/quotes/submit", token, `{"amount":"150"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/quotes/submit", token, `{"requestId":"req-9","amount":"150","details":"ok"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, string(body), "Quote submitted successfully")
	assert.Equal(t, 1, app.QuoteCount())
}

func TestAvailableProjects_EmptyListIsArray(t *testing.T) {
	t.Parallel()
	app, srv := startApp(t, Options{})
	_, body := do(t, http.MethodGet, srv.URL+"/api/sp/available-projects", app.IssueToken(), "")
	assert.Contains(t, string(body), `"newRequests":[]`)
}
