// Package testapp serves a small stand-in for the SP admin dashboard and
// portal. It renders the same headings, labels and buttons the built-in
// scenarios look for and backs them with an in-memory API.
package testapp

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kuitang/spverify/internal/obs"
)

//go:embed pages/*.html
var pageFS embed.FS

var pages = template.Must(template.ParseFS(pageFS, "pages/*.html"))

// Job is one pending request shown on the dashboard.
type Job struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Requester   string `json:"requester"`
}

// Options configures the fixture app.
type Options struct {
	SPEmail    string
	SPPassword string
	SPName     string
	Pending    []Job
}

// Call records one API request that reached the app.
type Call struct {
	Method string
	Path   string
}

// App is the fixture application.
type App struct {
	opts Options

	mu     sync.Mutex
	tokens map[string]bool
	quotes []quote
	calls  []Call
}

type quote struct {
	RequestID string `json:"requestId"`
	Amount    string `json:"amount"`
	Details   string `json:"details"`
}

// New returns an app with the given options. Empty credentials fall back to
// test@sp.com / password.
func New(opts Options) *App {
	if opts.SPEmail == "" {
		opts.SPEmail = "test@sp.com"
	}
	if opts.SPPassword == "" {
		opts.SPPassword = "password"
	}
	if opts.SPName == "" {
		opts.SPName = "Test Provider"
	}
	return &App{opts: opts, tokens: map[string]bool{}}
}

// Handler returns the app's routes wrapped in access logging. API requests
// are recorded for Calls.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return obs.AccessLog("testapp", mux, a.observe)
}

// RegisterRoutes registers page and API routes on mux.
func (a *App) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin", a.page("admin.html"))
	mux.HandleFunc("GET /sp/login", a.page("login.html"))
	mux.HandleFunc("GET /sp/dashboard", a.page("dashboard.html"))

	mux.HandleFunc("POST /api/auth/sp/login", a.handleLogin)
	mux.HandleFunc("GET /api/auth/sp/me", a.authed(a.handleMe))
	mux.HandleFunc("GET /api/sp/available-projects", a.authed(a.handleAvailable))
	mux.HandleFunc("POST /api/quotes/submit", a.authed(a.handleSubmitQuote))
}

// Calls returns the API requests served so far. Page loads are not included.
func (a *App) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// QuoteCount returns the number of quotes submitted to the app.
func (a *App) QuoteCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.quotes)
}

// IssueToken returns a token the API accepts, for seeding a session directly.
func (a *App) IssueToken() string {
	token := uuid.NewString()
	a.mu.Lock()
	a.tokens[token] = true
	a.mu.Unlock()
	return token
}

func (a *App) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pages.ExecuteTemplate(w, name, a.opts); err != nil {
			obs.From(r.Context()).Error("testapp_render_failed", "page", name, "error", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
		}
	}
}

// observe records API requests from the access log.
func (a *App) observe(e obs.AccessEntry) {
	if !strings.HasPrefix(e.Path, "/api/") {
		return
	}
	a.mu.Lock()
	a.calls = append(a.calls, Call{Method: e.Method, Path: e.Path})
	a.mu.Unlock()
}

func (a *App) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		a.mu.Lock()
		valid := ok && a.tokens[token]
		a.mu.Unlock()
		if !valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if body.Email != a.opts.SPEmail || body.Password != a.opts.SPPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": a.IssueToken(),
		"user":  map[string]string{"id": "sp-1", "email": a.opts.SPEmail, "name": a.opts.SPName},
	})
}

func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     "sp-1",
		"name":   a.opts.SPName,
		"email":  a.opts.SPEmail,
		"status": "ACTIVE",
	})
}

func (a *App) handleAvailable(w http.ResponseWriter, r *http.Request) {
	type request struct {
		ID          string            `json:"id"`
		Description string            `json:"description"`
		User        map[string]string `json:"user"`
	}
	out := make([]request, 0, len(a.opts.Pending))
	for _, j := range a.opts.Pending {
		out = append(out, request{ID: j.ID, Description: j.Description, User: map[string]string{"name": j.Requester}})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"newRequests":  out,
		"sentQuotes":   []any{},
		"acceptedJobs": []any{},
	})
}

func (a *App) handleSubmitQuote(w http.ResponseWriter, r *http.Request) {
	var q quote
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil || q.RequestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid quote"})
		return
	}
	a.mu.Lock()
	a.quotes = append(a.quotes, q)
	id := len(a.quotes)
	a.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Quote submitted successfully",
		"quote":   map[string]any{"id": id},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
