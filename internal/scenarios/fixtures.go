package scenarios

// Payloads returned by the mocked SP API in the quote submission flow.

// Profile is the body of GET /api/auth/sp/me.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// RequestUser is the requester shown on a job card.
type RequestUser struct {
	Name string `json:"name"`
}

// JobRequest is one entry in newRequests.
type JobRequest struct {
	ID             string      `json:"id"`
	Description    string      `json:"description"`
	RequiredTrades []string    `json:"requiredTrades"`
	Status         string      `json:"status"`
	Latitude       float64     `json:"latitude"`
	Longitude      float64     `json:"longitude"`
	User           RequestUser `json:"user"`
}

// AvailableProjects is the body of GET /api/sp/available-projects.
type AvailableProjects struct {
	NewRequests  []JobRequest `json:"newRequests"`
	SentQuotes   []any        `json:"sentQuotes"`
	AcceptedJobs []any        `json:"acceptedJobs"`
}

// QuoteRef identifies a created quote.
type QuoteRef struct {
	ID string `json:"id"`
}

// QuoteSubmitted is the 201 body of POST /api/quotes/submit.
type QuoteSubmitted struct {
	Message string   `json:"message"`
	Quote   QuoteRef `json:"quote"`
}

var (
	joe = Profile{
		ID:     "sp-1",
		Name:   "Plumber Joe",
		Email:  "joe@plumber.com",
		Status: "ACTIVE",
	}

	leakingFaucet = JobRequest{
		ID:             "req-1",
		Description:    "Fix leaking faucet",
		RequiredTrades: []string{"Plumber"},
		Status:         "PENDING",
		Latitude:       40.7,
		Longitude:      -74.0,
		User:           RequestUser{Name: "Anonymous User"},
	}

	quoteAccepted = QuoteSubmitted{
		Message: "Quote submitted successfully",
		Quote:   QuoteRef{ID: "q-1"},
	}
)

func pendingProjects(requests ...JobRequest) AvailableProjects {
	if requests == nil {
		requests = []JobRequest{}
	}
	return AvailableProjects{NewRequests: requests, SentQuotes: []any{}, AcceptedJobs: []any{}}
}
