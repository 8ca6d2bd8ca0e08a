package crawler

import "time"

// ScopeReport summarizes one scope of a crawl run.
type ScopeReport struct {
	Scope     string `json:"scope"`
	FirstPage int    `json:"first_page"`
	LastPage  int    `json:"last_page"`
	Pages     int    `json:"pages"`
	TimedOut  int    `json:"timed_out_pages"`
	Persisted int    `json:"persisted"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Final     State  `json:"final_state"`
	Error     string `json:"error,omitempty"`
}

// Aborted reports whether the scope stopped on an error.
func (r ScopeReport) Aborted() bool { return r.Final == StateAborted }

// Report summarizes a crawl run.
type Report struct {
	Source    string        `json:"source"`
	Scopes    []ScopeReport `json:"scopes"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// AbortedScopes lists scopes that stopped on a page-level error.
func (r Report) AbortedScopes() []string {
	var out []string
	for _, s := range r.Scopes {
		if s.Aborted() {
			out = append(out, s.Scope)
		}
	}
	return out
}

// Persisted totals persisted listings across scopes.
func (r Report) Persisted() int {
	n := 0
	for _, s := range r.Scopes {
		n += s.Persisted
	}
	return n
}

// Failed totals listings that could not be fetched.
func (r Report) Failed() int {
	n := 0
	for _, s := range r.Scopes {
		n += s.Failed
	}
	return n
}
