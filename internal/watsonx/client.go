package watsonx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/loopback-hub/loopback/config"
)

// Run statuses reported by the orchestration platform.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// resultTypeAsync marks a run that delegated its work to a second run which
// must be polled instead.
const resultTypeAsync = "async_initiated"

// ErrTimedOut is returned when the attempt budget is exhausted without a real
// answer. Distinct from RemoteFailure: the caller should suggest trying later.
var ErrTimedOut = errors.New("watsonx: no answer before attempt budget exhausted")

// RemoteFailure indicates the remote run itself reported a terminal failure
// state. Surfaced verbatim, never retried.
type RemoteFailure struct {
	Status string
}

func (e *RemoteFailure) Error() string { return "watsonx: run " + e.Status }

// TransportError wraps a network or HTTP failure during submission or polling.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("watsonx: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Answer is a normalized final answer extracted from a run envelope.
type Answer struct {
	Text  string
	Path  string
	RunID string
}

// Client drives one remote agent run to completion: submit, poll bounded,
// follow async redirects, extract and filter candidates. A Client is safe for
// concurrent use; each Run call owns its run ids and token for its duration.
type Client struct {
	hostURL         string
	orchestrationID string
	agentID         string

	maxAttempts  int
	pollInterval time.Duration
	maxRedirects int
	placeholders []string

	tokens     *TokenSource
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient builds a run orchestration client from configuration.
func NewClient(wx config.WatsonxConfig, triage config.TriageConfig, tokens *TokenSource, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[RUN] ", log.LstdFlags)
	}
	return &Client{
		hostURL:         strings.TrimRight(wx.HostURL, "/"),
		orchestrationID: wx.OrchestrationID,
		agentID:         wx.AgentID,
		maxAttempts:     triage.MaxAttempts,
		pollInterval:    triage.PollInterval,
		maxRedirects:    triage.MaxRedirects,
		placeholders:    triage.PlaceholderPhrases,
		tokens:          tokens,
		httpClient:      &http.Client{Timeout: wx.Timeout},
		logger:          logger,
	}
}

// Run submits the user message as a new agent run and polls until a real
// answer appears, the run fails terminally, or the attempt budget expires.
// Errors are one of *AuthError, *TransportError, *RemoteFailure, ErrTimedOut,
// or the context's error.
func (c *Client) Run(ctx context.Context, message string) (Answer, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return Answer{}, err
	}

	runID, err := c.submit(ctx, token, message)
	if err != nil {
		return Answer{}, err
	}
	c.logger.Printf("run started: %s", runID)

	current := runID
	redirects := 0
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Answer{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		envelope, err := c.poll(ctx, token, current)
		if err != nil {
			return Answer{}, err
		}
		status := str(envelope["status"])
		resultType := str(dig(envelope, "result")["type"])
		c.logger.Printf("attempt %d/%d run=%s status=%s type=%s", attempt, c.maxAttempts, current, status, resultType)

		// The run delegated its work to a second run; switch polling to the
		// target within the same attempt budget. Depth is capped to avoid
		// indirection loops.
		if resultType == resultTypeAsync && status == StatusCompleted {
			target := str(dig(envelope, "result", "data")["target_run_id"])
			if target != "" && target != current {
				redirects++
				if redirects > c.maxRedirects {
					c.logger.Printf("redirect cap reached (%d), giving up on run %s", redirects, current)
					return Answer{}, ErrTimedOut
				}
				c.logger.Printf("async redirect: %s -> %s", current, target)
				current = target
				continue
			}
		}

		candidates := Extract(envelope)
		if real := c.filterPlaceholders(candidates); len(real) > 0 {
			// Later-discovered candidates are assumed more specific; the last
			// non-placeholder one wins.
			final := real[len(real)-1]
			c.logger.Printf("answer found via %s", final.Path)
			return Answer{Text: final.Text, Path: final.Path, RunID: current}, nil
		}

		if status == StatusFailed || status == StatusCancelled {
			return Answer{}, &RemoteFailure{Status: status}
		}
		if status == StatusCompleted && resultType != resultTypeAsync {
			// The run says it is done but carried no real answer. Trusting the
			// flag and looping further would just burn the budget.
			c.logger.Printf("run %s completed without a real answer", current)
			return Answer{}, ErrTimedOut
		}
	}

	c.logger.Printf("attempt budget exhausted for run %s", current)
	return Answer{}, ErrTimedOut
}

// filterPlaceholders drops candidates whose text contains an interim status
// phrase; those indicate a workflow step notice, not a final answer.
func (c *Client) filterPlaceholders(candidates []Candidate) []Candidate {
	var out []Candidate
	for _, cand := range candidates {
		lower := strings.ToLower(cand.Text)
		skip := false
		for _, phrase := range c.placeholders {
			if strings.Contains(lower, strings.ToLower(phrase)) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, cand)
		}
	}
	return out
}

func (c *Client) submit(ctx context.Context, token, message string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"message":  map[string]string{"role": "user", "content": message},
		"agent_id": c.agentID,
	})
	if err != nil {
		return "", &TransportError{Op: "marshal submit request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hostURL+"/v1/orchestrate/runs", bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Op: "create submit request", Err: err}
	}
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "submit run", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{Op: "submit run", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var created struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &TransportError{Op: "decode submit response", Err: err}
	}
	if created.RunID == "" {
		return "", &TransportError{Op: "submit run", Err: errors.New("missing run_id in response")}
	}
	return created.RunID, nil
}

func (c *Client) poll(ctx context.Context, token, runID string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.hostURL+"/v1/orchestrate/runs/"+runID, nil)
	if err != nil {
		return nil, &TransportError{Op: "create poll request", Err: err}
	}
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "poll run", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: "poll run", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var envelope map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &TransportError{Op: "decode poll response", Err: err}
	}
	return envelope, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-IBM-Orchestrate-ID", c.orchestrationID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
