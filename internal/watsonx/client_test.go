package watsonx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loopback-hub/loopback/config"
)

// agentStub simulates the orchestration platform: a token endpoint, a run
// submission endpoint, and scripted poll responses per run id.
type agentStub struct {
	mux       *http.ServeMux
	polls     map[string][]string // run id -> sequence of poll bodies (last repeats)
	polled    []string            // run ids in poll order
	pollCount int
}

func newAgentStub(t *testing.T) (*agentStub, *httptest.Server) {
	t.Helper()
	stub := &agentStub{mux: http.NewServeMux(), polls: map[string][]string{}}
	stub.mux.HandleFunc("/identity/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token": "test-token"}`)
	})
	stub.mux.HandleFunc("/v1/orchestrate/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header: %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Message map[string]string `json:"message"`
			AgentID string            `json:"agent_id"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("submit body: %v", err)
		}
		if req.Message["role"] != "user" {
			t.Errorf("expected user role, got %q", req.Message["role"])
		}
		fmt.Fprint(w, `{"run_id": "run-1"}`)
	})
	stub.mux.HandleFunc("/v1/orchestrate/runs/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/orchestrate/runs/")
		stub.polled = append(stub.polled, id)
		stub.pollCount++
		seq := stub.polls[id]
		if len(seq) == 0 {
			http.NotFound(w, r)
			return
		}
		body := seq[0]
		if len(seq) > 1 {
			stub.polls[id] = seq[1:]
		}
		fmt.Fprint(w, body)
	})
	srv := httptest.NewServer(stub.mux)
	t.Cleanup(srv.Close)
	return stub, srv
}

func newTestClient(srv *httptest.Server, maxAttempts int) *Client {
	wx := config.WatsonxConfig{
		APIKey:          "key",
		TokenURL:        srv.URL + "/identity/token",
		HostURL:         srv.URL,
		OrchestrationID: "orch-1",
		AgentID:         "agent-1",
		Timeout:         5 * time.Second,
	}
	triage := config.TriageConfig{
		MaxAttempts:  maxAttempts,
		PollInterval: time.Millisecond,
		MaxRedirects: 3,
		PlaceholderPhrases: []string{
			"A new flow has started",
			"flow has started",
			"tool is processing",
		},
	}
	logger := log.New(io.Discard, "", 0)
	return NewClient(wx, triage, NewTokenSource(wx.APIKey, wx.TokenURL, wx.Timeout), logger)
}

func stepHistoryBody(status, text string) string {
	return fmt.Sprintf(`{"status": %q, "result": {"data": {"message": {"step_history": [
		{"role": "assistant", "step_details": [{"type": "tool_response", "response": {"text": %q}}]}
	]}}}}`, status, text)
}

func TestRunReturnsAnswerFromStepHistory(t *testing.T) {
	stub, srv := newAgentStub(t)
	stub.polls["run-1"] = []string{
		`{"status": "running"}`,
		stepHistoryBody("completed", "Restart the router."),
	}

	answer, err := newTestClient(srv, 10).Run(context.Background(), "wifi broken")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer.Text != "Restart the router." {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if answer.Path != "step_history.tool_response.text" {
		t.Fatalf("unexpected path: %q", answer.Path)
	}
	if stub.pollCount != 2 {
		t.Fatalf("expected 2 polls, got %d", stub.pollCount)
	}
}

func TestRunFollowsAsyncRedirect(t *testing.T) {
	stub, srv := newAgentStub(t)
	stub.polls["run-1"] = []string{
		`{"status": "completed", "result": {"type": "async_initiated", "data": {"target_run_id": "run-2"}}}`,
	}
	stub.polls["run-2"] = []string{
		stepHistoryBody("completed", "Printer fixed"),
	}

	answer, err := newTestClient(srv, 10).Run(context.Background(), "printer jammed")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer.Text != "Printer fixed" {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if answer.RunID != "run-2" {
		t.Fatalf("expected answer from target run, got %q", answer.RunID)
	}
	if len(stub.polled) != 2 || stub.polled[0] != "run-1" || stub.polled[1] != "run-2" {
		t.Fatalf("expected polls of run-1 then run-2, got %v", stub.polled)
	}
}

func TestRunStopsAfterThirdRedirect(t *testing.T) {
	stub, srv := newAgentStub(t)
	redirect := func(target string) string {
		return fmt.Sprintf(`{"status": "completed", "result": {"type": "async_initiated", "data": {"target_run_id": %q}}}`, target)
	}
	stub.polls["run-1"] = []string{redirect("run-2")}
	stub.polls["run-2"] = []string{redirect("run-3")}
	stub.polls["run-3"] = []string{redirect("run-4")}
	stub.polls["run-4"] = []string{redirect("run-5")}
	stub.polls["run-5"] = []string{stepHistoryBody("completed", "never reached")}

	_, err := newTestClient(srv, 20).Run(context.Background(), "q")
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut after redirect cap, got %v", err)
	}
	for _, id := range stub.polled {
		if id == "run-5" {
			t.Fatalf("fourth redirect must not be followed, polled %v", stub.polled)
		}
	}
}

func TestRunIgnoresPlaceholderCandidates(t *testing.T) {
	stub, srv := newAgentStub(t)
	stub.polls["run-1"] = []string{
		stepHistoryBody("running", "A new flow has started."),
		stepHistoryBody("running", "The TOOL IS PROCESSING your request"),
		stepHistoryBody("completed", "Clear the paper jam."),
	}

	answer, err := newTestClient(srv, 10).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer.Text != "Clear the paper jam." {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if stub.pollCount != 3 {
		t.Fatalf("placeholder polls must not terminate the loop, got %d polls", stub.pollCount)
	}
}

func TestRunSelectsLastNonPlaceholderCandidate(t *testing.T) {
	stub, srv := newAgentStub(t)
	stub.polls["run-1"] = []string{`{
		"status": "completed",
		"messages": [
			{"role": "assistant", "content": "A new flow has started."},
			{"role": "assistant", "content": "interim summary"},
			{"role": "assistant", "content": "final detailed answer"}
		]
	}`}

	answer, err := newTestClient(srv, 10).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer.Text != "final detailed answer" {
		t.Fatalf("expected last candidate to win, got %+v", answer)
	}
}

func TestRunTerminalFailureSurfacedImmediately(t *testing.T) {
	for _, status := range []string{"failed", "cancelled"} {
		stub, srv := newAgentStub(t)
		stub.polls["run-1"] = []string{fmt.Sprintf(`{"status": %q}`, status)}

		_, err := newTestClient(srv, 10).Run(context.Background(), "q")
		var rf *RemoteFailure
		if !errors.As(err, &rf) {
			t.Fatalf("expected RemoteFailure for %s, got %v", status, err)
		}
		if rf.Status != status {
			t.Fatalf("expected status %q, got %q", status, rf.Status)
		}
		if stub.pollCount != 1 {
			t.Fatalf("terminal failure must not be retried, got %d polls", stub.pollCount)
		}
	}
}

func TestRunTimesOutAfterAttemptBudget(t *testing.T) {
	stub, srv := newAgentStub(t)
	stub.polls["run-1"] = []string{`{"status": "running"}`}

	_, err := newTestClient(srv, 60).Run(context.Background(), "q")
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if stub.pollCount != 60 {
		t.Fatalf("expected 60 polls, got %d", stub.pollCount)
	}
}

func TestRunCompletedWithoutAnswerStopsEarly(t *testing.T) {
	stub, srv := newAgentStub(t)
	stub.polls["run-1"] = []string{`{"status": "completed"}`}

	_, err := newTestClient(srv, 60).Run(context.Background(), "q")
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if stub.pollCount != 1 {
		t.Fatalf("completed-without-answer must stop polling, got %d polls", stub.pollCount)
	}
}

func TestRunAuthFailureFailsFast(t *testing.T) {
	stub, srv := newAgentStub(t)
	_ = stub
	client := newTestClient(srv, 10)
	client.tokens = NewTokenSource("bad", srv.URL+"/missing", time.Second)

	_, err := client.Run(context.Background(), "q")
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if stub.pollCount != 0 {
		t.Fatalf("no polls expected after auth failure, got %d", stub.pollCount)
	}
}

func TestRunContextCancellation(t *testing.T) {
	stub, srv := newAgentStub(t)
	stub.polls["run-1"] = []string{`{"status": "running"}`}

	client := newTestClient(srv, 1000)
	client.pollInterval = 50 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.Run(ctx, "q")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
}
