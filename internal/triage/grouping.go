package triage

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/loopback-hub/loopback/internal/store"
)

// Generator is the single-shot text-completion call the grouping engine uses
// for similarity decisions.
type Generator interface {
	Generate(ctx context.Context, token, prompt string) (string, error)
}

const groupingPromptHeader = `You are an IT Support Triage AI.
Check if the New Issue matches any of the Existing Issues.
They match if they are about the EXACT SAME technical problem (e.g., "wifi broken" vs "cannot connect to internet").
If they match, return ONLY the ID of the existing issue.
If they do not match, return "None".`

// Grouper decides whether a new request duplicates an existing open one.
type Grouper struct {
	LLM    Generator
	Limit  int
	Logger *log.Logger
}

func NewGrouper(llm Generator, limit int, logger *log.Logger) *Grouper {
	if limit <= 0 {
		limit = 20
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[GROUP] ", log.LstdFlags)
	}
	return &Grouper{LLM: llm, Limit: limit, Logger: logger}
}

// GroupOf returns the cluster id the new query belongs to, or false when it
// should root its own cluster. Only the given open (Pending) tickets are match
// candidates; with none, no external call is made. The model's free-text reply
// is trusted only if it contains one of the candidate ids verbatim. Any
// transport or decoding failure degrades to no-match rather than failing the
// caller.
func (g *Grouper) GroupOf(ctx context.Context, token, newQuery string, open []store.Ticket) (string, bool) {
	if len(open) == 0 {
		return "", false
	}
	candidates := open
	if len(candidates) > g.Limit {
		candidates = candidates[:g.Limit]
	}

	var lines []string
	for _, t := range candidates {
		lines = append(lines, fmt.Sprintf("- ID: %s, Issue: %s", t.ID, t.Query))
	}
	prompt := fmt.Sprintf("%s\n\nExisting Issues:\n%s\n\nNew Issue: %s\n\nMatch ID:",
		groupingPromptHeader, strings.Join(lines, "\n"), newQuery)

	reply, err := g.LLM.Generate(ctx, token, prompt)
	if err != nil {
		g.Logger.Printf("grouping call failed, treating as no match: %v", err)
		return "", false
	}
	reply = strings.TrimSpace(reply)
	g.Logger.Printf("grouping decision: %q", reply)

	for _, t := range candidates {
		if strings.Contains(reply, t.ID) {
			// Clusters are transitive through the matched ticket: inherit its
			// existing cluster id, not its own id.
			cluster := t.ClusterID
			if cluster == "" {
				cluster = t.ID
			}
			return cluster, true
		}
	}
	return "", false
}
