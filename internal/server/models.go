package server

import "github.com/loopback-hub/loopback/internal/knowledge"

type CreateTicketRequest struct {
	Query   string   `json:"query"`
	AIDraft string   `json:"ai_draft"`
	Users   []string `json:"users"`
}

type CreateTicketResponse struct {
	Status   string `json:"status"`
	TicketID string `json:"ticket_id"`
	GroupID  string `json:"group_id"`
}

type AskRequest struct {
	Message string `json:"message"`
}

// AskResponse carries the user-facing text plus a machine-readable result
// kind: answer, timeout, remote_failure, connection_error.
type AskResponse struct {
	Response string `json:"response"`
	Result   string `json:"result"`
	Path     string `json:"path,omitempty"`
}

type BroadcastRequest struct {
	TicketID    string `json:"ticket_id"`
	FinalAnswer string `json:"final_answer"`
}

type BroadcastResponse struct {
	Status        string `json:"status"`
	ResolvedCount int64  `json:"resolved_count"`
}

type SearchResponse struct {
	Results []knowledge.Hit `json:"results"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}
