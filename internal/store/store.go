package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Ticket statuses. A ticket starts Pending and becomes Resolved only through
// ResolveCluster.
const (
	StatusPending  = "Pending"
	StatusResolved = "Resolved"
)

// ErrNotFound is returned when a ticket id does not exist.
var ErrNotFound = errors.New("ticket not found")

type Store struct {
	DB *sql.DB
}

// Ticket is a persisted support request. ClusterID is never empty: it is the
// id of the duplicate-group the ticket belongs to, defaulting to the ticket's
// own id when no match was found at creation.
type Ticket struct {
	ID          string    `json:"id"`
	ClusterID   string    `json:"group_id"`
	Query       string    `json:"query"`
	AIDraft     string    `json:"ai_draft"`
	Status      string    `json:"status"`
	FinalAnswer string    `json:"final_answer,omitempty"`
	Users       []string  `json:"users"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewWithDSN opens a Postgres connection and verifies it.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// CreateTicket inserts a new ticket with a sequence-assigned id. When
// clusterID is empty the ticket roots its own cluster. Id assignment and the
// cluster default happen in one statement so concurrent creates cannot reuse
// or skip an id.
func (s *Store) CreateTicket(ctx context.Context, query, aiDraft, clusterID string, users []string) (Ticket, error) {
	if len(users) == 0 {
		users = []string{"User_Unknown"}
	}
	t := Ticket{Query: query, AIDraft: aiDraft, Status: StatusPending, Users: users}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO tickets (id, cluster_id, query, ai_draft, status, users, created_at)
SELECT v.id, COALESCE(NULLIF($1,''), v.id), $2, $3, 'Pending', $4, NOW()
FROM (SELECT 'TKT-' || nextval('ticket_number_seq') AS id) v
RETURNING id, cluster_id, created_at
`, clusterID, query, aiDraft, pq.Array(users)).Scan(&t.ID, &t.ClusterID, &t.CreatedAt)
	if err != nil {
		return Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	return t, nil
}

// ListTickets returns all tickets in creation order.
func (s *Store) ListTickets(ctx context.Context) ([]Ticket, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, cluster_id, query, ai_draft, status, COALESCE(final_answer,''), users, created_at
FROM tickets ORDER BY created_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ListPending returns the most recently created Pending tickets, newest first,
// capped at limit. These are the grouping candidates; Resolved tickets never
// absorb new members.
func (s *Store) ListPending(ctx context.Context, limit int) ([]Ticket, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, cluster_id, query, ai_draft, status, COALESCE(final_answer,''), users, created_at
FROM tickets WHERE status = 'Pending' ORDER BY created_at DESC, id DESC LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tickets: %w", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

// GetTicket returns one ticket by id.
func (s *Store) GetTicket(ctx context.Context, id string) (Ticket, error) {
	var t Ticket
	var users pq.StringArray
	err := s.DB.QueryRowContext(ctx, `
SELECT id, cluster_id, query, ai_draft, status, COALESCE(final_answer,''), users, created_at
FROM tickets WHERE id = $1
`, id).Scan(&t.ID, &t.ClusterID, &t.Query, &t.AIDraft, &t.Status, &t.FinalAnswer, &users, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	t.Users = users
	return t, nil
}

// DeleteTicket removes one ticket by id.
func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveCluster marks every ticket in the target's cluster as Resolved with
// the given final answer and returns the number of tickets mutated. The
// explicitly named ticket is always included even if its cluster bookkeeping
// were inconsistent. A missing ticket id is a zero-count no-op, not an error.
func (s *Store) ResolveCluster(ctx context.Context, ticketID, finalAnswer string) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin resolve: %w", err)
	}
	defer tx.Rollback()

	var clusterID string
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(NULLIF(cluster_id,''), id) FROM tickets WHERE id = $1`,
		ticketID).Scan(&clusterID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve cluster lookup: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
UPDATE tickets SET status = 'Resolved', final_answer = $1
WHERE cluster_id = $2 OR id = $3
`, finalAnswer, clusterID, ticketID)
	if err != nil {
		return 0, fmt.Errorf("resolve cluster update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit resolve: %w", err)
	}
	return n, nil
}

// RecordBroadcast appends an audit row for a broadcast resolution.
func (s *Store) RecordBroadcast(ctx context.Context, ticketID, clusterID string, resolved int64) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO broadcasts (id, ticket_id, cluster_id, resolved_count, created_at)
VALUES ($1, $2, $3, $4, NOW())
`, uuid.NewString(), ticketID, clusterID, resolved)
	if err != nil {
		return fmt.Errorf("record broadcast: %w", err)
	}
	return nil
}

// CreateUser inserts an operator account.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, NOW())
`, uuid.NewString(), email, passwordHash)
	return err
}

// GetUserByEmail returns an operator's id and password hash.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, email).Scan(&id, &hash)
	if err != nil {
		return "", "", err
	}
	return id, hash, nil
}

func scanTickets(rows *sql.Rows) ([]Ticket, error) {
	var out []Ticket
	for rows.Next() {
		var t Ticket
		var users pq.StringArray
		if err := rows.Scan(&t.ID, &t.ClusterID, &t.Query, &t.AIDraft, &t.Status, &t.FinalAnswer, &users, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		t.Users = users
		out = append(out, t)
	}
	return out, rows.Err()
}
