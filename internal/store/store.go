package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// QueryStatus is the processing lifecycle state of a trend query.
type QueryStatus string

const (
	StatusPending   QueryStatus = "pending"
	StatusRunning   QueryStatus = "running"
	StatusCompleted QueryStatus = "completed"
	StatusFailed    QueryStatus = "failed"
)

// TrendQuery is one user request for trending topics.
type TrendQuery struct {
	ID        string      `db:"id" json:"id"`
	Industry  string      `db:"industry" json:"industry"`
	Region    string      `db:"region" json:"region"`
	Persona   string      `db:"persona" json:"persona"`
	DateRange string      `db:"date_range" json:"date_range"`
	Status    QueryStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// TrendResult is one scored candidate attached to a query. Rows are
// append-only: a fresh ingestion pass writes a new version instead of
// touching earlier ones.
type TrendResult struct {
	ID              string          `db:"id" json:"id"`
	QueryID         string          `db:"query_id" json:"query_id"`
	Version         int             `db:"version" json:"version"`
	Topic           string          `db:"topic" json:"topic"`
	Summary         string          `db:"summary" json:"summary"`
	SourcesJSON     string          `db:"sources" json:"-"`
	Sources         json.RawMessage `db:"-" json:"sources"`
	EngagementScore float64         `db:"engagement_score" json:"engagement_score"`
	FreshnessScore  float64         `db:"freshness_score" json:"freshness_score"`
	RelevanceScore  float64         `db:"relevance_score" json:"relevance_score"`
	FinalScore      float64         `db:"final_score" json:"final_score"`
	AnglesJSON      string          `db:"suggested_angles" json:"-"`
	SuggestedAngles []string        `db:"-" json:"suggested_angles"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Subscription attaches an email recipient to a query for refresh updates.
type Subscription struct {
	ID        string    `db:"id" json:"id"`
	QueryID   string    `db:"query_id" json:"query_id"`
	Email     string    `db:"email" json:"email"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// QueryParams identifies a query by its four request parameters.
type QueryParams struct {
	Industry  string
	Region    string
	Persona   string
	DateRange string
}

// Store is the persistence interface.
type Store interface {
	CreateQuery(ctx context.Context, q *TrendQuery) error
	GetQuery(ctx context.Context, id string) (*TrendQuery, error)
	ListQueries(ctx context.Context, limit int) ([]TrendQuery, error)
	FindLatestCompleted(ctx context.Context, p QueryParams) (*TrendQuery, error)
	SetQueryStatus(ctx context.Context, id string, status QueryStatus) error
	ClaimPending(ctx context.Context, id string) (bool, error)

	MaxVersion(ctx context.Context, queryID string) (int, error)
	InsertResults(ctx context.Context, results []TrendResult) error
	ListResults(ctx context.Context, queryID string, version int) ([]TrendResult, error)

	CreateSubscription(ctx context.Context, sub *Subscription) error
	ListActiveSubscriptions(ctx context.Context) ([]Subscription, error)
	DeactivateSubscription(ctx context.Context, id string) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateQuery(ctx context.Context, q *TrendQuery) error {
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	if q.Status == "" {
		q.Status = StatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trend_queries (id, industry, region, persona, date_range, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.Industry, q.Region, q.Persona, q.DateRange, q.Status, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert query %s: %w", q.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetQuery(ctx context.Context, id string) (*TrendQuery, error) {
	var q TrendQuery
	err := s.db.GetContext(ctx, &q, "SELECT * FROM trend_queries WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get query %s: %w", id, err)
	}
	return &q, nil
}

func (s *SQLiteStore) ListQueries(ctx context.Context, limit int) ([]TrendQuery, error) {
	if limit <= 0 {
		limit = 50
	}
	var queries []TrendQuery
	err := s.db.SelectContext(ctx, &queries,
		"SELECT * FROM trend_queries ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return queries, nil
}

func (s *SQLiteStore) FindLatestCompleted(ctx context.Context, p QueryParams) (*TrendQuery, error) {
	var q TrendQuery
	err := s.db.GetContext(ctx, &q, `
		SELECT * FROM trend_queries
		WHERE industry = ? AND region = ? AND persona = ? AND date_range = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1
	`, p.Industry, p.Region, p.Persona, p.DateRange, StatusCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find latest completed query: %w", err)
	}
	return &q, nil
}

func (s *SQLiteStore) SetQueryStatus(ctx context.Context, id string, status QueryStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE trend_queries SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set query %s status %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimPending flips a query from pending to running and reports whether this
// call won the transition. Best-effort guard against duplicate ingestion;
// there is deliberately no surrounding transaction or lock.
func (s *SQLiteStore) ClaimPending(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE trend_queries SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		StatusRunning, time.Now().UTC(), id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("claim query %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim query %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MaxVersion(ctx context.Context, queryID string) (int, error) {
	var v int
	err := s.db.GetContext(ctx, &v,
		"SELECT COALESCE(MAX(version), 0) FROM trend_results WHERE query_id = ?", queryID)
	if err != nil {
		return 0, fmt.Errorf("max version for query %s: %w", queryID, err)
	}
	return v, nil
}

// InsertResults writes one batch atomically: a mid-batch failure leaves no
// partial version behind.
func (s *SQLiteStore) InsertResults(ctx context.Context, results []TrendResult) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert results: %w", err)
	}
	defer tx.Rollback()

	for i := range results {
		r := &results[i]

		if r.SourcesJSON == "" {
			if len(r.Sources) > 0 {
				r.SourcesJSON = string(r.Sources)
			} else {
				r.SourcesJSON = "{}"
			}
		}
		if r.AnglesJSON == "" {
			anglesJSON, _ := json.Marshal(r.SuggestedAngles)
			r.AnglesJSON = string(anglesJSON)
		}
		now := time.Now().UTC()
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now

		_, err := tx.ExecContext(ctx, `
			INSERT INTO trend_results
				(id, query_id, version, topic, summary, sources,
				 engagement_score, freshness_score, relevance_score, final_score,
				 suggested_angles, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.QueryID, r.Version, r.Topic, r.Summary, r.SourcesJSON,
			r.EngagementScore, r.FreshnessScore, r.RelevanceScore, r.FinalScore,
			r.AnglesJSON, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}

// ListResults returns results for a query ordered by final score descending.
// version <= 0 returns all versions.
func (s *SQLiteStore) ListResults(ctx context.Context, queryID string, version int) ([]TrendResult, error) {
	query := "SELECT * FROM trend_results WHERE query_id = ?"
	args := []any{queryID}

	if version > 0 {
		query += " AND version = ?"
		args = append(args, version)
	}
	query += " ORDER BY final_score DESC"

	var results []TrendResult
	if err := s.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("list results for query %s: %w", queryID, err)
	}

	for i := range results {
		results[i].Sources = json.RawMessage(results[i].SourcesJSON)
		json.Unmarshal([]byte(results[i].AnglesJSON), &results[i].SuggestedAngles)
	}
	return results, nil
}

func (s *SQLiteStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, query_id, email, active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sub.ID, sub.QueryID, sub.Email, sub.Active, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription %s: %w", sub.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	err := s.db.SelectContext(ctx, &subs,
		"SELECT * FROM subscriptions WHERE active = 1 ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SQLiteStore) DeactivateSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE subscriptions SET active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deactivate subscription %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
