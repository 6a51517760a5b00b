package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/aeo-scorer/backend/models"
)

var ErrNotFound = errors.New("analysis not found")

type Kind string

const (
	KindWebsite Kind = "website"
	KindAEO     Kind = "aeo"
)

// Record is one row of the analyses table without its payload.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      Kind      `json:"kind"`
	Website   string    `json:"website"`
	CreatedAt time.Time `json:"createdAt"`
}

// SQL stores analyses as JSON payloads in a single table.
type SQL struct {
	db     *sql.DB
	driver string
}

// timeLayout is fixed-width so created_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const createAnalysesTable = `CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	website TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

const createUserIndex = `CREATE INDEX IF NOT EXISTS idx_analyses_user ON analyses(user_id, created_at)`

// Open connects with driver "sqlite" (dsn is a file path) or "postgres" and
// creates the schema.
func Open(ctx context.Context, driver, dsn string) (*SQL, error) {
	switch driver {
	case "sqlite":
		if dsn == "" {
			return nil, errors.New("sqlite requires a database path")
		}
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, q := range []string{createAnalysesTable, createUserIndex} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQL{db: db, driver: driver}, nil
}

// Close closes the database connection
func (s *SQL) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres
func (s *SQL) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) save(ctx context.Context, rec Record, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s analysis: %w", rec.Kind, err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO analyses (id, user_id, kind, website, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.UserID, string(rec.Kind), rec.Website, string(data), rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert %s analysis: %w", rec.Kind, err)
	}
	return nil
}

func (s *SQL) load(ctx context.Context, id string, kind Kind, out any) error {
	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT payload FROM analyses WHERE id = ? AND kind = ?`), id, string(kind)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load %s analysis: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidPayload, err)
	}
	return nil
}

func (s *SQL) SaveAnalysis(ctx context.Context, a *models.Analysis) error {
	return s.save(ctx, Record{ID: a.ID, UserID: a.UserID, Kind: KindWebsite, Website: a.Website, CreatedAt: a.CreatedAt}, a)
}

func (s *SQL) GetAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	var a models.Analysis
	if err := s.load(ctx, id, KindWebsite, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAEO stores the analysis without any derived competitor table.
func (s *SQL) SaveAEO(ctx context.Context, a *models.AEOAnalysis) error {
	return s.save(ctx, Record{ID: a.ID, UserID: a.UserID, Kind: KindAEO, Website: a.Website, CreatedAt: a.CreatedAt}, a)
}

func (s *SQL) GetAEO(ctx context.Context, id string) (*models.AEOAnalysis, error) {
	var a models.AEOAnalysis
	if err := s.load(ctx, id, KindAEO, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnalyses returns the newest records of userID, or of every user when
// userID is empty.
func (s *SQL) ListAnalyses(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT id, user_id, kind, website, created_at FROM analyses`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec     Record
			kind    string
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &kind, &rec.Website, &created); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		rec.Kind = Kind(kind)
		if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
