// Package memory gives the agent durable facts that survive session resets.
// Facts live in a local sqlite database with an FTS5 index for recall.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Fact is one remembered statement.
type Fact struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists facts in sqlite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the fact database at dbPath.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("Memory store initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'general',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_facts_category ON facts(category);

		CREATE VIRTUAL TABLE IF NOT EXISTS facts_fts USING fts5(
			fact_id UNINDEXED,
			content,
			tokenize='porter unicode61'
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Remember stores a fact and returns it with its assigned ID.
func (s *Store) Remember(ctx context.Context, content, category string) (Fact, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Fact{}, fmt.Errorf("fact content cannot be empty")
	}
	if category == "" {
		category = "general"
	}

	id, err := gonanoid.New()
	if err != nil {
		return Fact{}, fmt.Errorf("failed to generate fact id: %w", err)
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Fact{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO facts (id, content, category, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, content, category, now.Unix(), now.Unix()); err != nil {
		return Fact{}, fmt.Errorf("failed to insert fact: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO facts_fts (fact_id, content) VALUES (?, ?)`,
		id, content); err != nil {
		return Fact{}, fmt.Errorf("failed to index fact: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Fact{}, fmt.Errorf("failed to commit fact: %w", err)
	}

	log.Debug().Str("fact_id", id).Str("category", category).Msg("Fact remembered")
	return Fact{ID: id, Content: content, Category: category, CreatedAt: now, UpdatedAt: now}, nil
}

// Recall returns facts matching the query, best match first. The query is
// tokenized and matched as an OR of terms so partial phrasing still hits.
func (s *Store) Recall(ctx context.Context, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 10
	}

	match := ftsQuery(query)
	if match == "" {
		return nil, fmt.Errorf("recall query cannot be empty")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.content, f.category, f.created_at, f.updated_at
		FROM facts_fts
		JOIN facts f ON f.id = facts_fts.fact_id
		WHERE facts_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("recall query failed: %w", err)
	}
	defer rows.Close()

	return scanFacts(rows)
}

// Forget deletes a fact by ID.
func (s *Store) Forget(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete fact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no fact with id %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM facts_fts WHERE fact_id = ?`, id); err != nil {
		return fmt.Errorf("failed to unindex fact: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deletion: %w", err)
	}

	log.Debug().Str("fact_id", id).Msg("Fact forgotten")
	return nil
}

// List returns facts, newest first, optionally filtered by category.
func (s *Store) List(ctx context.Context, category string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if category != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, content, category, created_at, updated_at
			FROM facts WHERE category = ?
			ORDER BY created_at DESC LIMIT ?`, category, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, content, category, created_at, updated_at
			FROM facts
			ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list query failed: %w", err)
	}
	defer rows.Close()

	return scanFacts(rows)
}

// Digest renders the most recent facts as a block for the system prompt, so
// remembered context is present on every turn without an explicit recall.
func (s *Store) Digest(ctx context.Context, maxFacts int) (string, error) {
	if maxFacts <= 0 {
		maxFacts = 20
	}

	facts, err := s.List(ctx, "", maxFacts)
	if err != nil {
		return "", err
	}
	if len(facts) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Remembered facts:\n")
	for _, fact := range facts {
		fmt.Fprintf(&b, "- [%s] %s\n", fact.Category, fact.Content)
	}
	return b.String(), nil
}

// Count returns the number of stored facts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var facts []Fact
	for rows.Next() {
		var (
			fact               Fact
			createdU, updatedU int64
		)
		if err := rows.Scan(&fact.ID, &fact.Content, &fact.Category, &createdU, &updatedU); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		fact.CreatedAt = time.Unix(createdU, 0).UTC()
		fact.UpdatedAt = time.Unix(updatedU, 0).UTC()
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// ftsQuery converts free text into an FTS5 match expression: each term is
// quoted so user punctuation cannot change the query structure.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.ReplaceAll(field, `"`, "")
		if field == "" {
			continue
		}
		terms = append(terms, `"`+field+`"`)
	}
	return strings.Join(terms, " OR ")
}
