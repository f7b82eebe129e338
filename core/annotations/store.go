// Package annotations persists the functional annotation table and the
// precomputed background co-occurrence table in a sqlite database.
package annotations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adalundhe/pstcluster/core/enrich"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS annotations (
	id       INTEGER PRIMARY KEY,
	protein  TEXT NOT NULL UNIQUE,
	category TEXT
);
CREATE TABLE IF NOT EXISTS background (
	cat_a TEXT NOT NULL,
	cat_b TEXT NOT NULL,
	n     REAL NOT NULL,
	PRIMARY KEY (cat_a, cat_b)
);
`

// Store wraps the annotation database. Safe for concurrent reads.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open annotations db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveAnnotations replaces the annotation table. Unknown categories are
// stored as NULL.
func (s *Store) SaveAnnotations(ctx context.Context, proteins, categories []string) error {
	if len(proteins) != len(categories) {
		return fmt.Errorf("annotations: %d proteins vs %d categories", len(proteins), len(categories))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM annotations`); err != nil {
		return fmt.Errorf("clear annotations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO annotations (protein, category) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare annotation stmt: %w", err)
	}
	defer stmt.Close()

	for i, protein := range proteins {
		var category any
		if categories[i] != "" && categories[i] != enrich.Unknown {
			category = categories[i]
		}
		if _, err := stmt.ExecContext(ctx, protein, category); err != nil {
			return fmt.Errorf("insert annotation %s: %w", protein, err)
		}
	}
	return tx.Commit()
}

// LoadAnnotations reads the annotation table in insertion order. NULL
// categories come back as the unknown sentinel.
func (s *Store) LoadAnnotations(ctx context.Context) (proteins, categories []string, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT protein, category FROM annotations ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var protein string
		var category sql.NullString
		if err := rows.Scan(&protein, &category); err != nil {
			return nil, nil, fmt.Errorf("scan annotation: %w", err)
		}
		proteins = append(proteins, protein)
		if category.Valid {
			categories = append(categories, category.String)
		} else {
			categories = append(categories, enrich.Unknown)
		}
	}
	return proteins, categories, rows.Err()
}

// CategoryCounts tallies global occurrences per known category.
func (s *Store) CategoryCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM annotations WHERE category IS NOT NULL GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("query category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category string
		var n int64
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

// SaveBackground replaces the background co-occurrence table.
func (s *Store) SaveBackground(ctx context.Context, background map[enrich.Pair]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM background`); err != nil {
		return fmt.Errorf("clear background: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO background (cat_a, cat_b, n) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare background stmt: %w", err)
	}
	defer stmt.Close()

	for pair, n := range background {
		if _, err := stmt.ExecContext(ctx, pair.A, pair.B, n); err != nil {
			return fmt.Errorf("insert background (%s, %s): %w", pair.A, pair.B, err)
		}
	}
	return tx.Commit()
}

// LoadBackground reads the background table.
func (s *Store) LoadBackground(ctx context.Context) (map[enrich.Pair]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cat_a, cat_b, n FROM background`)
	if err != nil {
		return nil, fmt.Errorf("query background: %w", err)
	}
	defer rows.Close()

	background := make(map[enrich.Pair]float64)
	for rows.Next() {
		var a, b string
		var n float64
		if err := rows.Scan(&a, &b, &n); err != nil {
			return nil, fmt.Errorf("scan background: %w", err)
		}
		background[enrich.NewPair(a, b)] = n
	}
	return background, rows.Err()
}

// BuildBackground recomputes the background table from the stored
// annotations and persists it. Returns the fresh table.
func (s *Store) BuildBackground(ctx context.Context) (map[enrich.Pair]float64, error) {
	counts, err := s.CategoryCounts(ctx)
	if err != nil {
		return nil, err
	}
	background := enrich.Background(counts)
	if err := s.SaveBackground(ctx, background); err != nil {
		return nil, err
	}
	return background, nil
}
