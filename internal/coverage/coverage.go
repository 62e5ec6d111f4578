// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package coverage maintains a SQLite index over the persisted records and
// reports how well the survey taxonomy is covered: papers per taxonomy
// node, including nodes no paper has landed on yet.
package coverage

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/survey-engine/internal/store"
	"github.com/pdiddy/survey-engine/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "survey.db"
)

// Section labels stored in the entries table; aligned with the aggregated
// view tree.
const (
	sectionRepresentation = "Representation"
	sectionCognition      = "Cognition"
	sectionApplication    = "Application"
)

// Index is the coverage database rooted at the store's output directory.
type Index struct {
	db   *sql.DB
	path string
}

// Open opens or creates the index at outputDir/index/survey.db.
func Open(outputDir string) (*Index, error) {
	dir := filepath.Join(outputDir, indexDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	path := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	ix := &Index{db: db, path: path}
	if err := ix.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return ix, nil
}

// Close releases the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Path returns the database file location.
func (ix *Index) Path() string { return ix.path }

func (ix *Index) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			bib_key TEXT,
			title TEXT,
			method_name TEXT,
			related INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			paper_id TEXT NOT NULL REFERENCES papers(id),
			section TEXT NOT NULL,
			subsection TEXT NOT NULL,
			subsubsection TEXT NOT NULL,
			summary TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_paper_id ON entries(paper_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_node ON entries(section, subsection, subsubsection)`,
	}
	for _, stmt := range statements {
		if _, err := ix.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RebuildSummary holds counts from one index rebuild.
type RebuildSummary struct {
	Related   int
	Unrelated int
	Entries   int
}

// Total returns the number of papers indexed.
func (s RebuildSummary) Total() int {
	return s.Related + s.Unrelated
}

// Rebuild repopulates the index from the persisted records, both
// partitions, in one transaction. The index is derived state: a rebuild
// after any pipeline stage makes it consistent again.
func (ix *Index) Rebuild(ctx context.Context, st *store.Store, w io.Writer) (RebuildSummary, error) {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return RebuildSummary{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return RebuildSummary{}, fmt.Errorf("clearing entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM papers`); err != nil {
		return RebuildSummary{}, fmt.Errorf("clearing papers: %w", err)
	}

	paperStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO papers (id, bib_key, title, method_name, related) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return RebuildSummary{}, fmt.Errorf("preparing paper insert: %w", err)
	}
	defer paperStmt.Close()

	entryStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (paper_id, section, subsection, subsubsection, summary)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return RebuildSummary{}, fmt.Errorf("preparing entry insert: %w", err)
	}
	defer entryStmt.Close()

	var summary RebuildSummary
	for _, p := range []struct {
		partition store.Partition
		related   int
	}{
		{store.Main, 1},
		{store.Unrelated, 0},
	} {
		ids, err := st.List(p.partition)
		if err != nil {
			return RebuildSummary{}, err
		}
		for _, id := range ids {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			default:
			}

			rec, err := st.Load(id, p.partition)
			if err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", id, err)
				continue
			}
			if _, err := paperStmt.ExecContext(ctx,
				id, rec.Paper.BibKey, rec.Paper.Title, rec.Paper.MethodName, p.related); err != nil {
				return summary, fmt.Errorf("inserting paper %s: %w", id, err)
			}

			n, err := insertEntries(ctx, entryStmt, id, rec)
			if err != nil {
				return summary, err
			}
			summary.Entries += n
			if p.related == 1 {
				summary.Related++
			} else {
				summary.Unrelated++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing rebuild: %w", err)
	}
	fmt.Fprintf(w, "indexed %d papers (%d related, %d unrelated), %d entries\n",
		summary.Total(), summary.Related, summary.Unrelated, summary.Entries)
	return summary, nil
}

func insertEntries(ctx context.Context, stmt *sql.Stmt, id string, rec *types.CanonicalRecord) (int, error) {
	n := 0
	for _, e := range rec.Representation {
		if _, err := stmt.ExecContext(ctx, id, sectionRepresentation, e.Subsection, e.Subsubsection, e.Summary); err != nil {
			return n, fmt.Errorf("inserting entry for %s: %w", id, err)
		}
		n++
	}
	for _, e := range rec.Cognition {
		if _, err := stmt.ExecContext(ctx, id, sectionCognition, e.Subsection, e.Subsubsection, e.Summary); err != nil {
			return n, fmt.Errorf("inserting entry for %s: %w", id, err)
		}
		n++
	}
	for _, e := range rec.Application {
		if _, err := stmt.ExecContext(ctx, id, sectionApplication, sectionApplication, e.Task, e.Summary); err != nil {
			return n, fmt.Errorf("inserting entry for %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

// NodeCount is the number of related papers on one taxonomy node.
type NodeCount struct {
	Section       string `json:"section" yaml:"section"`
	Subsection    string `json:"subsection" yaml:"subsection"`
	Subsubsection string `json:"subsubsection" yaml:"subsubsection"`
	Papers        int    `json:"papers" yaml:"papers"`
}

// Coverage returns paper counts for every taxonomy node in outline order,
// zeros included. Nodes with zero papers are exactly the survey's blind
// spots, so they must appear in the report.
func (ix *Index) Coverage(ctx context.Context) ([]NodeCount, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT e.section, e.subsection, e.subsubsection, COUNT(DISTINCT e.paper_id)
		FROM entries e
		JOIN papers p ON p.id = e.paper_id
		WHERE p.related = 1
		GROUP BY e.section, e.subsection, e.subsubsection`)
	if err != nil {
		return nil, fmt.Errorf("querying coverage: %w", err)
	}
	defer rows.Close()

	counts := make(map[NodeCount]int)
	for rows.Next() {
		var key NodeCount
		var n int
		if err := rows.Scan(&key.Section, &key.Subsection, &key.Subsubsection, &n); err != nil {
			return nil, fmt.Errorf("scanning coverage row: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading coverage rows: %w", err)
	}

	var nodes []NodeCount
	appendNode := func(section, subsection, subsub string) {
		key := NodeCount{Section: section, Subsection: subsection, Subsubsection: subsub}
		key.Papers = counts[key]
		nodes = append(nodes, key)
	}
	for _, sub := range types.RepSubsectionOrder {
		for _, ss := range types.RepSubsections[sub] {
			appendNode(sectionRepresentation, sub, ss)
		}
	}
	for _, sub := range types.CogSubsectionOrder {
		for _, ss := range types.CogSubsections[sub] {
			appendNode(sectionCognition, sub, ss)
		}
	}
	for _, task := range types.AppTasks {
		appendNode(sectionApplication, sectionApplication, task)
	}
	return nodes, nil
}

// Report is the exportable coverage summary.
type Report struct {
	GeneratedAt   string      `json:"generated_at" yaml:"generated_at"`
	TotalPapers   int         `json:"total_papers" yaml:"total_papers"`
	RelatedPapers int         `json:"related_papers" yaml:"related_papers"`
	Uncovered     int         `json:"uncovered_nodes" yaml:"uncovered_nodes"`
	Nodes         []NodeCount `json:"nodes" yaml:"nodes"`
}

// BuildReport computes the coverage report from the current index state.
func (ix *Index) BuildReport(ctx context.Context) (*Report, error) {
	nodes, err := ix.Coverage(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Nodes:       nodes,
	}
	for _, n := range nodes {
		if n.Papers == 0 {
			report.Uncovered++
		}
	}

	if err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers`).Scan(&report.TotalPapers); err != nil {
		return nil, fmt.Errorf("counting papers: %w", err)
	}
	if err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers WHERE related = 1`).Scan(&report.RelatedPapers); err != nil {
		return nil, fmt.Errorf("counting related papers: %w", err)
	}
	return report, nil
}
