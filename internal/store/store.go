// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store manages the persisted canonical records: one JSON file and
// one rendered mindmap per paper, a main and an "unrelated" partition, the
// append-only relevance audit log, and the aggregated output tree.
//
// Writes are idempotent per paper ID, so interrupted runs resume safely.
// Each paper is written by exactly one task; the only cross-task write is
// the audit log, which is serialized by a mutex.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pdiddy/survey-engine/internal/render"
	"github.com/pdiddy/survey-engine/pkg/types"
)

const (
	paperJSONDir  = "paper_json"
	mindmapDir    = "paper_mindmaps"
	unrelatedRoot = "unrelated"
	aggregatedDir = "by_subsubsection"
	auditLogFile  = "relevance_log.jsonl"
)

// Partition selects the main store or the relocated "unrelated" records.
type Partition int

const (
	Main Partition = iota
	Unrelated
)

func (p Partition) String() string {
	if p == Unrelated {
		return "unrelated"
	}
	return "main"
}

// Store is rooted at one output directory.
type Store struct {
	root    string
	auditMu sync.Mutex
}

// New creates a Store rooted at dir. Call EnsureDirs before writing.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// EnsureDirs creates the partition directory layout.
func (s *Store) EnsureDirs() error {
	for _, dir := range []string{
		filepath.Join(s.root, paperJSONDir),
		filepath.Join(s.root, mindmapDir),
		filepath.Join(s.root, unrelatedRoot, paperJSONDir),
		filepath.Join(s.root, unrelatedRoot, mindmapDir),
		filepath.Join(s.root, aggregatedDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Store) partitionDir(p Partition, sub string) string {
	if p == Unrelated {
		return filepath.Join(s.root, unrelatedRoot, sub)
	}
	return filepath.Join(s.root, sub)
}

// JSONPath returns the record path for id in partition p.
func (s *Store) JSONPath(id string, p Partition) string {
	return filepath.Join(s.partitionDir(p, paperJSONDir), id+".json")
}

// MindmapPath returns the rendered mindmap path for id in partition p.
func (s *Store) MindmapPath(id string, p Partition) string {
	return filepath.Join(s.partitionDir(p, mindmapDir), id+".md")
}

// Exists reports whether a record is already persisted in partition p.
func (s *Store) Exists(id string, p Partition) bool {
	_, err := os.Stat(s.JSONPath(id, p))
	return err == nil
}

// Save writes the record JSON and its rendered mindmap, overwriting in
// place. The same paper always lands under the same id, never duplicated
// under another key.
func (s *Store) Save(id string, p Partition, rec *types.CanonicalRecord) error {
	if err := os.MkdirAll(s.partitionDir(p, paperJSONDir), 0o755); err != nil {
		return fmt.Errorf("creating json directory: %w", err)
	}
	if err := os.MkdirAll(s.partitionDir(p, mindmapDir), 0o755); err != nil {
		return fmt.Errorf("creating mindmap directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling record %s: %w", id, err)
	}
	if err := os.WriteFile(s.JSONPath(id, p), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing record %s: %w", id, err)
	}

	title := rec.Paper.Title
	header := "# " + id + "\n\n"
	switch {
	case rec.Paper.BibKey != "" && title != "":
		header = fmt.Sprintf("# %s: %s\n\n", rec.Paper.BibKey, title)
	case title != "":
		header = "# " + title + "\n\n"
	}
	mindmap := header + render.Paper(rec)
	if err := os.WriteFile(s.MindmapPath(id, p), []byte(mindmap), 0o644); err != nil {
		return fmt.Errorf("writing mindmap %s: %w", id, err)
	}
	return nil
}

// Load reads and decodes one record. Files with trailing garbage (seen when
// a service response was appended after the object) fall back to decoding
// the first JSON value.
func (s *Store) Load(id string, p Partition) (*types.CanonicalRecord, error) {
	data, err := os.ReadFile(s.JSONPath(id, p))
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}

	var rec types.CanonicalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		dec := json.NewDecoder(bytes.NewReader(bytes.TrimLeft(data, " \t\r\n")))
		if derr := dec.Decode(&rec); derr != nil {
			return nil, fmt.Errorf("decoding record %s: %w", id, err)
		}
	}
	return &rec, nil
}

// List returns the record IDs present in partition p, sorted.
func (s *Store) List(p Partition) ([]string, error) {
	dir := s.partitionDir(p, paperJSONDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Relocate moves a record (JSON plus mindmap) between partitions with an
// overwrite-replace, so reruns converge on the latest verdict. A missing
// mindmap is not an error; a missing JSON is.
func (s *Store) Relocate(id string, from, to Partition) error {
	if from == to {
		return nil
	}
	if err := os.MkdirAll(s.partitionDir(to, paperJSONDir), 0o755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	if err := os.MkdirAll(s.partitionDir(to, mindmapDir), 0o755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	if err := os.Rename(s.JSONPath(id, from), s.JSONPath(id, to)); err != nil {
		return fmt.Errorf("relocating record %s: %w", id, err)
	}
	if err := os.Rename(s.MindmapPath(id, from), s.MindmapPath(id, to)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("relocating mindmap %s: %w", id, err)
	}
	return nil
}

// AppendAudit serializes v as one JSON line on the relevance audit log.
// Safe for concurrent use across worker tasks.
func (s *Store) AppendAudit(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	f, err := os.OpenFile(s.AuditLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// AuditLogPath returns the relevance audit log location.
func (s *Store) AuditLogPath() string {
	return filepath.Join(s.root, auditLogFile)
}

// AggregatedRoot returns the aggregated output tree root.
func (s *Store) AggregatedRoot() string {
	return filepath.Join(s.root, aggregatedDir)
}

// ResetAggregated wipes and recreates the aggregated tree. Aggregation is
// always a full rebuild: stale views from relocated or deduplicated papers
// must not survive.
func (s *Store) ResetAggregated() error {
	root := s.AggregatedRoot()
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("clearing aggregated output: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("recreating aggregated output: %w", err)
	}
	return nil
}

var (
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugUnsafe  = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	slugRepeats = regexp.MustCompile(`_+`)
)

const maxSlugLen = 120

// Slug converts text to a filesystem-safe name.
func Slug(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "unknown"
	}
	text = slugSpaces.ReplaceAllString(text, " ")
	text = slugUnsafe.ReplaceAllString(text, "_")
	text = strings.Trim(slugRepeats.ReplaceAllString(text, "_"), "_")
	if text == "" {
		return "unknown"
	}
	if len(text) > maxSlugLen {
		text = text[:maxSlugLen]
	}
	return text
}

// PaperID derives the stable record key: the bib key when assigned,
// otherwise the filename stem.
func PaperID(bibKey, stem string) string {
	if bibKey != "" {
		return Slug(bibKey)
	}
	return Slug(stem)
}
