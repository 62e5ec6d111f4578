// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate rebuilds the taxonomy-keyed survey views from the main
// partition: one Markdown file per populated taxonomy node, grouping every
// paper that landed on it. The rebuild is deterministic, so reruns over the
// same records produce byte-identical output.
package aggregate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pdiddy/survey-engine/internal/match"
	"github.com/pdiddy/survey-engine/internal/render"
	"github.com/pdiddy/survey-engine/internal/store"
	"github.com/pdiddy/survey-engine/pkg/types"
)

// Section labels used in view paths and headers. Short forms, not the full
// outline titles: the directory tree stays navigable.
const (
	sectionRepresentation = "Representation"
	sectionCognition      = "Cognition"
	sectionApplication    = "Application"
)

// nodeKey addresses one taxonomy view file.
type nodeKey struct {
	Section    string
	Subsection string
	Subsub     string
}

// loaded is one record plus the precomputed title normalization used for
// duplicate detection.
type loaded struct {
	id        string
	titleNorm string
	rec       *types.CanonicalRecord
}

// Run rebuilds the aggregated views under OutputDir/by_subsubsection,
// wiping the previous tree first so relocated and deduplicated papers never
// leave stale views behind. It returns the written file paths.
func Run(cfg types.AggregateConfig, th types.Thresholds, w io.Writer) ([]string, error) {
	st := store.New(cfg.OutputDir)
	ids, err := st.List(store.Main)
	if err != nil {
		return nil, err
	}

	var records []loaded
	for _, id := range ids {
		rec, err := st.Load(id, store.Main)
		if err != nil {
			return nil, err
		}
		records = append(records, loaded{
			id:        id,
			titleNorm: match.Normalize(rec.Paper.Title),
			rec:       rec,
		})
	}

	records = dropUnkeyedDuplicates(records, th, w)

	views := groupByNode(records)

	if err := st.ResetAggregated(); err != nil {
		return nil, err
	}

	var written []string
	for _, key := range sortedKeys(views) {
		path := viewPath(st.AggregatedRoot(), key)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating view directory: %w", err)
		}
		content := render.Aggregated(key.Section, key.Subsection, key.Subsub, views[key])
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("writing view %s: %w", path, err)
		}
		written = append(written, path)
	}

	fmt.Fprintf(w, "aggregated %d records into %d views under %s\n",
		len(records), len(written), st.AggregatedRoot())
	return written, nil
}

// dropUnkeyedDuplicates removes unkeyed records whose title is nearly
// identical to a keyed record's: the keyed version of the same paper wins,
// so it never appears twice in a view.
func dropUnkeyedDuplicates(records []loaded, th types.Thresholds, w io.Writer) []loaded {
	var keyedNorms []string
	for _, r := range records {
		if r.rec.Paper.BibKey != "" && r.titleNorm != "" {
			keyedNorms = append(keyedNorms, r.titleNorm)
		}
	}

	var kept []loaded
	for _, r := range records {
		if r.rec.Paper.BibKey == "" && isDuplicate(r.titleNorm, keyedNorms, th) {
			fmt.Fprintf(w, "dropping unkeyed duplicate %s\n", r.id)
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func isDuplicate(titleNorm string, keyedNorms []string, th types.Thresholds) bool {
	if titleNorm == "" {
		return false
	}
	for _, kn := range keyedNorms {
		if match.ScoreNormalized(titleNorm, kn) >= th.Duplicate {
			return true
		}
	}
	return false
}

// groupByNode collects each record's entries under the taxonomy nodes they
// name. Unspecified subsubsections never get a view; Application groups
// under its task with a fixed "Application" subsection label.
func groupByNode(records []loaded) map[nodeKey][]render.PaperGroup {
	views := make(map[nodeKey][]render.PaperGroup)

	appendGroup := func(key nodeKey, r loaded, add func(g *render.PaperGroup)) {
		groups := views[key]
		if len(groups) == 0 || groups[len(groups)-1].ID != r.id {
			groups = append(groups, render.PaperGroup{ID: r.id, Paper: r.rec.Paper})
		}
		add(&groups[len(groups)-1])
		views[key] = groups
	}

	// Deterministic paper order inside every view.
	sorted := make([]loaded, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.rec.Paper.BibKey != b.rec.Paper.BibKey {
			return a.rec.Paper.BibKey < b.rec.Paper.BibKey
		}
		if a.rec.Paper.Title != b.rec.Paper.Title {
			return a.rec.Paper.Title < b.rec.Paper.Title
		}
		return a.id < b.id
	})

	for _, r := range sorted {
		for _, e := range r.rec.Representation {
			if skipNode(e.Subsection, e.Subsubsection) {
				continue
			}
			key := nodeKey{sectionRepresentation, e.Subsection, e.Subsubsection}
			appendGroup(key, r, func(g *render.PaperGroup) {
				g.Representation = append(g.Representation, e)
			})
		}
		for _, e := range r.rec.Cognition {
			if skipNode(e.Subsection, e.Subsubsection) {
				continue
			}
			key := nodeKey{sectionCognition, e.Subsection, e.Subsubsection}
			appendGroup(key, r, func(g *render.PaperGroup) {
				g.Cognition = append(g.Cognition, e)
			})
		}
		for _, e := range r.rec.Application {
			if e.Task == "" {
				continue
			}
			key := nodeKey{sectionApplication, sectionApplication, e.Task}
			appendGroup(key, r, func(g *render.PaperGroup) {
				g.Application = append(g.Application, e)
			})
		}
	}
	return views
}

func skipNode(subsection, subsub string) bool {
	return subsection == "" || subsub == "" || subsub == types.Unspecified
}

func sortedKeys(views map[nodeKey][]render.PaperGroup) []nodeKey {
	keys := make([]nodeKey, 0, len(views))
	for k := range views {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if a.Subsection != b.Subsection {
			return a.Subsection < b.Subsection
		}
		return a.Subsub < b.Subsub
	})
	return keys
}

// viewPath lays views out as Section/Subsection/Subsub.md, except
// Application, which is flat under Application/.
func viewPath(root string, key nodeKey) string {
	if key.Section == sectionApplication {
		return filepath.Join(root, sectionApplication, store.Slug(key.Subsub)+".md")
	}
	return filepath.Join(root,
		store.Slug(key.Section),
		store.Slug(key.Subsection),
		store.Slug(key.Subsub)+".md")
}
