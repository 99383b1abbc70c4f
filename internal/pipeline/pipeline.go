// Package pipeline runs the vault pass: scan, parse, transform, base
// loading, and graph extraction. Each pass produces an immutable Snapshot;
// readers always see a complete, consistent corpus.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/base"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/rewrite"
	"github.com/starford/ansuz/internal/storage"
)

// Document is one transformed vault note: the parsed snapshot plus the
// rewritten body and the references discovered in it.
type Document struct {
	Note   *models.Note
	Body   string
	Links  []models.LinkRef
	Blocks []string // names of inline base definitions extracted from the body
}

// Diagnostic records a non-fatal problem found during a pass. The offending
// file is skipped; the rest of the corpus still builds.
type Diagnostic struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Snapshot is the result of one complete vault pass. It is never mutated
// after Build returns; a file change produces a new Snapshot.
type Snapshot struct {
	Documents   map[string]*Document
	Notes       []*models.Note // corpus in path order
	Definitions map[string]*base.Definition
	Graph       *graph.Graph
	Diagnostics []Diagnostic
	BuiltAt     time.Time
}

// docResult carries one worker's output back to the assembly step.
type docResult struct {
	doc  *Document
	defs []*base.Definition
	diag *Diagnostic
}

// Build scans the vault and produces a Snapshot. Per-document transforms run
// concurrently (bounded by workers); graph extraction starts only after every
// document has finished.
func Build(ctx context.Context, store storage.Provider, logger *slog.Logger, workers int) (*Snapshot, error) {
	metas, err := store.List("")
	if err != nil {
		return nil, fmt.Errorf("pipeline: scan: %w", err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	if workers <= 0 {
		workers = 4
	}

	results := make([]docResult, len(metas))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, m := range metas {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = buildOne(store, m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Documents:   make(map[string]*Document),
		Definitions: make(map[string]*base.Definition),
		BuiltAt:     time.Now(),
	}
	for _, r := range results {
		if r.diag != nil {
			snap.Diagnostics = append(snap.Diagnostics, *r.diag)
			logger.Warn("pipeline: skipped file",
				slog.String("path", r.diag.Path),
				slog.String("reason", r.diag.Message))
		}
		if r.doc != nil {
			snap.Documents[r.doc.Note.Path] = r.doc
			snap.Notes = append(snap.Notes, r.doc.Note)
		}
		for _, def := range r.defs {
			snap.Definitions[def.Name] = def
		}
	}

	snap.Graph = graph.Extract(snap.Notes)

	logger.Info("pipeline: pass complete",
		slog.Int("documents", len(snap.Documents)),
		slog.Int("definitions", len(snap.Definitions)),
		slog.Int("diagnostics", len(snap.Diagnostics)))
	return snap, nil
}

// buildOne handles a single vault file: Markdown notes are parsed and
// transformed, standalone base files are loaded as definitions.
func buildOne(store storage.Provider, m models.NoteMetadata) docResult {
	data, err := store.Read(m.Path)
	if err != nil {
		return docResult{diag: &Diagnostic{Path: m.Path, Message: err.Error()}}
	}

	if strings.HasSuffix(m.Path, ".base") {
		def, err := base.Load(m.Path, data)
		if err != nil {
			return docResult{diag: &Diagnostic{Path: m.Path, Message: err.Error()}}
		}
		return docResult{defs: []*base.Definition{def}}
	}

	note, err := parser.Note(m.Path, data, m.UpdatedAt, m.Size)
	if err != nil {
		return docResult{diag: &Diagnostic{Path: m.Path, Message: err.Error()}}
	}

	tr := rewrite.Transform(note.Body)
	note.Links = linkTargets(tr.Links)

	doc := &Document{Note: note, Body: tr.Body, Links: tr.Links}
	res := docResult{doc: doc}
	for _, blk := range tr.Blocks {
		name := note.Path + "#" + blk.Name
		def, err := base.Load(name, []byte(blk.Content))
		if err != nil {
			res.diag = &Diagnostic{Path: note.Path, Message: err.Error()}
			continue
		}
		doc.Blocks = append(doc.Blocks, name)
		res.defs = append(res.defs, def)
	}
	return res
}

func linkTargets(refs []models.LinkRef) []string {
	seen := make(map[string]struct{}, len(refs))
	var out []string
	for _, r := range refs {
		if _, dup := seen[r.Target]; dup {
			continue
		}
		seen[r.Target] = struct{}{}
		out = append(out, r.Target)
	}
	return out
}
