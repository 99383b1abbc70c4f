// Package noteservice coordinates storage, index, and pipeline snapshot
// operations behind a single service type consumed by the API and MCP layers.
package noteservice

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/base"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/rewrite"
	"github.com/starford/ansuz/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentDetail is the transformed representation of a note: the component
// grammar body plus discovered references and inline base definitions.
type DocumentDetail struct {
	Path   string   `json:"path"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Links  []string `json:"links"`
	Blocks []string `json:"blocks,omitempty"`
}

// BaseInfo summarizes one loaded base definition.
type BaseInfo struct {
	Name  string   `json:"name"`
	Views []string `json:"views"`
}

// Service coordinates storage, index, and pipeline operations.
type Service struct {
	store storage.Provider
	db    *index.DB
	pipe  *pipeline.Manager
}

// NewService creates a new note service.
func NewService(store storage.Provider, db *index.DB, pipe *pipeline.Manager) *Service {
	return &Service{store: store, db: db, pipe: pipe}
}

// GetNote reads a note from storage, parses it, and enriches with backlinks.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(path, data)
}

// CreateNote writes a new note and indexes it.
func (s *Service) CreateNote(_ context.Context, path string, content []byte) (*NoteDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.IndexFile(path, content); err != nil {
		return nil, err
	}
	s.markDirty()
	return s.buildNoteDetail(path, content)
}

// UpdateNote writes updated content with optimistic concurrency.
func (s *Service) UpdateNote(_ context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.IndexFile(path, content); err != nil {
		return nil, err
	}
	s.markDirty()
	return s.buildNoteDetail(path, content)
}

// DeleteNote removes a note from storage and index.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		return err
	}
	if err := s.db.DeleteNote(path); err != nil {
		return err
	}
	s.markDirty()
	return nil
}

// ListNotes returns paginated notes with optional tag filter.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag, sort string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Backlinks returns all note paths that link to the given target.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	return s.db.Backlinks(target)
}

// GetDocument returns the transformed form of a note from the current
// snapshot.
func (s *Service) GetDocument(_ context.Context, path string) (*DocumentDetail, error) {
	snap := s.snapshot()
	if snap == nil {
		return nil, apperr.ErrNotFound
	}
	doc := snap.Document(path)
	if doc == nil {
		return nil, apperr.ErrNotFound
	}
	return &DocumentDetail{
		Path:   doc.Note.Path,
		Title:  doc.Note.Title,
		Body:   doc.Body,
		Links:  nonNilSlice(doc.Note.Links),
		Blocks: doc.Blocks,
	}, nil
}

// ListBases returns every loaded base definition with its view names.
func (s *Service) ListBases(_ context.Context) []BaseInfo {
	snap := s.snapshot()
	if snap == nil {
		return []BaseInfo{}
	}
	names := snap.DefinitionNames()
	out := make([]BaseInfo, 0, len(names))
	for _, name := range names {
		if strings.Contains(name, "#") {
			// Inline blocks stay addressable by exact name but are not
			// standalone bases.
			continue
		}
		def := snap.Definitions[name]
		views := make([]string, len(def.Views))
		for i, v := range def.Views {
			views[i] = v.Name
		}
		out = append(out, BaseInfo{Name: name, Views: views})
	}
	return out
}

// GetBase returns a single base definition by name.
func (s *Service) GetBase(_ context.Context, name string) (*base.Definition, error) {
	snap := s.snapshot()
	if snap == nil {
		return nil, apperr.ErrNotFound
	}
	def, ok := snap.Definition(name)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return def, nil
}

// ResolveView resolves a view of a named base against the current corpus.
func (s *Service) ResolveView(_ context.Context, baseName, view string) (*base.Result, error) {
	snap := s.snapshot()
	if snap == nil {
		return nil, apperr.ErrNotFound
	}
	return snap.ResolveView(baseName, view)
}

// Graph returns the link graph from the current snapshot.
func (s *Service) Graph(_ context.Context) *graph.Graph {
	snap := s.snapshot()
	if snap == nil || snap.Graph == nil {
		return &graph.Graph{Nodes: []graph.Node{}, Links: []graph.Link{}}
	}
	return snap.Graph
}

// Diagnostics returns the problems recorded by the last pass.
func (s *Service) Diagnostics(_ context.Context) []pipeline.Diagnostic {
	snap := s.snapshot()
	if snap == nil {
		return nil
	}
	return snap.Diagnostics
}

// IndexFile parses data and upserts it into the index.
// Exported so that sync and watcher can reuse it.
func (s *Service) IndexFile(path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	cs := checksum.Sum(data)

	tr := rewrite.Transform(res.Body)
	links := make([]string, 0, len(tr.Links))
	seen := make(map[string]struct{}, len(tr.Links))
	for _, ref := range tr.Links {
		if _, dup := seen[ref.Target]; dup {
			continue
		}
		seen[ref.Target] = struct{}{}
		links = append(links, ref.Target)
	}

	return s.db.UpsertNote(index.NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  cs,
		Tags:      nonNilSlice(res.Tags),
		UpdatedAt: time.Now(),
	}, res.Body, links)
}

func (s *Service) snapshot() *pipeline.Snapshot {
	if s.pipe == nil {
		return nil
	}
	return s.pipe.Current()
}

func (s *Service) markDirty() {
	if s.pipe != nil {
		s.pipe.Notify()
	}
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading the file.
func (s *Service) buildNoteDetail(path string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(path)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Backlinks:   nonNilSlice(bl),
		UpdatedAt:   time.Now(),
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
